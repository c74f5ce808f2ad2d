package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultAppName is used when Config.AppName is empty.
const DefaultAppName = "mofa"

// partSuffix marks a file that is still being written.
const partSuffix = ".part"

// storageInterface defines operations on the content store.
// Implemented by *storage for production; tests wrap it to inject failures.
type storageInterface interface {
	// base returns the parent directory of family roots without an override.
	base() string

	// root returns the absolute storage root of a family.
	root(family string) string

	// filePath returns the absolute path of a file local to a family root.
	filePath(family, local string) string

	// stat returns the size of path, or exists=false if it is absent.
	stat(path string) (size int64, exists bool, err error)

	// ensureDir creates a directory and all parent directories if they don't exist.
	ensureDir(path string) error

	// removeFile deletes path. An absent file is not an error.
	removeFile(path string) error

	// discardPart deletes the partial download of path and its validator.
	discardPart(path string) error

	// pruneEmptyDirs removes empty directories from dir up to, but not including, root.
	pruneEmptyDirs(root, dir string)

	// findParts returns every partial download under root.
	findParts(root string) ([]string, error)

	// diskStats reports total and free bytes of the filesystem holding path.
	diskStats(path string) (total, free uint64, err error)
}

// storage maps families onto directories of the local filesystem.
// Implements storageInterface.
type storage struct {
	// baseDir is the parent of every family root that has no override.
	baseDir string

	// roots holds resolved family roots.
	roots map[string]string
}

// Ensure storage implements storageInterface.
var _ storageInterface = (*storage)(nil)

// envVarName constructs an environment variable name from the app name.
// Converts appName to uppercase and appends "_MODELS_DIR".
// Example: envVarName("mofa") returns "MOFA_MODELS_DIR".
func envVarName(appName string) string {
	return strings.ToUpper(appName) + "_MODELS_DIR"
}

// defaultBaseDir returns ~/.dora/models.
func defaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dora", "models"), nil
}

// newStorage resolves the storage root of every family in cat.
//
// Priority per family: Config.Root > family env var > Config.FamilyDirs >
// <base>/<family>, where base is <APPNAME>_MODELS_DIR > Config.DataDir >
// ~/.dora/models.
func newStorage(cfg Config, cat *Catalog) (*storage, error) {
	appName := cfg.AppName
	if appName == "" {
		appName = DefaultAppName
	}

	var baseDir string
	if envDir := os.Getenv(envVarName(appName)); envDir != "" {
		baseDir = envDir
	} else if cfg.DataDir != "" {
		baseDir = cfg.DataDir
	} else {
		defaultDir, err := defaultBaseDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get default data dir: %w", err)
		}
		baseDir = defaultDir
	}

	s := &storage{baseDir: baseDir, roots: make(map[string]string)}
	for _, f := range cat.Families() {
		s.roots[f.Name] = resolveFamilyRoot(cfg, f, baseDir)
	}
	return s, nil
}

func resolveFamilyRoot(cfg Config, f Family, baseDir string) string {
	if cfg.Root != "" {
		return cfg.Root
	}
	if f.Env != "" {
		if dir := os.Getenv(f.Env); dir != "" {
			return dir
		}
	}
	if dir := cfg.FamilyDirs[f.Name]; dir != "" {
		return dir
	}
	return filepath.Join(baseDir, f.Name)
}

// base returns the parent directory of family roots without an override.
func (s *storage) base() string {
	return s.baseDir
}

// root returns the absolute storage root of a family.
func (s *storage) root(family string) string {
	if r, ok := s.roots[family]; ok {
		return r
	}
	return filepath.Join(s.baseDir, family)
}

// filePath returns the absolute path of a file local to a family root.
func (s *storage) filePath(family, local string) string {
	return filepath.Join(s.root(family), filepath.FromSlash(local))
}

// stat returns the size of path, or exists=false if it is absent.
// Directories count as absent.
func (s *storage) stat(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classifyFSError(err)
	}
	if info.IsDir() {
		return 0, false, nil
	}
	return info.Size(), true, nil
}

// ensureDir creates a directory and all parent directories if they don't exist.
func (s *storage) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return classifyFSError(fmt.Errorf("failed to create directory %s: %w", path, err))
	}
	return nil
}

// removeFile deletes path and any partial download beside it.
func (s *storage) removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classifyFSError(err)
	}
	return s.discardPart(path)
}

// discardPart deletes path's partial download and the ETag recorded for it.
func (s *storage) discardPart(path string) error {
	return discardPartial(path + partSuffix)
}

// pruneEmptyDirs removes empty directories from dir up to, but not including, root.
// Stops at the first directory that is not empty or cannot be removed.
func (s *storage) pruneEmptyDirs(root, dir string) {
	root = filepath.Clean(root)
	dir = filepath.Clean(dir)
	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// findParts returns every partial download under root.
// A missing root yields no parts.
func (s *storage) findParts(root string) ([]string, error) {
	var parts []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), partSuffix) {
			parts = append(parts, path)
		}
		return nil
	})
	if err != nil {
		return parts, classifyFSError(err)
	}
	return parts, nil
}

// diskStats reports total and free bytes of the filesystem holding path.
// Walks up to the nearest existing ancestor so it works before the first download.
func (s *storage) diskStats(path string) (uint64, uint64, error) {
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}
	return statDisk(path)
}

// isPermission reports whether err is a filesystem permission failure.
func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}
