package models

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// manager is the concrete implementation of the Manager interface.
type manager struct {
	// catalog is immutable after construction.
	catalog *Catalog

	// client fetches files from remote repositories.
	client RepositoryClient

	// logger receives diagnostic messages. Never nil.
	logger Logger

	// metrics records operation counters. Never nil.
	metrics Recorder

	// storage handles local filesystem operations.
	storage storageInterface

	// thresholds holds per-asset minimum size overrides, keyed by folded name.
	thresholds map[string]int64

	// concurrency is the default per-asset download concurrency; zero keeps DefaultConcurrency.
	concurrency int

	// lockTimeout bounds the wait for a family lock held by another process.
	lockTimeout time.Duration

	// opMu serializes mutating operations within this process.
	opMu sync.Mutex
}

// Catalog returns the catalog the manager was built with.
func (m *manager) Catalog() *Catalog {
	return m.catalog
}

// Root returns the storage root of a family.
func (m *manager) Root(family string) string {
	return m.storage.root(family)
}

// List returns every catalog asset with its local state.
func (m *manager) List(ctx context.Context) ([]AssetStatus, error) {
	assets := m.catalog.Assets()
	out := make([]AssetStatus, 0, len(assets))
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, AssetStatus{
			Asset: a,
			State: m.checkAsset(a),
			Path:  m.assetDir(a),
		})
	}
	return out, nil
}

// Path returns the directory holding an asset's files.
func (m *manager) Path(ctx context.Context, name string) (string, error) {
	d, err := m.catalog.Get(name)
	if err != nil {
		return "", err
	}
	return m.assetDir(d), nil
}

// assetDir returns the deepest directory containing every file of d.
func (m *manager) assetDir(d AssetDescriptor) string {
	var common []string
	for i, f := range d.Files {
		dir := strings.Split(path.Dir(path.Clean(f.Local)), "/")
		if dir[0] == "." {
			dir = nil
		}
		if i == 0 {
			common = dir
			continue
		}
		n := 0
		for n < len(common) && n < len(dir) && common[n] == dir[n] {
			n++
		}
		common = common[:n]
	}
	return m.storage.filePath(d.Family, strings.Join(common, "/"))
}

// DiskSpace reports the filesystem holding a family root.
func (m *manager) DiskSpace(ctx context.Context, family string) (DiskSpace, error) {
	root := m.storage.root(family)
	total, free, err := m.storage.diskStats(root)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("%w: disk stats for %s: %v", ErrStorageError, root, err)
	}
	return DiskSpace{Family: family, Root: root, Total: total, Free: free}, nil
}

// RemoteFiles lists the repository an asset is fetched from.
func (m *manager) RemoteFiles(ctx context.Context, name string) ([]RemoteFile, error) {
	d, err := m.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	files, err := m.client.ListFiles(ctx, d.Repository, d.Revision)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(files, func(a, b RemoteFile) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// Mirror downloads an arbitrary repository snapshot.
func (m *manager) Mirror(ctx context.Context, repo string, opts MirrorOptions) (string, error) {
	repo = strings.Trim(strings.TrimSpace(repo), "/")
	if repo == "" {
		return "", fmt.Errorf("%w: empty repository id", ErrRepositoryNotFound)
	}
	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(m.storage.base(), "hub", mirrorDirName(repo))
	}
	if err := m.storage.ensureDir(dir); err != nil {
		return "", err
	}

	m.logger.Info("mirroring repository", "repo", repo, "revision", opts.Revision, "patterns", opts.Patterns, "dir", dir)
	return m.client.FetchSnapshot(ctx, repo, opts.Revision, opts.Patterns, dir)
}

// PruneParts deletes partial downloads in every family root.
func (m *manager) PruneParts(ctx context.Context, confirm ConfirmFunc) ([]string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var (
		parts  []string
		impact Impact
		roots  []string
	)
	seen := make(map[string]bool)
	for _, f := range m.catalog.Families() {
		root := m.storage.root(f.Name)
		if seen[root] {
			continue
		}
		seen[root] = true
		roots = append(roots, root)

		found, err := m.storage.findParts(root)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			size, _, _ := m.storage.stat(p)
			impact.FileCount++
			impact.SizeBytes += size
		}
		parts = append(parts, found...)
	}
	if len(parts) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf("Delete %d partial download(s) (%s)?", impact.FileCount, humanize.IBytes(uint64(impact.SizeBytes)))
	if confirm == nil || !confirm(prompt, impact) {
		return nil, nil
	}

	unlock, err := m.lockRoots(ctx, roots)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var removed []string
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := m.storage.discardPart(strings.TrimSuffix(p, partSuffix)); err != nil {
			m.logger.Warn("failed to remove partial download", "path", p, "error", err)
			continue
		}
		removed = append(removed, p)
	}
	m.logger.Info("pruned partial downloads", "count", len(removed))
	return removed, nil
}

// lockRoots locks every distinct root in order. The returned function
// releases them all.
func (m *manager) lockRoots(ctx context.Context, roots []string) (func(), error) {
	sorted := slices.Clone(roots)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var held []*storeLock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(); err != nil {
				m.logger.Warn("failed to release store lock", "error", err)
			}
		}
	}
	for _, root := range sorted {
		l, err := lockRoot(ctx, root, m.lockTimeout)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, l)
	}
	return release, nil
}

// lockFamilies locks the roots of the given families.
func (m *manager) lockFamilies(ctx context.Context, families ...string) (func(), error) {
	roots := make([]string, 0, len(families))
	for _, f := range families {
		roots = append(roots, m.storage.root(f))
	}
	return m.lockRoots(ctx, roots)
}
