package models

import (
	"strings"
	"time"
)

// DefaultMinFileSize is the minimum on-disk size a file must reach before it
// counts as a complete artifact rather than a placeholder or LFS pointer.
// Files that are legitimately small (reference audio, configs) declare their
// own MinSize in the catalog.
const DefaultMinFileSize int64 = 1 << 20

// Config configures the models module.
type Config struct {
	// AppName determines the base directory environment variable.
	// Example: "mofa" → MOFA_MODELS_DIR
	AppName string

	// DataDir overrides the default base directory (~/.dora/models).
	// Can also be set via environment variable: <APPNAME>_MODELS_DIR
	DataDir string

	// Root, if set, is used as the storage root of every family. It
	// corresponds to the CLI --dir flag and overrides everything else.
	Root string

	// FamilyDirs overrides the storage root of individual asset families,
	// keyed by family name (e.g. "kokoro"). The family's environment
	// variable takes precedence.
	FamilyDirs map[string]string

	// Thresholds overrides the minimum viable file size for every file of
	// the named asset.
	Thresholds map[string]int64

	// Concurrency is the default number of concurrent file downloads per
	// asset. Zero means DefaultConcurrency. WithConcurrency overrides it.
	Concurrency int

	// Catalog is the set of assets the manager knows about. If nil, the
	// embedded default catalog is used.
	Catalog *Catalog
}

// AssetFile maps one remote repository path onto a local path inside the
// asset family's storage root.
type AssetFile struct {
	// Remote is the path within the remote repository.
	Remote string `yaml:"remote" json:"remote"`

	// Local is the path relative to the family root. Defaults to Remote.
	Local string `yaml:"local,omitempty" json:"local"`

	// MinSize is the minimum viable size in bytes. Zero means the asset or
	// global default applies.
	MinSize int64 `yaml:"min_size,omitempty" json:"min_size,omitempty"`
}

// AssetDescriptor identifies one downloadable multi-file bundle.
type AssetDescriptor struct {
	// Name is the unique catalog key, e.g. "Doubao" or "primespeech-base".
	Name string `json:"name"`

	// Family selects the storage root, e.g. "primespeech".
	Family string `json:"family"`

	// Group is the dependency group the asset belongs to, e.g. "primespeech-voices".
	Group string `json:"group,omitempty"`

	// Repository is the remote repository id, e.g. "MoYoYoTech/tone-models".
	Repository string `json:"repository"`

	// Revision is the remote revision to fetch. Empty means the client default.
	Revision string `json:"revision,omitempty"`

	// Description is a short human-readable summary.
	Description string `json:"description,omitempty"`

	// Language is the primary language of a voice, if any.
	Language string `json:"language,omitempty"`

	// MinSize is the asset-wide default minimum file size.
	MinSize int64 `json:"min_size,omitempty"`

	// Files lists every file required for the asset to be complete.
	Files []AssetFile `json:"files"`

	// Shared is true if other assets depend on this one.
	Shared bool `json:"shared"`

	// Dependents names the assets that require this one.
	Dependents []string `json:"dependents,omitempty"`
}

// minSizeFor returns the effective minimum size for f.
func (d AssetDescriptor) minSizeFor(f AssetFile) int64 {
	switch {
	case f.MinSize > 0:
		return f.MinSize
	case d.MinSize > 0:
		return d.MinSize
	default:
		return DefaultMinFileSize
	}
}

// HasDependent reports whether name depends on this asset.
func (d AssetDescriptor) HasDependent(name string) bool {
	for _, dep := range d.Dependents {
		if strings.EqualFold(dep, name) {
			return true
		}
	}
	return false
}

// FileState describes one file of an asset as found on disk.
type FileState struct {
	// Local is the file's path relative to the family root.
	Local string `json:"local"`

	// Path is the absolute on-disk path.
	Path string `json:"path"`

	// Exists reports whether the file is on disk.
	Exists bool `json:"exists"`

	// Size is the on-disk size in bytes.
	Size int64 `json:"size"`

	// MinSize is the threshold the file was measured against.
	MinSize int64 `json:"min_size"`

	// Complete is true if the file exists and meets MinSize.
	Complete bool `json:"complete"`
}

// AssetState is the derived local state of an asset. It is recomputed from
// the content store on every query and never persisted.
type AssetState struct {
	// Present is true when every declared file exists.
	Present bool `json:"present"`

	// Complete is true when Present and every file meets its minimum size.
	Complete bool `json:"complete"`

	// SizeBytes is the sum of on-disk file sizes. Zero when not Present.
	SizeBytes int64 `json:"size_bytes"`

	// Files holds per-file detail in catalog order.
	Files []FileState `json:"files"`
}

// Status returns "complete", "incomplete" or "missing".
func (s AssetState) Status() string {
	switch {
	case s.Complete:
		return "complete"
	case s.Present:
		return "incomplete"
	default:
		return "missing"
	}
}

// AssetStatus pairs a descriptor with its current local state.
type AssetStatus struct {
	Asset AssetDescriptor `json:"asset"`
	State AssetState      `json:"state"`
	Path  string          `json:"path"`
}

// RemoteFile describes a file in a remote repository.
type RemoteFile struct {
	// Path is the path within the repository.
	Path string `json:"path"`

	// Size is the file size in bytes, or zero if unknown.
	Size int64 `json:"size"`
}

// AcquireResult reports the outcome of a single asset acquisition.
type AcquireResult struct {
	// Asset is the catalog name.
	Asset string `json:"asset"`

	// OK is the freshly computed completeness after all fetch attempts.
	OK bool `json:"ok"`

	// AlreadyComplete is true when the asset was satisfied before the call
	// and no fetch was attempted.
	AlreadyComplete bool `json:"already_complete"`

	// Downloaded lists the local paths fetched during this call.
	Downloaded []string `json:"downloaded"`

	// Skipped lists the local paths that were already complete.
	Skipped []string `json:"skipped"`

	// Errors holds one record per failed file.
	Errors []FileError `json:"errors,omitempty"`

	// State is the state computed after the fetch attempts.
	State AssetState `json:"state"`

	// Duration is the wall time spent on the call.
	Duration time.Duration `json:"duration"`
}

// RemoveResult reports the outcome of a single asset removal.
type RemoveResult struct {
	// Asset is the catalog name.
	Asset string `json:"asset"`

	// OK is true only if every targeted file was removed or already absent.
	OK bool `json:"ok"`

	// Cancelled is true when the confirmation was declined.
	Cancelled bool `json:"cancelled"`

	// Removed lists the local paths deleted during this call.
	Removed []string `json:"removed"`

	// Errors holds one record per file that could not be deleted.
	Errors []FileError `json:"errors,omitempty"`

	// Cascaded holds the results for dependents removed first.
	Cascaded []RemoveResult `json:"cascaded,omitempty"`
}

// BatchResult summarises a multi-asset acquisition.
type BatchResult struct {
	Results []AcquireResult `json:"results"`
}

// OK reports whether every asset in the batch is complete.
func (b BatchResult) OK() bool {
	for _, r := range b.Results {
		if !r.OK {
			return false
		}
	}
	return true
}

// Failed returns the results that did not complete.
func (b BatchResult) Failed() []AcquireResult {
	var failed []AcquireResult
	for _, r := range b.Results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed
}

// GroupRemoveResult summarises removal of a dependency group.
type GroupRemoveResult struct {
	// Group is the dependency group name.
	Group string `json:"group"`

	// Cancelled is true if the group confirmation was declined.
	Cancelled bool `json:"cancelled"`

	// Members holds one result per member that was present.
	Members []RemoveResult `json:"members"`

	// Shared holds results for shared assets offered after the members
	// were removed. A declined offer appears with Cancelled set.
	Shared []RemoveResult `json:"shared,omitempty"`
}

// OK reports whether every member and every accepted shared removal succeeded.
func (g GroupRemoveResult) OK() bool {
	if g.Cancelled {
		return false
	}
	for _, r := range g.Members {
		if !r.OK {
			return false
		}
	}
	for _, r := range g.Shared {
		if !r.OK && !r.Cancelled {
			return false
		}
	}
	return true
}

// Impact summarises what a destructive operation will delete.
type Impact struct {
	Assets    []string `json:"assets"`
	FileCount int      `json:"file_count"`
	SizeBytes int64    `json:"size_bytes"`
}

// AcquireProgress reports download progress for a single file.
type AcquireProgress struct {
	// Asset is the asset being acquired.
	Asset string

	// File is the local path of the file being fetched.
	File string

	// BytesCompleted is the number of bytes of File written so far.
	BytesCompleted int64

	// BytesTotal is the expected size of File, or -1 if unknown.
	BytesTotal int64

	// Done is set on the final report for File.
	Done bool

	// Err is set when the final report is a failure.
	Err error
}

// MirrorOptions configures an ad hoc repository snapshot.
type MirrorOptions struct {
	// Revision is the remote revision; empty means the client default.
	Revision string

	// Patterns restricts the snapshot to matching paths (doublestar syntax).
	// Empty means every file.
	Patterns []string

	// Dir is the destination directory. Empty means <base>/hub/<owner>--<name>.
	Dir string
}
