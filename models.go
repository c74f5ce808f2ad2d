package models

import (
	"context"
	"strings"
)

// Manager provides programmatic access to asset management.
// All methods are safe for concurrent use within one process.
// For CLI integration, use NewCommand instead.
type Manager interface {
	// Catalog returns the catalog the manager was built with.
	Catalog() *Catalog

	// Check computes the local state of an asset from the content store.
	// It never mutates anything. Returns ErrUnknownAsset for a catalog miss.
	Check(ctx context.Context, name string) (AssetState, error)

	// List returns every catalog asset with its local state, in catalog order.
	List(ctx context.Context) ([]AssetStatus, error)

	// Path returns the directory holding an asset's files.
	Path(ctx context.Context, name string) (string, error)

	// Root returns the storage root of a family.
	Root(family string) string

	// DiskSpace reports the filesystem holding a family root.
	DiskSpace(ctx context.Context, family string) (DiskSpace, error)

	// Acquire downloads every missing or undersized file of an asset.
	// A complete asset is a no-op unless WithForce() is given. Per-file
	// failures are recorded in the result; the returned error is reserved
	// for ErrUnknownAsset and context cancellation.
	Acquire(ctx context.Context, name string, opts ...AcquireOption) (AcquireResult, error)

	// AcquireBatch acquires each asset in order. A failed asset never stops
	// the batch.
	AcquireBatch(ctx context.Context, names []string, opts ...AcquireOption) (BatchResult, error)

	// Remove deletes an asset's files after confirmation. Removing a shared
	// asset whose dependents are still on disk fails with
	// ErrDependencyConflict unless WithCascade() is given.
	Remove(ctx context.Context, name string, opts ...RemoveOption) (RemoveResult, error)

	// RemoveGroup deletes every member of a dependency group under one
	// confirmation, then offers each shared asset left without dependents
	// under a separate confirmation.
	RemoveGroup(ctx context.Context, group string, opts ...RemoveOption) (GroupRemoveResult, error)

	// RemoteFiles lists the repository an asset is fetched from.
	RemoteFiles(ctx context.Context, name string) ([]RemoteFile, error)

	// Mirror downloads an arbitrary repository snapshot and returns its directory.
	Mirror(ctx context.Context, repo string, opts MirrorOptions) (string, error)

	// PruneParts deletes partial downloads left by interrupted transfers.
	// Returns the deleted paths.
	PruneParts(ctx context.Context, confirm ConfirmFunc) ([]string, error)
}

// DiskSpace describes the filesystem holding a family root.
type DiskSpace struct {
	Family string `json:"family"`
	Root   string `json:"root"`
	Total  uint64 `json:"total"`
	Free   uint64 `json:"free"`
}

// Ensure manager implements Manager interface.
var _ Manager = (*manager)(nil)

// NewManager creates a new Manager with the given configuration.
// Uses the built-in catalog if cfg.Catalog is nil.
func NewManager(cfg Config, opts ...ManagerOption) (Manager, error) {
	mcfg := newManagerConfig()
	for _, opt := range opts {
		opt(mcfg)
	}

	cat := cfg.Catalog
	if cat == nil {
		var err error
		cat, err = DefaultCatalog()
		if err != nil {
			return nil, err
		}
	}

	storage, err := newStorage(cfg, cat)
	if err != nil {
		return nil, err
	}

	logger := mcfg.logger
	if logger == nil {
		logger = nopLogger{}
	}

	client := mcfg.client
	if client == nil {
		client = newHubClient(mcfg.hubEndpoint, mcfg.hubToken, mcfg.httpClient, logger)
	}

	thresholds := make(map[string]int64, len(cfg.Thresholds))
	for name, size := range cfg.Thresholds {
		if size > 0 {
			thresholds[foldName(name)] = size
		}
	}

	return &manager{
		catalog:     cat,
		client:      client,
		logger:      logger,
		metrics:     mcfg.metrics,
		storage:     storage,
		thresholds:  thresholds,
		concurrency: cfg.Concurrency,
		lockTimeout: mcfg.lockTimeout,
	}, nil
}

// mirrorDirName flattens a repository id into one path segment.
func mirrorDirName(repo string) string {
	return strings.ReplaceAll(strings.Trim(repo, "/"), "/", "--")
}
