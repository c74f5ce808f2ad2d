package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// lowDiskWarning is the free space below which acquire logs a warning.
const lowDiskWarning = 2 << 30

// Acquire downloads every missing or undersized file of an asset.
func (m *manager) Acquire(ctx context.Context, name string, opts ...AcquireOption) (AcquireResult, error) {
	cfg := m.newAcquireConfig(opts)

	d, err := m.catalog.Get(name)
	if err != nil {
		return AcquireResult{Asset: name}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.acquire(ctx, d, cfg)
}

// AcquireBatch acquires each asset in order, deduplicating names.
// Every name is resolved before any transfer starts.
func (m *manager) AcquireBatch(ctx context.Context, names []string, opts ...AcquireOption) (BatchResult, error) {
	cfg := m.newAcquireConfig(opts)

	var assets []AssetDescriptor
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		d, err := m.catalog.Get(name)
		if err != nil {
			return BatchResult{}, err
		}
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		assets = append(assets, d)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	var batch BatchResult
	for _, d := range assets {
		res, err := m.acquire(ctx, d, cfg)
		batch.Results = append(batch.Results, res)
		if err != nil {
			return batch, err
		}
	}
	return batch, nil
}

// newAcquireConfig applies the manager default concurrency, then opts.
func (m *manager) newAcquireConfig(opts []AcquireOption) *acquireConfig {
	cfg := newAcquireConfig()
	if m.concurrency > 0 {
		WithConcurrency(m.concurrency)(cfg)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// acquire runs one acquisition. The caller holds opMu.
func (m *manager) acquire(ctx context.Context, d AssetDescriptor, cfg *acquireConfig) (AcquireResult, error) {
	start := time.Now()
	op := uuid.NewString()
	res := AcquireResult{Asset: d.Name}
	finish := func(outcome string) {
		res.Duration = time.Since(start)
		m.metrics.IncAcquire(d.Name, outcome)
		m.metrics.ObserveAcquireDuration(d.Name, res.Duration.Seconds())
		for _, fe := range res.Errors {
			m.metrics.IncFileFailure(d.Name, errorKind(fe.Err))
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	state := m.checkAsset(d)
	if state.Complete && !cfg.force {
		res.OK = true
		res.AlreadyComplete = true
		res.State = state
		for _, f := range state.Files {
			res.Skipped = append(res.Skipped, f.Local)
		}
		m.logger.Debug("asset already complete", "op", op, "asset", d.Name)
		finish("already_complete")
		return res, nil
	}

	m.logger.Info("acquiring asset", "op", op, "asset", d.Name, "repo", d.Repository, "force", cfg.force)

	unlock, err := m.lockFamilies(ctx, d.Family)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.State = state
		res.Errors = append(res.Errors, FileError{Path: m.storage.root(d.Family), Repository: d.Repository, Err: err})
		finish("incomplete")
		return res, nil
	}
	defer unlock()

	// Another process may have finished the asset while we waited.
	state = m.checkAsset(d)
	m.warnLowDisk(op, d)

	var jobs []fileJob
	for i, f := range d.Files {
		if !cfg.force && state.Files[i].Complete {
			res.Skipped = append(res.Skipped, f.Local)
			continue
		}
		// A forced fetch starts from zero bytes.
		if cfg.force {
			if err := m.storage.discardPart(state.Files[i].Path); err != nil {
				res.Errors = append(res.Errors, FileError{Path: f.Local, Repository: d.Repository, Err: err})
				continue
			}
		}
		jobs = append(jobs, fileJob{index: i, file: f, target: state.Files[i].Path})
	}

	engine := newDownloadEngine(m.client, m.logger)
	results := engine.fetchFiles(ctx, d, jobs, cfg.concurrency, cfg.progressFn)

	fetched := make(map[int]bool, len(results))
	for _, r := range results {
		local := d.Files[r.index].Local
		if r.err != nil {
			if errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded) {
				continue
			}
			res.Errors = append(res.Errors, FileError{Path: local, Repository: d.Repository, Err: r.err})
			continue
		}
		fetched[r.index] = true
		res.Downloaded = append(res.Downloaded, local)
	}

	res.State = m.checkAsset(d)
	res.OK = res.State.Complete

	// A fetch that reported success but left a stub behind is a placeholder
	// served by the remote.
	for i, f := range res.State.Files {
		if fetched[i] && !f.Complete {
			res.Errors = append(res.Errors, FileError{
				Path:       f.Local,
				Repository: d.Repository,
				Err: fmt.Errorf("%w: %s on disk, expected at least %s",
					ErrIncompleteTransfer, humanize.IBytes(uint64(f.Size)), humanize.IBytes(uint64(f.MinSize))),
			})
		}
	}

	if err := ctx.Err(); err != nil {
		m.logger.Warn("acquire cancelled", "op", op, "asset", d.Name, "downloaded", len(res.Downloaded))
		finish("cancelled")
		return res, err
	}

	outcome := "complete"
	if !res.OK {
		outcome = "incomplete"
		m.logger.Warn("asset incomplete after acquire", "op", op, "asset", d.Name, "errors", len(res.Errors))
	} else {
		m.logger.Info("asset acquired", "op", op, "asset", d.Name,
			"downloaded", len(res.Downloaded), "skipped", len(res.Skipped), "size", humanize.IBytes(uint64(res.State.SizeBytes)))
	}
	finish(outcome)
	return res, nil
}

// warnLowDisk logs when the family root is nearly full.
func (m *manager) warnLowDisk(op string, d AssetDescriptor) {
	_, free, err := m.storage.diskStats(m.storage.root(d.Family))
	if err != nil {
		m.logger.Debug("disk stats unavailable", "op", op, "error", err)
		return
	}
	if free < lowDiskWarning {
		m.logger.Warn("low disk space", "op", op, "root", m.storage.root(d.Family), "free", humanize.IBytes(free))
	}
}
