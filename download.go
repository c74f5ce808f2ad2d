package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// fileJob represents a unit of work for the download worker pool.
type fileJob struct {
	// index is the position of the file in the asset manifest.
	index int

	// file is the manifest entry being fetched.
	file AssetFile

	// target is the absolute destination path.
	target string
}

// fileResult contains the result of a file download.
type fileResult struct {
	// index identifies which job this result is for.
	index int

	// err is nil on success, or the error that occurred.
	err error

	// attempted is false when the job was abandoned before any request.
	attempted bool
}

// downloadEngine fetches the files of one asset with parallel workers.
// Unlike a fail-fast pool, a failed file never cancels its siblings; only a
// missing repository stops jobs that have not started yet.
type downloadEngine struct {
	// client fetches files from the remote repository.
	client RepositoryClient

	// logger receives diagnostic messages.
	logger Logger

	// wg tracks active download workers.
	wg sync.WaitGroup

	// repoMissing is set once the repository is known not to exist.
	repoMissing atomic.Bool
}

// newDownloadEngine creates a new download engine.
func newDownloadEngine(client RepositoryClient, logger Logger) *downloadEngine {
	if logger == nil {
		logger = nopLogger{}
	}
	return &downloadEngine{
		client: client,
		logger: logger,
	}
}

// fetchFiles downloads every job with up to concurrency workers and returns
// one result per job, in job order. It returns early only on cancellation.
func (d *downloadEngine) fetchFiles(ctx context.Context, asset AssetDescriptor, jobs []fileJob, concurrency int, progressFn func(AcquireProgress)) []fileResult {
	results := make([]fileResult, len(jobs))
	for i := range results {
		results[i] = fileResult{index: jobs[i].index}
	}
	if len(jobs) == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(jobs) {
		concurrency = len(jobs)
	}

	queue := make(chan int, len(jobs))
	for i := range jobs {
		queue <- i
	}
	close(queue)

	for w := 0; w < concurrency; w++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for i := range queue {
				results[i] = d.fetchOne(ctx, asset, jobs[i], progressFn)
			}
		}()
	}
	d.wg.Wait()

	return results
}

// fetchOne downloads a single file.
func (d *downloadEngine) fetchOne(ctx context.Context, asset AssetDescriptor, job fileJob, progressFn func(AcquireProgress)) fileResult {
	res := fileResult{index: job.index}

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}
	if d.repoMissing.Load() {
		res.err = fmt.Errorf("not attempted: %w", ErrRepositoryNotFound)
		return res
	}

	res.attempted = true
	req := FetchRequest{
		Repository: asset.Repository,
		Revision:   asset.Revision,
		RemotePath: job.file.Remote,
		Target:     job.target,
	}
	if progressFn != nil {
		req.Progress = func(written, total int64) {
			progressFn(AcquireProgress{
				Asset:          asset.Name,
				File:           job.file.Local,
				BytesCompleted: written,
				BytesTotal:     total,
			})
		}
	}

	res.err = d.client.FetchFile(ctx, req)
	if errors.Is(res.err, ErrRepositoryNotFound) {
		d.repoMissing.Store(true)
	}

	if res.err != nil {
		d.logger.Warn("file download failed", "asset", asset.Name, "file", job.file.Local, "error", res.err)
	} else {
		d.logger.Debug("file fetched", "asset", asset.Name, "file", job.file.Local)
	}

	if progressFn != nil {
		progressFn(AcquireProgress{
			Asset:      asset.Name,
			File:       job.file.Local,
			BytesTotal: -1,
			Done:       true,
			Err:        res.err,
		})
	}
	return res
}
