package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultHubEndpoint is the Hugging Face Hub.
const DefaultHubEndpoint = "https://huggingface.co"

// DefaultRevision is fetched when a descriptor names no revision.
const DefaultRevision = "main"

// RepositoryClient fetches files from a remote model repository.
// Implementations must be safe for concurrent use.
type RepositoryClient interface {
	// ListFiles returns every file in the repository at revision.
	ListFiles(ctx context.Context, repo, revision string) ([]RemoteFile, error)

	// FetchFile downloads one file to req.Target. The target only appears
	// once the transfer has finished; a partial transfer is left beside it
	// with a ".part" suffix.
	FetchFile(ctx context.Context, req FetchRequest) error

	// FetchSnapshot downloads every file matching allowPatterns into dir
	// and returns dir. An empty pattern list matches every file.
	FetchSnapshot(ctx context.Context, repo, revision string, allowPatterns []string, dir string) (string, error)
}

// FetchRequest identifies one file to download.
type FetchRequest struct {
	Repository string
	Revision   string
	RemotePath string
	Target     string

	// Progress, if set, receives the bytes written so far and the expected
	// total (-1 if unknown).
	Progress func(written, total int64)
}

// hubEntry is one element of the Hub tree API response.
type hubEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	LFS  *struct {
		Size int64 `json:"size"`
	} `json:"lfs,omitempty"`
}

// hubClient implements RepositoryClient against the Hugging Face Hub HTTP API.
type hubClient struct {
	// endpoint is the base URL, without trailing slash.
	endpoint string

	// token authenticates requests. May be empty.
	token string

	// httpClient is used for HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages.
	logger Logger

	// backoff is the wait before the first retry; it doubles up to maxBackoff.
	backoff    time.Duration
	maxBackoff time.Duration
}

// Ensure hubClient implements RepositoryClient.
var _ RepositoryClient = (*hubClient)(nil)

// newHubClient creates a hub client.
// The endpoint is normalized by removing any trailing slashes.
func newHubClient(endpoint, token string, client HTTPClient, logger Logger) *hubClient {
	if endpoint == "" {
		endpoint = DefaultHubEndpoint
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &hubClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: client,
		logger:     logger,
		backoff:    InitialBackoff,
		maxBackoff: MaxBackoff,
	}
}

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func revisionOrDefault(rev string) string {
	if rev == "" {
		return DefaultRevision
	}
	return rev
}

func (h *hubClient) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return req, nil
}

// retryableError marks a failure worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// statusError maps a non-success Hub response onto the sentinel taxonomy.
// missing is returned for a plain 404 without an error code.
func statusError(resp *http.Response, what string, missing error) error {
	switch resp.Header.Get("X-Error-Code") {
	case "RepoNotFound", "RevisionNotFound":
		return fmt.Errorf("%s: %w", what, ErrRepositoryNotFound)
	case "EntryNotFound":
		return fmt.Errorf("%s: %w", what, ErrEntryNotFound)
	case "GatedRepo":
		return fmt.Errorf("%s: %w", what, ErrAuthRequired)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", what, missing)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", what, ErrAuthRequired)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return retryableError{fmt.Errorf("%s: status %d: %w", what, resp.StatusCode, ErrNetworkError)}
	default:
		return fmt.Errorf("%s: status %d: %w", what, resp.StatusCode, ErrNetworkError)
	}
}

// withRetry runs fn until it succeeds, fails permanently, or MaxRetries is exhausted.
func (h *hubClient) withRetry(ctx context.Context, what string, fn func() error) error {
	wait := h.backoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		var retry retryableError
		if err == nil || !errors.As(err, &retry) || attempt >= MaxRetries {
			break
		}
		h.logger.Debug("retrying hub request", "what", what, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > h.maxBackoff {
			wait = h.maxBackoff
		}
	}
	var retry retryableError
	if errors.As(err, &retry) {
		return retry.err
	}
	return err
}

var linkNextRE = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ListFiles returns every file in the repository at revision, following
// pagination links.
func (h *hubClient) ListFiles(ctx context.Context, repo, revision string) ([]RemoteFile, error) {
	next := fmt.Sprintf("%s/api/models/%s/tree/%s?recursive=true",
		h.endpoint, repo, url.PathEscape(revisionOrDefault(revision)))
	what := "listing " + repo

	var files []RemoteFile
	for next != "" {
		var page []hubEntry
		var link string
		err := h.withRetry(ctx, what, func() error {
			req, err := h.newRequest(ctx, next)
			if err != nil {
				return err
			}
			resp, err := h.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return retryableError{fmt.Errorf("%s: %w: %v", what, ErrNetworkError, err)}
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return statusError(resp, what, ErrRepositoryNotFound)
			}
			page = nil
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				return fmt.Errorf("parsing tree of %s: %w: %v", repo, ErrNetworkError, err)
			}
			link = resp.Header.Get("Link")
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, e := range page {
			if e.Type != "file" {
				continue
			}
			size := e.Size
			if e.LFS != nil && e.LFS.Size > 0 {
				size = e.LFS.Size
			}
			files = append(files, RemoteFile{Path: e.Path, Size: size})
		}

		next = ""
		if m := linkNextRE.FindStringSubmatch(link); m != nil {
			next = m[1]
		}
	}

	return files, nil
}

// FetchFile downloads one file, resuming an existing partial download.
func (h *hubClient) FetchFile(ctx context.Context, fr FetchRequest) error {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s",
		h.endpoint, fr.Repository, url.PathEscape(revisionOrDefault(fr.Revision)), escapePath(fr.RemotePath))
	what := fmt.Sprintf("fetching %s from %s", fr.RemotePath, fr.Repository)

	if err := os.MkdirAll(filepath.Dir(fr.Target), 0755); err != nil {
		return classifyFSError(err)
	}
	part := fr.Target + partSuffix

	err := h.withRetry(ctx, what, func() error {
		return h.fetchOnce(ctx, u, what, part, fr.Progress)
	})
	if err != nil {
		return err
	}

	if err := os.Rename(part, fr.Target); err != nil {
		return classifyFSError(fmt.Errorf("failed to rename partial download: %w", err))
	}
	if err := os.Remove(part + validatorSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("failed to remove download validator", "path", part+validatorSuffix, "error", err)
	}
	h.logger.Debug("file downloaded", "repo", fr.Repository, "path", fr.RemotePath)
	return nil
}

// fetchOnce performs one GET into part. An existing part is only resumed
// when its recorded ETag still matches the remote: the request carries
// If-Range, so a changed file comes back whole and replaces the part.
func (h *hubClient) fetchOnce(ctx context.Context, u, what, part string, progress func(written, total int64)) error {
	var offset int64
	validator := readValidator(part)
	if info, err := os.Stat(part); err == nil {
		if validator == "" {
			// Nothing proves the bytes belong to the current revision.
			h.logger.Debug("discarding unvalidated partial download", "path", part)
			if err := discardPartial(part); err != nil {
				return err
			}
		} else {
			offset = info.Size()
		}
	}

	req, err := h.newRequest(ctx, u)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		req.Header.Set("If-Range", validator)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retryableError{fmt.Errorf("%s: %w: %v", what, ErrNetworkError, err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		offset = 0
		if err := writeValidator(part, resp.Header.Get("ETag")); err != nil {
			return err
		}
	case http.StatusPartialContent:
		if offset == 0 || !resumeMatches(resp, validator, offset) {
			if err := discardPartial(part); err != nil {
				return err
			}
			return retryableError{fmt.Errorf("%s: partial content does not continue the partial download: %w", what, ErrNetworkError)}
		}
	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file is stale or already whole; start again.
		if err := discardPartial(part); err != nil {
			return err
		}
		return retryableError{fmt.Errorf("%s: stale partial download: %w", what, ErrNetworkError)}
	default:
		return statusError(resp, what, ErrEntryNotFound)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + offset
	}

	flag := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	file, err := os.OpenFile(part, flag, 0644)
	if err != nil {
		return classifyFSError(err)
	}

	var dst io.Writer = file
	if progress != nil {
		dst = &progressWriter{w: file, written: offset, total: total, onProgress: progress}
		progress(offset, total)
	}
	_, copyErr := io.Copy(dst, resp.Body)
	closeErr := file.Close()

	if copyErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return classifyFSError(copyErr)
		}
		return retryableError{fmt.Errorf("%s: %w: %v", what, ErrNetworkError, copyErr)}
	}
	if closeErr != nil {
		return classifyFSError(closeErr)
	}
	return nil
}

// validatorSuffix names the file beside a partial download that holds the
// ETag the partial bytes were served under.
const validatorSuffix = ".etag"

// readValidator returns the recorded ETag of part, or "" if there is none.
func readValidator(part string) string {
	data, err := os.ReadFile(part + validatorSuffix)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// writeValidator records etag for part. Weak or missing ETags cannot be
// used with If-Range, so they leave no record and the part is never resumed.
func writeValidator(part, etag string) error {
	etag = strings.TrimSpace(etag)
	if etag == "" || strings.HasPrefix(etag, "W/") {
		if err := os.Remove(part + validatorSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return classifyFSError(err)
		}
		return nil
	}
	if err := os.WriteFile(part+validatorSuffix, []byte(etag), 0644); err != nil {
		return classifyFSError(err)
	}
	return nil
}

// discardPartial deletes part and its validator.
func discardPartial(part string) error {
	for _, p := range []string{part, part + validatorSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return classifyFSError(err)
		}
	}
	return nil
}

// resumeMatches reports whether a 206 response continues the partial bytes:
// same ETag when the server sends one, and a range starting at offset.
func resumeMatches(resp *http.Response, validator string, offset int64) bool {
	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" && etag != validator {
		return false
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" && !strings.HasPrefix(cr, fmt.Sprintf("bytes %d-", offset)) {
		return false
	}
	return true
}

// FetchSnapshot downloads every matching file of repo into dir.
// Files are attempted independently; failures are joined.
func (h *hubClient) FetchSnapshot(ctx context.Context, repo, revision string, allowPatterns []string, dir string) (string, error) {
	for _, p := range allowPatterns {
		if !doublestar.ValidatePattern(p) {
			return "", fmt.Errorf("models: invalid pattern %q", p)
		}
	}

	files, err := h.ListFiles(ctx, repo, revision)
	if err != nil {
		return "", err
	}

	var errs []error
	for _, f := range files {
		if !matchAny(allowPatterns, f.Path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return dir, err
		}
		clean := path.Clean(f.Path)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(clean))
		if info, err := os.Stat(target); err == nil && f.Size > 0 && info.Size() == f.Size {
			continue
		}
		err := h.FetchFile(ctx, FetchRequest{
			Repository: repo,
			Revision:   revision,
			RemotePath: f.Path,
			Target:     target,
		})
		if err != nil {
			if ctx.Err() != nil {
				return dir, ctx.Err()
			}
			errs = append(errs, FileError{Path: f.Path, Repository: repo, Err: err})
		}
	}

	return dir, errors.Join(errs...)
}

// matchAny reports whether name matches one of patterns. No patterns matches everything.
func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// progressWriter reports cumulative bytes as they are written.
type progressWriter struct {
	w          io.Writer
	written    int64
	total      int64
	onProgress func(written, total int64)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.written += int64(n)
		pw.onProgress(pw.written, pw.total)
	}
	return n, err
}
