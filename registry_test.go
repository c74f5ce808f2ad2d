package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestHubClient returns a client with retry waits short enough for tests.
func newTestHubClient(server *httptest.Server, token string) *hubClient {
	c := newHubClient(server.URL+"/", token, server.Client(), nil)
	c.backoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond
	return c
}

func TestListFiles(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/org/voices/tree/main" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("recursive") != "true" && r.URL.Query().Get("cursor") == "" {
			t.Errorf("missing recursive query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/models/org/voices/tree/main?cursor=2>; rel="next"`, server.URL))
			w.Write([]byte(`[
				{"type": "directory", "path": "a", "size": 0},
				{"type": "file", "path": "a/w1.bin", "size": 134, "lfs": {"size": 2000000}},
				{"type": "file", "path": "a/ref.wav", "size": 200000}
			]`))
			return
		}
		w.Write([]byte(`[{"type": "file", "path": "b/w1.bin", "size": 10}]`))
	}))
	defer server.Close()

	files, err := newTestHubClient(server, "").ListFiles(context.Background(), "org/voices", "")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	want := []RemoteFile{
		{Path: "a/w1.bin", Size: 2000000},
		{Path: "a/ref.wav", Size: 200000},
		{Path: "b/w1.bin", Size: 10},
	}
	if len(files) != len(want) {
		t.Fatalf("ListFiles() = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %+v, want %+v", i, files[i], want[i])
		}
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		wantErr error
		calls   int32
	}{
		{"repo not found", http.StatusNotFound, "RepoNotFound", ErrRepositoryNotFound, 1},
		{"revision not found", http.StatusNotFound, "RevisionNotFound", ErrRepositoryNotFound, 1},
		{"entry not found", http.StatusNotFound, "EntryNotFound", ErrEntryNotFound, 1},
		{"plain 404", http.StatusNotFound, "", ErrEntryNotFound, 1},
		{"gated", http.StatusForbidden, "GatedRepo", ErrAuthRequired, 1},
		{"unauthorized", http.StatusUnauthorized, "", ErrAuthRequired, 1},
		{"server error retried", http.StatusBadGateway, "", ErrNetworkError, MaxRetries + 1},
		{"rate limited retried", http.StatusTooManyRequests, "", ErrNetworkError, MaxRetries + 1},
		{"bad request", http.StatusBadRequest, "", ErrNetworkError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if tt.code != "" {
					w.Header().Set("X-Error-Code", tt.code)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			target := filepath.Join(t.TempDir(), "w1.bin")
			err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
				Repository: "org/voices",
				RemotePath: "a/w1.bin",
				Target:     target,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchFile() error = %v, want %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.calls {
				t.Errorf("requests = %d, want %d", got, tt.calls)
			}
			if _, err := os.Stat(target); !os.IsNotExist(err) {
				t.Error("target created on failure")
			}
		})
	}
}

func TestListFilesMissingRepository(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestHubClient(server, "").ListFiles(context.Background(), "org/ghost", "main")
	if !errors.Is(err, ErrRepositoryNotFound) {
		t.Errorf("ListFiles() error = %v, want ErrRepositoryNotFound", err)
	}
}

func TestFetchFile(t *testing.T) {
	body := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/org/voices/resolve/v1.0/a/my%20ref.wav" && r.URL.Path != "/org/voices/resolve/v1.0/a/my ref.wav" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write([]byte(body))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "nested", "ref.wav")
	var last, total int64
	err := newTestHubClient(server, "hf_secret").FetchFile(context.Background(), FetchRequest{
		Repository: "org/voices",
		Revision:   "v1.0",
		RemotePath: "a/my ref.wav",
		Target:     target,
		Progress: func(written, n int64) {
			last, total = written, n
		},
	})
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if string(data) != body {
		t.Errorf("content length = %d, want %d", len(data), len(body))
	}
	if last != int64(len(body)) || total != int64(len(body)) {
		t.Errorf("progress = %d/%d", last, total)
	}
	if _, err := os.Stat(target + partSuffix); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

// writePartial leaves a partial download of target recorded under etag.
func writePartial(t *testing.T, target, content, etag string) {
	t.Helper()
	if err := os.WriteFile(target+partSuffix, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if etag != "" {
		if err := os.WriteFile(target+partSuffix+validatorSuffix, []byte(etag), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFetchFileResumesPartial(t *testing.T) {
	full := "0123456789abcdef"
	var gotRange, gotIfRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange, gotIfRange = r.Header.Get("Range"), r.Header.Get("If-Range")
		w.Header().Set("ETag", `"v1"`)
		if gotRange == "bytes=6-" && gotIfRange == `"v1"` {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes 6-%d/%d", len(full)-1, len(full)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte(full[6:]))
			return
		}
		w.Write([]byte(full))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "w1.bin")
	writePartial(t, target, full[:6], `"v1"`)

	err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
		Repository: "org/voices",
		RemotePath: "a/w1.bin",
		Target:     target,
	})
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if gotRange != "bytes=6-" || gotIfRange != `"v1"` {
		t.Errorf("Range = %q, If-Range = %q", gotRange, gotIfRange)
	}
	data, _ := os.ReadFile(target)
	if string(data) != full {
		t.Errorf("content = %q, want %q", data, full)
	}
	if _, err := os.Stat(target + partSuffix + validatorSuffix); !os.IsNotExist(err) {
		t.Error("validator left behind")
	}
}

// rangeServer serves body under etag and honours Range requests. It
// follows If-Range when honourIfRange is set and ignores it otherwise.
func rangeServer(t *testing.T, body, etag string, honourIfRange bool, ranges *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		mu.Lock()
		*ranges = append(*ranges, rng)
		mu.Unlock()

		w.Header().Set("ETag", etag)
		if rng == "" || (honourIfRange && r.Header.Get("If-Range") != etag) {
			w.Write([]byte(body))
			return
		}
		start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
		if err != nil || start >= len(body) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(body)-1, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(body[start:]))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchFileNeverStitchesStalePartial(t *testing.T) {
	body := strings.Repeat("N", 100)

	tests := []struct {
		name          string
		partEtag      string
		honourIfRange bool
		wantRequests  int
	}{
		// No record of where the bytes came from: never resumed.
		{"unvalidated partial", "", true, 1},
		// Recorded under an older revision: the server answers If-Range with the whole file.
		{"outdated validator", `"old"`, true, 1},
		// A server that ignores If-Range: the mismatching ETag on the 206 is caught.
		{"If-Range ignored", `"old"`, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ranges []string
			server := rangeServer(t, body, `"new"`, tt.honourIfRange, &ranges)

			target := filepath.Join(t.TempDir(), "w.bin")
			writePartial(t, target, "OLDOLDOLD", tt.partEtag)

			err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
				Repository: "org/voices",
				RemotePath: "a/w.bin",
				Target:     target,
			})
			if err != nil {
				t.Fatalf("FetchFile() error = %v", err)
			}

			data, _ := os.ReadFile(target)
			if string(data) != body {
				t.Errorf("content = %q (len %d), want the current file", data[:min(len(data), 12)], len(data))
			}
			if len(ranges) != tt.wantRequests {
				t.Errorf("requests = %d (ranges %q), want %d", len(ranges), ranges, tt.wantRequests)
			}
			if tt.partEtag == "" && ranges[0] != "" {
				t.Errorf("unvalidated partial resumed with Range %q", ranges[0])
			}
		})
	}
}

func TestFetchFileResumesAfterInterruption(t *testing.T) {
	full := "0123456789abcdef"
	var calls atomic.Int32
	var gotIfRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"sha-abc"`)
		if calls.Add(1) == 1 {
			// Promise the whole file, then drop the connection part way.
			w.Header().Set("Content-Length", strconv.Itoa(len(full)))
			w.Write([]byte(full[:6]))
			return
		}
		gotIfRange = r.Header.Get("If-Range")
		if r.Header.Get("Range") != "bytes=6-" {
			t.Errorf("Range = %q, want bytes=6-", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 6-%d/%d", len(full)-1, len(full)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[6:]))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "w1.bin")
	err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
		Repository: "org/voices",
		RemotePath: "a/w1.bin",
		Target:     target,
	})
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if gotIfRange != `"sha-abc"` {
		t.Errorf("If-Range = %q, want the ETag of the first response", gotIfRange)
	}
	data, _ := os.ReadFile(target)
	if string(data) != full {
		t.Errorf("content = %q, want %q", data, full)
	}
}

func TestWriteValidatorSkipsWeakETags(t *testing.T) {
	part := filepath.Join(t.TempDir(), "w.bin"+partSuffix)
	for _, etag := range []string{"", `W/"weak"`} {
		if err := writeValidator(part, etag); err != nil {
			t.Fatalf("writeValidator(%q) error = %v", etag, err)
		}
		if got := readValidator(part); got != "" {
			t.Errorf("writeValidator(%q) recorded %q", etag, got)
		}
	}
	if err := writeValidator(part, ` "strong" `); err != nil {
		t.Fatal(err)
	}
	if got := readValidator(part); got != `"strong"` {
		t.Errorf("readValidator() = %q", got)
	}
}

func TestFetchFileRestartsWhenRangeIgnored(t *testing.T) {
	full := "fresh content"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(full))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "w1.bin")
	os.WriteFile(target+partSuffix, []byte("stale"), 0644)

	err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
		Repository: "org/voices",
		RemotePath: "a/w1.bin",
		Target:     target,
	})
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != full {
		t.Errorf("content = %q, want %q", data, full)
	}
}

func TestFetchFileStalePartial(t *testing.T) {
	full := "complete"
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Write([]byte(full))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "w1.bin")
	writePartial(t, target, "much longer than the file", `"v1"`)

	err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
		Repository: "org/voices",
		RemotePath: "a/w1.bin",
		Target:     target,
	})
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("requests = %d, want 2", calls.Load())
	}
	data, _ := os.ReadFile(target)
	if string(data) != full {
		t.Errorf("content = %q", data)
	}
}

func TestFetchFileRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "w1.bin")
	err := newTestHubClient(server, "").FetchFile(context.Background(), FetchRequest{
		Repository: "org/voices",
		RemotePath: "a/w1.bin",
		Target:     target,
	})
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", calls.Load())
	}
}

func TestFetchFileCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestHubClient(server, "")
	client.backoff = time.Hour
	client.maxBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.FetchFile(ctx, FetchRequest{
		Repository: "org/voices",
		RemotePath: "a/w1.bin",
		Target:     filepath.Join(t.TempDir(), "w1.bin"),
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchFile() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestFetchSnapshot(t *testing.T) {
	var fetched atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			w.Write([]byte(`[
				{"type": "file", "path": "config.json", "size": 2},
				{"type": "file", "path": "onnx/model.onnx", "size": 5},
				{"type": "file", "path": "onnx/extra/model_q4.onnx", "size": 5},
				{"type": "file", "path": "README.md", "size": 3},
				{"type": "file", "path": "../escape.bin", "size": 1}
			]`))
			return
		}
		fetched.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, "config.json"):
			w.Write([]byte("{}"))
		case strings.HasSuffix(r.URL.Path, "model_q4.onnx"):
			w.Header().Set("X-Error-Code", "EntryNotFound")
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write([]byte("model"))
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	client := newTestHubClient(server, "")
	out, err := client.FetchSnapshot(context.Background(), "org/kokoro", "", []string{"*.json", "onnx/**/*.onnx"}, dir)
	if out != dir {
		t.Errorf("FetchSnapshot() dir = %q", out)
	}
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("FetchSnapshot() error = %v, want joined ErrEntryNotFound", err)
	}
	var fe FileError
	if !errors.As(err, &fe) || fe.Path != "onnx/extra/model_q4.onnx" {
		t.Errorf("FileError = %+v", fe)
	}
	if fetched.Load() != 3 {
		t.Errorf("fetched = %d, want 3", fetched.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, "onnx", "model.onnx")); err != nil {
		t.Errorf("model.onnx missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "README.md")); !os.IsNotExist(err) {
		t.Error("unmatched README.md downloaded")
	}

	// A second run skips files already present at the listed size.
	fetched.Store(0)
	client.FetchSnapshot(context.Background(), "org/kokoro", "", []string{"*.json", "onnx/**/*.onnx"}, dir)
	if fetched.Load() != 1 {
		t.Errorf("second run fetched = %d, want 1 (the failed file)", fetched.Load())
	}
}

func TestFetchSnapshotInvalidPattern(t *testing.T) {
	client := newHubClient("http://127.0.0.1:0", "", http.DefaultClient, nil)
	if _, err := client.FetchSnapshot(context.Background(), "org/x", "", []string{"[unclosed"}, t.TempDir()); err == nil {
		t.Error("FetchSnapshot() expected error for invalid pattern")
	}
}

func TestMatchAny(t *testing.T) {
	tests := []struct {
		patterns []string
		name     string
		want     bool
	}{
		{nil, "anything/at/all", true},
		{[]string{"*.json"}, "config.json", true},
		{[]string{"*.json"}, "sub/config.json", false},
		{[]string{"**/*.json"}, "sub/config.json", true},
		{[]string{"voices/*.pt", "*.pth"}, "voices/af_heart.pt", true},
		{[]string{"voices/*.pt"}, "kokoro-v1_0.pth", false},
	}
	for _, tt := range tests {
		if got := matchAny(tt.patterns, tt.name); got != tt.want {
			t.Errorf("matchAny(%v, %q) = %v, want %v", tt.patterns, tt.name, got, tt.want)
		}
	}
}

func TestEscapePath(t *testing.T) {
	if got := escapePath("ref_audios/my voice#1.wav"); got != "ref_audios/my%20voice%231.wav" {
		t.Errorf("escapePath() = %q", got)
	}
}
