package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromRecorder(t *testing.T) {
	rec := NewPromRecorder("mofa_models")
	rec.IncAcquire("Doubao", "complete")
	rec.IncAcquire("Doubao", "complete")
	rec.IncFileFailure("Maple", "network")
	rec.IncRemove("Doubao", "removed")
	rec.ObserveAcquireDuration("Doubao", 1.5)

	if got := testutil.ToFloat64(rec.acquires.WithLabelValues("Doubao", "complete")); got != 2 {
		t.Errorf("acquire_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.fileFailures.WithLabelValues("Maple", "network")); got != 1 {
		t.Errorf("file_failures_total = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(rec.acquireDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}

	path := filepath.Join(t.TempDir(), "models.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `mofa_models_remove_total{asset="Doubao",outcome="removed"} 1`) {
		t.Errorf("textfile missing remove counter:\n%s", data)
	}
}

func TestManagerRecordsMetrics(t *testing.T) {
	rec := NewPromRecorder("test")
	client := testFakeClient()
	client.setFailure("org/voices", "a/w2.bin", fmt.Errorf("fetching: %w", ErrNetworkError))
	mgr, _ := newTestManager(t, client, WithMetrics(rec))

	if _, err := mgr.Acquire(context.Background(), "voiceA"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if got := testutil.ToFloat64(rec.acquires.WithLabelValues("voiceA", "incomplete")); got != 1 {
		t.Errorf("incomplete acquires = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.fileFailures.WithLabelValues("voiceA", "network")); got != 1 {
		t.Errorf("network failures = %v, want 1", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("x: %w", ErrRepositoryNotFound), "repository_not_found"},
		{ErrEntryNotFound, "entry_not_found"},
		{ErrAuthRequired, "auth_required"},
		{ErrIncompleteTransfer, "incomplete_transfer"},
		{ErrPermissionDenied, "permission_denied"},
		{ErrStorageError, "storage"},
		{ErrNetworkError, "network"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
