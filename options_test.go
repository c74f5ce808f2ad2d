package models

import (
	"net/http"
	"testing"
	"time"
)

func TestWithConcurrency(t *testing.T) {
	tests := []struct {
		name  string
		input int
		want  int
	}{
		{"zero clamped to 1", 0, 1},
		{"negative clamped to 1", -5, 1},
		{"above max clamped to MaxConcurrency", 100, MaxConcurrency},
		{"exactly MaxConcurrency", MaxConcurrency, MaxConcurrency},
		{"valid value preserved", 8, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newAcquireConfig()
			WithConcurrency(tt.input)(cfg)
			if cfg.concurrency != tt.want {
				t.Errorf("concurrency = %d, want %d", cfg.concurrency, tt.want)
			}
		})
	}

	if cfg := newAcquireConfig(); cfg.concurrency != DefaultConcurrency {
		t.Errorf("default concurrency = %d, want %d", cfg.concurrency, DefaultConcurrency)
	}
}

func TestAcquireOptions(t *testing.T) {
	cfg := newAcquireConfig()
	if cfg.force || cfg.progressFn != nil {
		t.Errorf("defaults = %+v", cfg)
	}

	called := false
	WithForce()(cfg)
	WithProgress(func(AcquireProgress) { called = true })(cfg)
	if !cfg.force {
		t.Error("WithForce() not applied")
	}
	cfg.progressFn(AcquireProgress{})
	if !called {
		t.Error("WithProgress() not applied")
	}
}

func TestManagerDefaultConcurrency(t *testing.T) {
	m := &manager{concurrency: 7}
	if cfg := m.newAcquireConfig(nil); cfg.concurrency != 7 {
		t.Errorf("concurrency = %d, want 7", cfg.concurrency)
	}
	if cfg := m.newAcquireConfig([]AcquireOption{WithConcurrency(2)}); cfg.concurrency != 2 {
		t.Errorf("concurrency = %d, want option to win", cfg.concurrency)
	}
	if cfg := (&manager{}).newAcquireConfig(nil); cfg.concurrency != DefaultConcurrency {
		t.Errorf("concurrency = %d, want default", cfg.concurrency)
	}
}

func TestRemoveOptions(t *testing.T) {
	cfg := &removeConfig{}
	WithCascade()(cfg)
	WithConfirm(AlwaysConfirm)(cfg)
	if !cfg.cascade {
		t.Error("WithCascade() not applied")
	}
	if cfg.confirm == nil || !cfg.confirm("Remove?", Impact{}) {
		t.Error("WithConfirm(AlwaysConfirm) not applied")
	}
}

func TestManagerOptions(t *testing.T) {
	cfg := newManagerConfig()
	if cfg.hubEndpoint != DefaultHubEndpoint || cfg.lockTimeout != DefaultLockTimeout {
		t.Errorf("defaults = %+v", cfg)
	}
	if _, ok := cfg.metrics.(noopRecorder); !ok {
		t.Errorf("default metrics = %T", cfg.metrics)
	}

	client := &http.Client{}
	fake := newFakeClient()
	rec := NewPromRecorder("test")
	WithHTTPClient(client)(cfg)
	WithRepositoryClient(fake)(cfg)
	WithHub("", "hf_token")(cfg)
	WithMetrics(rec)(cfg)
	WithMetrics(nil)(cfg)
	WithLockTimeout(time.Second)(cfg)

	if cfg.httpClient != client {
		t.Error("WithHTTPClient() not applied")
	}
	if cfg.client != fake {
		t.Error("WithRepositoryClient() not applied")
	}
	if cfg.hubEndpoint != DefaultHubEndpoint || cfg.hubToken != "hf_token" {
		t.Errorf("WithHub() = %q, %q", cfg.hubEndpoint, cfg.hubToken)
	}
	if cfg.metrics != rec {
		t.Error("WithMetrics(nil) replaced the recorder")
	}
	if cfg.lockTimeout != time.Second {
		t.Errorf("lockTimeout = %v", cfg.lockTimeout)
	}

	WithHub("https://hf-mirror.com", "")(cfg)
	if cfg.hubEndpoint != "https://hf-mirror.com" {
		t.Errorf("hubEndpoint = %q", cfg.hubEndpoint)
	}
}
