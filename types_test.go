package models

import (
	"testing"
)

func TestAssetStateStatus(t *testing.T) {
	tests := []struct {
		state AssetState
		want  string
	}{
		{AssetState{}, "missing"},
		{AssetState{Present: true}, "incomplete"},
		{AssetState{Present: true, Complete: true}, "complete"},
	}
	for _, tt := range tests {
		if got := tt.state.Status(); got != tt.want {
			t.Errorf("Status(%+v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBatchResult(t *testing.T) {
	b := BatchResult{Results: []AcquireResult{
		{Asset: "Doubao", OK: true},
		{Asset: "Maple", OK: false},
		{Asset: "Luo Xiang", OK: true, AlreadyComplete: true},
	}}
	if b.OK() {
		t.Error("OK() = true with a failed member")
	}
	failed := b.Failed()
	if len(failed) != 1 || failed[0].Asset != "Maple" {
		t.Errorf("Failed() = %+v", failed)
	}

	if !(BatchResult{}).OK() {
		t.Error("empty batch not OK")
	}
}

func TestGroupRemoveResultOK(t *testing.T) {
	tests := []struct {
		name string
		res  GroupRemoveResult
		want bool
	}{
		{"empty", GroupRemoveResult{}, true},
		{"cancelled", GroupRemoveResult{Cancelled: true}, false},
		{"member failed", GroupRemoveResult{Members: []RemoveResult{{OK: true}, {OK: false}}}, false},
		{"declined shared", GroupRemoveResult{
			Members: []RemoveResult{{OK: true}},
			Shared:  []RemoveResult{{Cancelled: true}},
		}, true},
		{"shared failed", GroupRemoveResult{Shared: []RemoveResult{{OK: false}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.OK(); got != tt.want {
				t.Errorf("OK() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMinSizeFor(t *testing.T) {
	d := AssetDescriptor{MinSize: 2048}
	if got := d.minSizeFor(AssetFile{}); got != 2048 {
		t.Errorf("asset min size = %d", got)
	}
	if got := d.minSizeFor(AssetFile{MinSize: 10}); got != 10 {
		t.Errorf("file min size = %d", got)
	}
	if got := (AssetDescriptor{}).minSizeFor(AssetFile{}); got != DefaultMinFileSize {
		t.Errorf("default min size = %d", got)
	}
}

func TestHasDependent(t *testing.T) {
	d := AssetDescriptor{Dependents: []string{"Doubao", "Maple"}}
	if !d.HasDependent("doubao") {
		t.Error("HasDependent(doubao) = false")
	}
	if d.HasDependent("Trump") {
		t.Error("HasDependent(Trump) = true")
	}
}
