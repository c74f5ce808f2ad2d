package models

import (
	"context"
)

// Check computes the local state of an asset.
func (m *manager) Check(ctx context.Context, name string) (AssetState, error) {
	d, err := m.catalog.Get(name)
	if err != nil {
		return AssetState{}, err
	}
	return m.checkAsset(d), nil
}

// minSize returns the effective minimum size of f: the per-asset config
// override first, then the catalog file, asset and global defaults.
func (m *manager) minSize(d AssetDescriptor, f AssetFile) int64 {
	if size, ok := m.thresholds[foldName(d.Name)]; ok {
		return size
	}
	return d.minSizeFor(f)
}

// checkAsset derives the state of d from the content store. Per-file detail
// is always filled in; the aggregate follows the rule that any missing file
// makes the asset absent with zero size.
func (m *manager) checkAsset(d AssetDescriptor) AssetState {
	state := AssetState{
		Present:  true,
		Complete: true,
		Files:    make([]FileState, 0, len(d.Files)),
	}

	for _, f := range d.Files {
		p := m.storage.filePath(d.Family, f.Local)
		st := FileState{
			Local:   f.Local,
			Path:    p,
			MinSize: m.minSize(d, f),
		}
		size, exists, err := m.storage.stat(p)
		if err != nil {
			m.logger.Warn("cannot stat asset file", "asset", d.Name, "path", p, "error", err)
		}
		st.Exists = exists
		st.Size = size
		st.Complete = exists && size >= st.MinSize
		state.Files = append(state.Files, st)

		if !exists {
			state.Present = false
		}
		if !st.Complete {
			state.Complete = false
		}
		state.SizeBytes += size
	}

	if !state.Present {
		state.Complete = false
		state.SizeBytes = 0
	}
	return state
}

// onDiskBytes returns the size and count of the files in state that exist,
// whether or not the asset is present as a whole.
func onDiskBytes(state AssetState) (int64, int) {
	var size int64
	var count int
	for _, f := range state.Files {
		if f.Exists {
			size += f.Size
			count++
		}
	}
	return size, count
}
