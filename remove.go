package models

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Remove deletes an asset's files after confirmation.
func (m *manager) Remove(ctx context.Context, name string, opts ...RemoveOption) (RemoveResult, error) {
	cfg := &removeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	d, err := m.catalog.Get(name)
	if err != nil {
		return RemoveResult{Asset: name}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.remove(ctx, d, cfg)
}

// remove runs the resolve → ownership → confirm → delete → verify sequence.
// The caller holds opMu.
func (m *manager) remove(ctx context.Context, d AssetDescriptor, cfg *removeConfig) (RemoveResult, error) {
	op := uuid.NewString()
	res := RemoveResult{Asset: d.Name}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	var dependents []AssetDescriptor
	if d.Shared {
		dependents = m.dependentsOnDisk(d)
		if len(dependents) > 0 && !cfg.cascade {
			conflict := &DependencyConflictError{Asset: d.Name, Dependents: assetNames(dependents)}
			m.logger.Warn("removal refused", "op", op, "asset", d.Name, "dependents", conflict.Dependents)
			m.metrics.IncRemove(d.Name, "conflict")
			return res, conflict
		}
	}

	targets := append(slices.Clone(dependents), d)
	impact := m.impactOf(targets)
	if impact.FileCount == 0 {
		res.OK = true
		m.logger.Debug("nothing to remove", "op", op, "asset", d.Name)
		return res, nil
	}

	prompt := fmt.Sprintf("Remove %s (%d files, %s)?", d.Name, impact.FileCount, humanize.IBytes(uint64(impact.SizeBytes)))
	if len(dependents) > 0 {
		prompt = fmt.Sprintf("Remove %s and its dependents %s (%d files, %s)?",
			d.Name, strings.Join(assetNames(dependents), ", "), impact.FileCount, humanize.IBytes(uint64(impact.SizeBytes)))
	}
	if cfg.confirm == nil || !cfg.confirm(prompt, impact) {
		res.Cancelled = true
		m.logger.Info("removal cancelled", "op", op, "asset", d.Name)
		m.metrics.IncRemove(d.Name, "cancelled")
		return res, nil
	}

	families := make([]string, 0, len(targets))
	for _, t := range targets {
		families = append(families, t.Family)
	}
	unlock, err := m.lockFamilies(ctx, families...)
	if err != nil {
		return res, err
	}
	defer unlock()

	for _, dep := range dependents {
		res.Cascaded = append(res.Cascaded, m.deleteAsset(op, dep))
	}

	// The shared asset goes last, and only once no dependent has files left.
	if remaining := m.dependentsOnDisk(d); len(remaining) > 0 {
		conflict := &DependencyConflictError{Asset: d.Name, Dependents: assetNames(remaining)}
		m.logger.Warn("cascade left dependents behind", "op", op, "asset", d.Name, "dependents", conflict.Dependents)
		m.metrics.IncRemove(d.Name, "conflict")
		return res, conflict
	}

	deleted := m.deleteAsset(op, d)
	res.Removed = deleted.Removed
	res.Errors = deleted.Errors
	res.OK = deleted.OK
	for _, c := range res.Cascaded {
		if !c.OK {
			res.OK = false
		}
	}
	return res, nil
}

// RemoveGroup deletes every member of group, then offers each orphaned shared asset.
func (m *manager) RemoveGroup(ctx context.Context, group string, opts ...RemoveOption) (GroupRemoveResult, error) {
	cfg := &removeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	members, err := m.catalog.Members(group)
	if err != nil {
		return GroupRemoveResult{Group: group}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	res := GroupRemoveResult{Group: group}
	if err := m.removeMembers(ctx, group, members, cfg, &res); err != nil || res.Cancelled {
		return res, err
	}

	// Shared assets are never removed implicitly: each one gets its own prompt.
	for _, shared := range m.catalog.SharedFor(group) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, count := onDiskBytes(m.checkAsset(shared))
		if count == 0 {
			continue
		}
		if others := m.dependentsOnDisk(shared); len(others) > 0 {
			m.logger.Info("keeping shared asset", "asset", shared.Name, "dependents", assetNames(others))
			continue
		}
		r, err := m.remove(ctx, shared, &removeConfig{confirm: cfg.confirm})
		res.Shared = append(res.Shared, r)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// removeMembers deletes the members of a group under a single confirmation.
func (m *manager) removeMembers(ctx context.Context, group string, members []AssetDescriptor, cfg *removeConfig, res *GroupRemoveResult) error {
	op := uuid.NewString()

	var onDisk []AssetDescriptor
	for _, d := range members {
		if _, count := onDiskBytes(m.checkAsset(d)); count > 0 {
			onDisk = append(onDisk, d)
		}
	}
	if len(onDisk) == 0 {
		return nil
	}

	impact := m.impactOf(onDisk)
	prompt := fmt.Sprintf("Remove %d asset(s) of %s (%d files, %s)?",
		len(onDisk), group, impact.FileCount, humanize.IBytes(uint64(impact.SizeBytes)))
	if cfg.confirm == nil || !cfg.confirm(prompt, impact) {
		res.Cancelled = true
		m.logger.Info("group removal cancelled", "op", op, "group", group)
		return nil
	}

	families := make([]string, 0, len(onDisk))
	for _, d := range onDisk {
		families = append(families, d.Family)
	}
	unlock, err := m.lockFamilies(ctx, families...)
	if err != nil {
		return err
	}
	defer unlock()

	for _, d := range onDisk {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Members = append(res.Members, m.deleteAsset(op, d))
	}
	return nil
}

// deleteAsset removes every file of d, best effort, and verifies the result.
// The caller holds the family lock.
func (m *manager) deleteAsset(op string, d AssetDescriptor) RemoveResult {
	res := RemoveResult{Asset: d.Name}
	root := m.storage.root(d.Family)

	for _, f := range d.Files {
		p := m.storage.filePath(d.Family, f.Local)
		_, exists, _ := m.storage.stat(p)
		if err := m.storage.removeFile(p); err != nil {
			res.Errors = append(res.Errors, FileError{Path: f.Local, Repository: d.Repository, Err: err})
			continue
		}
		if exists {
			res.Removed = append(res.Removed, f.Local)
		}
		m.storage.pruneEmptyDirs(root, filepath.Dir(p))
	}

	// Post-condition: every targeted file is gone.
	res.OK = true
	for _, f := range m.checkAsset(d).Files {
		if f.Exists {
			res.OK = false
			if !hasFileError(res.Errors, f.Local) {
				res.Errors = append(res.Errors, FileError{
					Path:       f.Local,
					Repository: d.Repository,
					Err:        fmt.Errorf("%w: file still present after removal", ErrStorageError),
				})
			}
		}
	}

	outcome := "removed"
	if !res.OK {
		outcome = "failed"
		m.logger.Warn("asset partially removed", "op", op, "asset", d.Name, "errors", len(res.Errors))
	} else {
		m.logger.Info("asset removed", "op", op, "asset", d.Name, "files", len(res.Removed))
	}
	m.metrics.IncRemove(d.Name, outcome)
	return res
}

// dependentsOnDisk returns the dependents of shared that still have any file on disk.
func (m *manager) dependentsOnDisk(shared AssetDescriptor) []AssetDescriptor {
	var out []AssetDescriptor
	for _, name := range shared.Dependents {
		dep, err := m.catalog.Get(name)
		if err != nil || dep.Name == shared.Name {
			continue
		}
		if _, count := onDiskBytes(m.checkAsset(dep)); count > 0 {
			out = append(out, dep)
		}
	}
	return out
}

// impactOf summarises the files of assets that exist on disk.
func (m *manager) impactOf(assets []AssetDescriptor) Impact {
	var impact Impact
	for _, d := range assets {
		size, count := onDiskBytes(m.checkAsset(d))
		if count == 0 {
			continue
		}
		impact.Assets = append(impact.Assets, d.Name)
		impact.FileCount += count
		impact.SizeBytes += size
	}
	return impact
}

func assetNames(assets []AssetDescriptor) []string {
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Name
	}
	return names
}

func hasFileError(errs []FileError, local string) bool {
	for _, e := range errs {
		if e.Path == local {
			return true
		}
	}
	return false
}
