package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for asset management operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrUnknownAsset indicates the name is not in the catalog.
	// This is a catalog miss, distinct from an asset that is not downloaded.
	ErrUnknownAsset = errors.New("models: unknown asset")

	// ErrUnknownGroup indicates the dependency group is not in the catalog.
	ErrUnknownGroup = errors.New("models: unknown asset group")

	// ErrIncompleteTransfer indicates a file exists but is below its
	// minimum viable size after a fetch.
	ErrIncompleteTransfer = errors.New("models: incomplete transfer")

	// ErrRepositoryNotFound indicates the remote repository does not exist.
	ErrRepositoryNotFound = errors.New("models: repository not found")

	// ErrEntryNotFound indicates a file does not exist in the remote repository.
	ErrEntryNotFound = errors.New("models: file not found in repository")

	// ErrAuthRequired indicates the repository is gated or private.
	ErrAuthRequired = errors.New("models: repository requires authentication")

	// ErrPermissionDenied indicates a local filesystem permission failure.
	ErrPermissionDenied = errors.New("models: permission denied")

	// ErrDependencyConflict indicates a shared asset still has present dependents.
	ErrDependencyConflict = errors.New("models: shared asset still in use")

	// ErrNetworkError indicates a network or connection failure.
	ErrNetworkError = errors.New("models: network error")

	// ErrStorageError indicates a filesystem operation failed.
	ErrStorageError = errors.New("models: storage error")

	// ErrStoreBusy indicates another process holds the store lock.
	ErrStoreBusy = errors.New("models: store is locked by another process")

	// ErrInvalidCatalog indicates the catalog definition violates an invariant.
	ErrInvalidCatalog = errors.New("models: invalid catalog")
)

// FileError records a failure on one file of an asset.
type FileError struct {
	// Path is the local path of the file relative to its family root.
	Path string `json:"path"`

	// Repository is the remote repository the file belongs to.
	Repository string `json:"repository"`

	// Err is the underlying error.
	Err error `json:"-"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Path, e.Repository, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// MarshalText lets FileError appear as its message in JSON output.
func (e FileError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// DependencyConflictError is returned when removal of a shared asset is
// refused because dependents are still present.
type DependencyConflictError struct {
	Asset      string
	Dependents []string
}

func (e *DependencyConflictError) Error() string {
	return fmt.Sprintf("models: %s is still required by %s", e.Asset, strings.Join(e.Dependents, ", "))
}

func (e *DependencyConflictError) Is(target error) bool {
	return target == ErrDependencyConflict
}

// classifyFSError maps a filesystem error onto the sentinel taxonomy.
func classifyFSError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrStorageError) {
		return err
	}
	if isPermission(err) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageError, err)
}
