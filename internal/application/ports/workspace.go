// Package ports defines the contracts between the gateway core and the
// workspaces, storage and remotes it drives.
package ports

import (
	"context"

	"github.com/jbctechsolutions/projectgate/internal/domain/version"
)

// WorkspaceHandle is an opaque loaded project resource. The core only relies
// on its identity and lifetime; optional capabilities are discovered through
// the Releaser, Sizer and BusyReporter interfaces.
type WorkspaceHandle interface{}

// Releaser is implemented by handles that own resources which must be freed
// when the handle leaves the cache.
type Releaser interface {
	Release() error
}

// Sizer is implemented by handles that can estimate their serialized size in
// bytes. The estimate drives the automatic sync threshold.
type Sizer interface {
	SizeHint() int64
}

// BusyReporter is implemented by handles whose underlying resource may be
// executing and temporarily refuse structural edits.
type BusyReporter interface {
	Busy() bool
}

// ChangeSource is implemented by handles that report mutations. OnChange
// registers fn and returns a function that removes the registration.
type ChangeSource interface {
	OnChange(fn func()) (unsubscribe func())
}

// Importable is implemented by handles whose content can be replaced from
// an encoded snapshot produced outside the gateway.
type Importable interface {
	Import(data []byte) error
}

// Loader loads the workspace of one project at the given version. Loads may
// block on I/O.
type Loader func(ctx context.Context, v version.ID) (WorkspaceHandle, error)

// ProjectLoader builds per-project loaders.
type ProjectLoader interface {
	// LoaderFor returns the loader for projectID.
	LoaderFor(projectID string) Loader
}

// WorkspaceCodec converts handles to and from their persisted byte form.
type WorkspaceCodec interface {
	// New returns an empty workspace for a project that has never been saved.
	New(projectID string) (WorkspaceHandle, error)

	// Encode serializes a handle.
	Encode(h WorkspaceHandle) ([]byte, error)

	// Decode restores a handle. Fixed versions are decoded read-only.
	Decode(projectID string, v version.ID, data []byte) (WorkspaceHandle, error)
}

// SizeOf returns the size hint of h, or 0 when h does not implement Sizer.
func SizeOf(h WorkspaceHandle) int64 {
	if s, ok := h.(Sizer); ok {
		return s.SizeHint()
	}
	return 0
}

// IsBusy reports whether h implements BusyReporter and is busy.
func IsBusy(h WorkspaceHandle) bool {
	if b, ok := h.(BusyReporter); ok {
		return b.Busy()
	}
	return false
}
