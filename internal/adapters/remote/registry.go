// Package remote provides the registry of remote uploaders and the uploader
// used when no remote store is configured.
package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
)

// Registry manages the registration and lookup of remote uploaders by name.
type Registry struct {
	mu        sync.RWMutex
	uploaders map[string]ports.RemoteUploader
	order     []string // maintains registration order
}

// NewRegistry creates a new empty uploader registry.
func NewRegistry() *Registry {
	return &Registry{
		uploaders: make(map[string]ports.RemoteUploader),
		order:     make([]string, 0),
	}
}

// Register adds an uploader to the registry.
// If an uploader with the same name already exists, it will be replaced.
func (r *Registry) Register(name string, u ports.RemoteUploader) error {
	if u == nil {
		return fmt.Errorf("uploader cannot be nil")
	}
	if name == "" {
		return fmt.Errorf("uploader name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.uploaders[name]; !exists {
		r.order = append(r.order, name)
	}
	r.uploaders[name] = u
	return nil
}

// Get retrieves an uploader by name.
// Returns nil if the uploader is not found.
func (r *Registry) Get(name string) ports.RemoteUploader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uploaders[name]
}

// GetRequired retrieves an uploader by name, returning NOT_FOUND if it is
// not registered.
func (r *Registry) GetRequired(name string) (ports.RemoteUploader, error) {
	u := r.Get(name)
	if u == nil {
		return nil, domainerrors.NotFound("remote uploader %q", name)
	}
	return u, nil
}

// List returns all registered uploader names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Remove removes an uploader from the registry.
// Returns true if the uploader was found and removed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.uploaders[name]; !exists {
		return false
	}
	delete(r.uploaders, name)

	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Count returns the number of registered uploaders.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.uploaders)
}

// Nop is an uploader for projects without a remote store. It accepts every
// upload and still enforces its automatic size threshold.
type Nop struct {
	Threshold int64
}

var _ ports.RemoteUploader = Nop{}

// UploadProject implements ports.RemoteUploader.
func (Nop) UploadProject(ctx context.Context, projectID string, h ports.WorkspaceHandle) error {
	return ctx.Err()
}

// UploadProjectWithThreshold implements ports.RemoteUploader.
func (n Nop) UploadProjectWithThreshold(ctx context.Context, projectID string, h ports.WorkspaceHandle, sizeHint int64) error {
	if n.Threshold > 0 && sizeHint > n.Threshold {
		return domainerrors.ThresholdExceeded(sizeHint, n.Threshold)
	}
	return ctx.Err()
}
