package ports

import (
	"context"
	"time"
)

// LocalSaver persists a project's current workspace to local storage.
// Implementations are synchronous and may be slow.
type LocalSaver interface {
	SaveProject(ctx context.Context, projectID string, h WorkspaceHandle) error
}

// RemoteUploader pushes a project's workspace to the remote store.
type RemoteUploader interface {
	// UploadProject uploads unconditionally.
	UploadProject(ctx context.Context, projectID string, h WorkspaceHandle) error

	// UploadProjectWithThreshold uploads unless sizeHint exceeds the
	// uploader's automatic size threshold, in which case it returns a
	// SYNC_THRESHOLD_EXCEEDED error without contacting the remote.
	UploadProjectWithThreshold(ctx context.Context, projectID string, h WorkspaceHandle, sizeHint int64) error
}

// VersionInfo describes a stored fixed version.
type VersionInfo struct {
	ProjectID string    `json:"project_id"`
	Label     string    `json:"label"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// VersionStore persists immutable fixed versions of a project.
type VersionStore interface {
	// SaveVersion snapshots h as the fixed version label. Labels are unique
	// per project.
	SaveVersion(ctx context.Context, projectID, label string, h WorkspaceHandle) (*VersionInfo, error)

	// ListVersions returns the fixed versions of a project, oldest first.
	ListVersions(ctx context.Context, projectID string) ([]VersionInfo, error)
}
