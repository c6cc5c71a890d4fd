package api

import (
	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
)

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	OpenProjects  int    `json:"open_projects"`
}

// ProjectsResponse is the body of GET /projects.
type ProjectsResponse struct {
	Projects []string `json:"projects"`
}

// CreateVersionRequest is the body of POST /projects/{id}/versions. An empty
// label takes the next free number.
type CreateVersionRequest struct {
	Label string `json:"label"`
}

// VersionsResponse is the body of GET /projects/{id}/versions.
type VersionsResponse struct {
	Versions []ports.VersionInfo `json:"versions"`
}

// HistoryResponse reports the undo and redo depths of a scope.
type HistoryResponse struct {
	Scope string `json:"scope"`
	Undo  int    `json:"undo"`
	Redo  int    `json:"redo"`
}

// ErrorResponse wraps a displayable error.
type ErrorResponse struct {
	Error domainerrors.Payload `json:"error"`
}
