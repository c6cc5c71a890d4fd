package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		OpenProjects:  len(s.projects.Projects()),
	})
}

// handleListProjects handles GET /projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ProjectsResponse{Projects: s.projects.Projects()})
}

// handleOpen handles POST /projects/{projectID}.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	info, err := s.projects.Open(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

// handleInfo handles GET /projects/{projectID}.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.projects.Info(chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleClose handles DELETE /projects/{projectID}.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Close(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListVersions handles GET /projects/{projectID}/versions.
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.projects.ListVersions(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, VersionsResponse{Versions: versions})
}

// handleCreateVersion handles POST /projects/{projectID}/versions.
func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req CreateVersionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	info, err := s.projects.CreateVersion(r.Context(), chi.URLParam(r, "projectID"), req.Label)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

// handleGetVersion handles GET /projects/{projectID}/versions/{version} and
// returns the encoded workspace of that version, loading it if needed.
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	v, ok := s.parseVersion(w, r)
	if !ok {
		return
	}
	ctx := logging.WithVersionID(r.Context(), v.String())
	h, err := s.projects.Workspace(ctx, chi.URLParam(r, "projectID"), v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.codec.Encode(h)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDisposeVersion handles DELETE /projects/{projectID}/versions/{version}.
func (s *Server) handleDisposeVersion(w http.ResponseWriter, r *http.Request) {
	v, ok := s.parseVersion(w, r)
	if !ok {
		return
	}
	if err := s.projects.DisposeVersion(chi.URLParam(r, "projectID"), v); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleApply handles POST /projects/{projectID}/commands?scope=.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var spec command.Spec
	if !s.decodeBody(w, r, &spec) {
		return
	}
	if spec.Kind == "" {
		s.writeError(w, r, domainerrors.NewError(domainerrors.CodeValidation, "command kind is required", nil))
		return
	}
	projectID, scope := chi.URLParam(r, "projectID"), r.URL.Query().Get("scope")
	if err := s.projects.Apply(r.Context(), projectID, scope, spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondHistory(w, r, projectID, scope)
}

// handleUndo handles POST /projects/{projectID}/undo?scope=.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	projectID, scope := chi.URLParam(r, "projectID"), r.URL.Query().Get("scope")
	if err := s.projects.Undo(r.Context(), projectID, scope); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondHistory(w, r, projectID, scope)
}

// handleRedo handles POST /projects/{projectID}/redo?scope=.
func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	projectID, scope := chi.URLParam(r, "projectID"), r.URL.Query().Get("scope")
	if err := s.projects.Redo(r.Context(), projectID, scope); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondHistory(w, r, projectID, scope)
}

// handleHistory handles GET /projects/{projectID}/history?scope=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.respondHistory(w, r, chi.URLParam(r, "projectID"), r.URL.Query().Get("scope"))
}

func (s *Server) respondHistory(w http.ResponseWriter, r *http.Request, projectID, scope string) {
	undo, redo, err := s.projects.History(projectID, scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Scope: scope, Undo: undo, Redo: redo})
}

// handleSyncState handles GET /projects/{projectID}/sync.
func (s *Server) handleSyncState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.SyncState(chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleSyncNow handles POST /projects/{projectID}/sync. A failed sync run is
// reported through the returned state, not the status code.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := s.projects.SyncNow(r.Context(), projectID); err != nil && domainerrors.IsDeclined(err) {
		s.writeError(w, r, err)
		return
	}
	s.handleSyncState(w, r)
}

// handleEnableSync handles PUT /projects/{projectID}/sync.
func (s *Server) handleEnableSync(w http.ResponseWriter, r *http.Request) {
	if _, err := s.projects.EnableSync(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleSyncState(w, r)
}

// handleDisableSync handles DELETE /projects/{projectID}/sync.
func (s *Server) handleDisableSync(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DisableSync(chi.URLParam(r, "projectID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) parseVersion(w http.ResponseWriter, r *http.Request) (version.ID, bool) {
	v, err := version.Parse(chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, domainerrors.NewError(domainerrors.CodeValidation, err.Error(), nil))
		return version.ID{}, false
	}
	return v, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.writeError(w, r, domainerrors.NewError(domainerrors.CodeValidation, "invalid JSON body", err))
		return false
	}
	return true
}

// writeError maps err to a status code and a {kind, message} payload.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, ErrorResponse{Error: domainerrors.ToPayload(err)})
}

func statusFor(err error) int {
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeLoadFailed:
		// A load of a version that was never stored.
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeOperationNotAllowed:
		return http.StatusConflict
	case domainerrors.CodeValidation:
		return http.StatusBadRequest
	case domainerrors.CodeSyncThresholdExceeded:
		return http.StatusRequestEntityTooLarge
	case domainerrors.CodeUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
