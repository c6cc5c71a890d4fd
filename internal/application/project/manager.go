// Package project ties the per-project handle cache, the command engine and
// the syncer together into the lifecycle of open projects.
package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	appcommand "github.com/jbctechsolutions/projectgate/internal/application/command"
	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	"github.com/jbctechsolutions/projectgate/internal/application/projectsync"
	"github.com/jbctechsolutions/projectgate/internal/application/workspace"
	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/tracing"
)

// Options configures a Manager.
type Options struct {
	Loader   ports.ProjectLoader
	Saver    ports.LocalSaver
	Uploader ports.RemoteUploader
	Versions ports.VersionStore
	Engine   *appcommand.Engine

	MaxFixedVersions int
	// DebounceDelay is handed to every syncer; zero disables automatic sync.
	DebounceDelay time.Duration
	// DisposeOnThreshold disposes a project's syncer when an automatic sync
	// is refused by the size threshold.
	DisposeOnThreshold bool

	Logger  *logging.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Metrics
}

// Info describes an open project.
type Info struct {
	ID       string              `json:"id"`
	OpenedAt time.Time           `json:"opened_at"`
	Versions []string            `json:"cached_versions"`
	Cache    workspace.Stats     `json:"cache"`
	Sync     *syncstate.Snapshot `json:"sync,omitempty"`
	AutoSync bool                `json:"auto_sync"`
}

type openProject struct {
	id       string
	openedAt time.Time
	cache    *workspace.HandleCache

	mu     sync.Mutex
	syncer *projectsync.Syncer
}

// Manager owns the open projects of the process. It is created once by the
// application container and passed to the presentation layer.
type Manager struct {
	opts   Options
	logger *logging.Logger
	tracer *tracing.Tracer

	mu       sync.Mutex
	projects map[string]*openProject
	closed   bool
}

// NewManager creates a Manager with no open projects.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts,
		logger:   logging.OrDefault(opts.Logger).With("component", "projects"),
		tracer:   tracing.OrDefault(opts.Tracer),
		projects: make(map[string]*openProject),
	}
}

// ValidateID rejects project ids that cannot be used as file or URL path
// names.
func ValidateID(projectID string) error {
	if projectID == "" || strings.ContainsAny(projectID, `/\`) || strings.HasPrefix(projectID, ".") {
		return domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("invalid project id %q", projectID), nil)
	}
	return nil
}

// Open opens projectID and loads its current workspace. Opening an open
// project returns its info without reloading.
func (m *Manager) Open(ctx context.Context, projectID string) (*Info, error) {
	if err := ValidateID(projectID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, domainerrors.NotAllowed("project manager is shut down")
	}
	p, exists := m.projects[projectID]
	if !exists {
		p = &openProject{
			id:       projectID,
			openedAt: time.Now(),
			cache: workspace.NewHandleCache(m.opts.Loader.LoaderFor(projectID), workspace.Options{
				ProjectID:        projectID,
				MaxFixedVersions: m.opts.MaxFixedVersions,
				Logger:           m.opts.Logger,
				Tracer:           m.opts.Tracer,
				Metrics:          m.opts.Metrics,
			}),
		}
		m.projects[projectID] = p
	}
	m.mu.Unlock()

	if _, err := p.cache.GetOrLoad(ctx, version.Current); err != nil {
		if !exists {
			m.forget(p)
			p.cache.Close()
		}
		return nil, err
	}

	if !exists {
		m.opts.Metrics.ProjectOpened()
		m.logger.InfoContext(ctx, "project opened", "project_id", projectID)
	}
	return m.info(p), nil
}

// forget removes p from the open set if it is still registered.
func (m *Manager) forget(p *openProject) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projects[p.id] != p {
		return false
	}
	delete(m.projects, p.id)
	return true
}

func (m *Manager) get(projectID string) (*openProject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, domainerrors.NotFound("project %q is not open", projectID)
	}
	return p, nil
}

// IsOpen reports whether projectID is open.
func (m *Manager) IsOpen(projectID string) bool {
	_, err := m.get(projectID)
	return err == nil
}

// Projects returns the ids of open projects in lexical order.
func (m *Manager) Projects() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Info describes an open project.
func (m *Manager) Info(projectID string) (*Info, error) {
	p, err := m.get(projectID)
	if err != nil {
		return nil, err
	}
	return m.info(p), nil
}

func (m *Manager) info(p *openProject) *Info {
	info := &Info{
		ID:       p.id,
		OpenedAt: p.openedAt,
		Cache:    p.cache.Stats(),
	}
	for _, v := range p.cache.Versions() {
		info.Versions = append(info.Versions, v.String())
	}
	p.mu.Lock()
	if p.syncer != nil {
		snap := p.syncer.State()
		info.Sync = &snap
		info.AutoSync = p.syncer.AutoSyncEnabled() && !p.syncer.Disposed()
	}
	p.mu.Unlock()
	return info
}

// Workspace returns the workspace of an open project at v, loading it on
// first access.
func (m *Manager) Workspace(ctx context.Context, projectID string, v version.ID) (ports.WorkspaceHandle, error) {
	p, err := m.get(projectID)
	if err != nil {
		return nil, err
	}
	return p.cache.GetOrLoad(ctx, v)
}

// Current returns the current workspace of an open project.
func (m *Manager) Current(ctx context.Context, projectID string) (ports.WorkspaceHandle, error) {
	return m.Workspace(ctx, projectID, version.Current)
}

// DisposeVersion drops a cached fixed version of an open project. The
// current workspace is bound to the project's syncer and command history for
// as long as the project is open, so it is only released by Close.
func (m *Manager) DisposeVersion(projectID string, v version.ID) error {
	p, err := m.get(projectID)
	if err != nil {
		return err
	}
	if v.IsCurrent() {
		return domainerrors.NotAllowed("current workspace of project %q is released by closing the project", projectID)
	}
	if !p.cache.Contains(v) {
		return domainerrors.NotFound("version %s of project %q is not loaded", v, projectID)
	}
	p.cache.Dispose(v)
	return nil
}

// Apply runs a command against an open project under scope.
func (m *Manager) Apply(ctx context.Context, projectID, scope string, spec command.Spec) error {
	if _, err := m.get(projectID); err != nil {
		return err
	}
	return m.opts.Engine.Apply(ctx, command.NewScopeKey(projectID, scope), spec)
}

// Undo reverts the latest command of an open project under scope.
func (m *Manager) Undo(ctx context.Context, projectID, scope string) error {
	if _, err := m.get(projectID); err != nil {
		return err
	}
	return m.opts.Engine.Undo(ctx, command.NewScopeKey(projectID, scope))
}

// Redo re-applies the latest undone command of an open project under scope.
func (m *Manager) Redo(ctx context.Context, projectID, scope string) error {
	if _, err := m.get(projectID); err != nil {
		return err
	}
	return m.opts.Engine.Redo(ctx, command.NewScopeKey(projectID, scope))
}

// History returns the undo and redo depths of an open project under scope.
func (m *Manager) History(projectID, scope string) (undo, redo int, err error) {
	if _, err := m.get(projectID); err != nil {
		return 0, 0, err
	}
	undo, redo = m.opts.Engine.Depths(command.NewScopeKey(projectID, scope))
	return undo, redo, nil
}

// EnableSync attaches a syncer to the current workspace of an open project.
// A live syncer is reused; a disposed one is replaced.
func (m *Manager) EnableSync(ctx context.Context, projectID string) (*projectsync.Syncer, error) {
	p, err := m.get(projectID)
	if err != nil {
		return nil, err
	}
	h, err := p.cache.GetOrLoad(ctx, version.Current)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syncer != nil && !p.syncer.Disposed() {
		return p.syncer, nil
	}
	p.syncer = projectsync.NewSyncer(h, projectsync.Options{
		ProjectID:           projectID,
		Saver:               m.opts.Saver,
		Uploader:            m.opts.Uploader,
		DebounceDelay:       m.opts.DebounceDelay,
		OnThresholdExceeded: m.onThresholdExceeded,
		Logger:              m.opts.Logger,
		Tracer:              m.opts.Tracer,
		Metrics:             m.opts.Metrics,
	})
	m.logger.InfoContext(ctx, "sync enabled",
		"project_id", projectID,
		"debounce_delay", m.opts.DebounceDelay.String())
	return p.syncer, nil
}

func (m *Manager) onThresholdExceeded(s *projectsync.Syncer, err error) {
	if !m.opts.DisposeOnThreshold {
		return
	}
	s.Dispose()
	m.logger.Warn("automatic sync disabled for project",
		"project_id", s.ProjectID(),
		"reason", domainerrors.CodeOf(err))
}

// DisableSync disposes the syncer of an open project. The last sync state
// stays readable.
func (m *Manager) DisableSync(projectID string) error {
	p, err := m.get(projectID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syncer == nil {
		return domainerrors.NotFound("sync is not enabled for project %q", projectID)
	}
	p.syncer.Dispose()
	return nil
}

// SyncNow saves and uploads an open project, enabling sync first if needed.
func (m *Manager) SyncNow(ctx context.Context, projectID string) error {
	s, err := m.EnableSync(ctx, projectID)
	if err != nil {
		return err
	}
	return s.SyncNow(logging.WithProjectID(ctx, projectID))
}

// SyncState returns the sync state of an open project.
func (m *Manager) SyncState(projectID string) (syncstate.Snapshot, error) {
	p, err := m.get(projectID)
	if err != nil {
		return syncstate.Snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syncer == nil {
		return syncstate.Snapshot{}, domainerrors.NotFound("sync is not enabled for project %q", projectID)
	}
	return p.syncer.State(), nil
}

// OnSyncStateChange registers fn with the syncer of an open project,
// enabling sync first if needed.
func (m *Manager) OnSyncStateChange(ctx context.Context, projectID string, fn syncstate.Listener) (remove func(), err error) {
	s, err := m.EnableSync(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.AddOnStateChangeListener(fn), nil
}

// CreateVersion stores the current workspace of an open project as a fixed
// version. An empty label takes the next number.
func (m *Manager) CreateVersion(ctx context.Context, projectID, label string) (*ports.VersionInfo, error) {
	if m.opts.Versions == nil {
		return nil, domainerrors.NotAllowed("version snapshots are not configured")
	}
	if label != "" {
		if err := version.ValidateLabel(label); err != nil {
			return nil, domainerrors.NewError(domainerrors.CodeValidation, "invalid version label", err)
		}
	}
	h, err := m.Current(ctx, projectID)
	if err != nil {
		return nil, err
	}
	info, err := m.opts.Versions.SaveVersion(ctx, projectID, label, h)
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "version created",
		"project_id", projectID,
		"version", version.Fixed(info.Label).String(),
		"bytes", info.Size)
	return info, nil
}

// ListVersions lists the stored fixed versions of a project, open or not.
func (m *Manager) ListVersions(ctx context.Context, projectID string) ([]ports.VersionInfo, error) {
	if m.opts.Versions == nil {
		return nil, domainerrors.NotAllowed("version snapshots are not configured")
	}
	if err := ValidateID(projectID); err != nil {
		return nil, err
	}
	return m.opts.Versions.ListVersions(ctx, projectID)
}

// Import replaces the current workspace of an open project with an encoded
// snapshot produced outside the gateway. The command history of the project
// no longer applies and is dropped.
func (m *Manager) Import(ctx context.Context, projectID string, data []byte) (err error) {
	ctx, span := m.tracer.Start(ctx, "project.import")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		span.End()
	}()
	tracing.SetAttribute(ctx, "project.id", projectID)
	tracing.SetAttribute(ctx, "import.bytes", len(data))

	h, err := m.Current(ctx, projectID)
	if err != nil {
		return err
	}
	imp, ok := h.(ports.Importable)
	if !ok {
		return domainerrors.NotAllowed("workspace of project %q cannot import content", projectID)
	}
	if err := imp.Import(data); err != nil {
		return err
	}
	m.opts.Engine.DisposeStacks(projectID)
	tracing.AddEvent(ctx, "project.history_dropped")
	return nil
}

// Close disposes the syncer, the command history and every cached handle
// of an open project.
func (m *Manager) Close(ctx context.Context, projectID string) error {
	p, err := m.get(projectID)
	if err != nil {
		return err
	}
	if !m.forget(p) {
		return domainerrors.NotFound("project %q is not open", projectID)
	}
	m.closeProject(p)
	m.logger.InfoContext(ctx, "project closed", "project_id", projectID)
	return nil
}

func (m *Manager) closeProject(p *openProject) {
	p.mu.Lock()
	if p.syncer != nil {
		p.syncer.Dispose()
	}
	p.mu.Unlock()
	m.opts.Engine.DisposeStacks(p.id)
	p.cache.Close()
	m.opts.Metrics.ProjectClosed()
}

// Shutdown closes every open project and refuses further opens. Projects
// that are not SYNCED are reported in the returned error.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	projects := make([]*openProject, 0, len(m.projects))
	for _, p := range m.projects {
		projects = append(projects, p)
	}
	m.projects = make(map[string]*openProject)
	m.mu.Unlock()

	var errs []error
	for _, p := range projects {
		p.mu.Lock()
		if p.syncer != nil {
			if st := p.syncer.State().State; st != syncstate.Synced {
				errs = append(errs, domainerrors.NotAllowed("project %q closed while %s", p.id, st))
			}
		}
		p.mu.Unlock()
		m.closeProject(p)
	}
	m.logger.InfoContext(ctx, "project manager shut down", "projects", len(projects))
	return errors.Join(errs...)
}
