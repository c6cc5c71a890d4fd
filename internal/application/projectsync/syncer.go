package projectsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/debounce"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/tracing"
)

// Sync triggers.
const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

// Options configures a Syncer.
type Options struct {
	ProjectID string
	Saver     ports.LocalSaver
	Uploader  ports.RemoteUploader

	// DebounceDelay is the quiet period after the last workspace change
	// before an automatic sync. Zero disables automatic sync.
	DebounceDelay time.Duration

	// OnThresholdExceeded is called from the debounced path when an
	// automatic sync is refused by the size threshold. The syncer itself
	// keeps observing changes; disposing it is the owner's decision.
	OnThresholdExceeded func(s *Syncer, err error)

	Logger  *logging.Logger
	Tracer  *tracing.Tracer
	Metrics *metrics.Metrics
}

// Syncer saves a project's current workspace locally and uploads it. It
// observes workspace changes, marks the project DIRTY and, when a debounce
// delay is configured, runs an automatic sync after each burst of changes.
type Syncer struct {
	projectID string
	handle    ports.WorkspaceHandle
	saver     ports.LocalSaver
	uploader  ports.RemoteUploader
	delay     time.Duration
	onLimit   func(*Syncer, error)
	logger    *logging.Logger
	tracer    *tracing.Tracer
	metrics   *metrics.Metrics

	store     *StateStore
	debouncer *debounce.Debouncer

	unobserve   func()
	stopMetrics func()
	disposeOnce sync.Once
	mu          sync.Mutex
	disposed    bool
}

// NewSyncer creates a syncer for the current workspace h. If h implements
// ports.ChangeSource, the syncer starts observing it immediately. No I/O is
// performed and the initial state is SYNCED.
func NewSyncer(h ports.WorkspaceHandle, opts Options) *Syncer {
	logger := logging.OrDefault(opts.Logger).With("component", "syncer", "project", opts.ProjectID)
	s := &Syncer{
		projectID: opts.ProjectID,
		handle:    h,
		saver:     opts.Saver,
		uploader:  opts.Uploader,
		delay:     opts.DebounceDelay,
		onLimit:   opts.OnThresholdExceeded,
		logger:    logger,
		tracer:    tracing.OrDefault(opts.Tracer),
		metrics:   opts.Metrics,
		store:     NewStateStore(),
		debouncer: debounce.New(),
	}

	s.stopMetrics = s.store.AddOnStateChangeListener(func(snap syncstate.Snapshot) {
		s.metrics.SyncTransition(string(snap.State))
		logging.LogSyncTransition(s.logger, s.projectID, string(snap.State))
	})

	if src, ok := h.(ports.ChangeSource); ok {
		s.unobserve = src.OnChange(s.onWorkspaceChanged)
	}
	return s
}

// ProjectID returns the synced project.
func (s *Syncer) ProjectID() string {
	return s.projectID
}

// Store returns the underlying state store.
func (s *Syncer) Store() *StateStore {
	return s.store
}

// State returns the current sync state and error.
func (s *Syncer) State() syncstate.Snapshot {
	return s.store.Snapshot()
}

// AddOnStateChangeListener registers fn for state changes and returns a
// function that removes it.
func (s *Syncer) AddOnStateChangeListener(fn syncstate.Listener) (remove func()) {
	return s.store.AddOnStateChangeListener(fn)
}

// AutoSyncEnabled reports whether workspace changes schedule automatic syncs.
func (s *Syncer) AutoSyncEnabled() bool {
	return s.delay > 0
}

func (s *Syncer) onWorkspaceChanged() {
	if s.Disposed() {
		return
	}
	s.store.ChangeStateDeferrable(syncstate.Dirty)
	if s.delay > 0 {
		s.debouncer.Schedule(s.delay, s.autoSync)
	}
}

// autoSync runs on the debouncer goroutine. There is no caller to hand errors
// to, so they are logged and recorded in the state.
func (s *Syncer) autoSync() {
	ctx := logging.WithCorrelationID(context.Background(), uuid.NewString())
	ctx = logging.WithProjectID(ctx, s.projectID)

	err := s.SyncAutomatically(ctx, ports.SizeOf(s.handle))
	if err == nil {
		return
	}
	if errors.Is(err, domainerrors.ErrSyncThresholdExceeded) {
		s.logger.WarnContext(ctx, "automatic sync stopped by size threshold", "error", err.Error())
		if s.onLimit != nil {
			s.onLimit(s, err)
		}
	}
}

// SyncNow saves and uploads the project unconditionally: WRITING, UPLOADING,
// SYNCED. A save failure ends in ERROR with LOCAL_SAVE_FAILED, an upload
// failure in ERROR with UPLOAD_FAILED; both are returned.
func (s *Syncer) SyncNow(ctx context.Context) error {
	return s.run(ctx, TriggerManual, func(ctx context.Context) error {
		return s.uploader.UploadProject(ctx, s.projectID, s.handle)
	})
}

// SyncAutomatically is SyncNow with a threshold-aware upload. A sizeHint
// above the uploader's threshold leaves the project DIRTY and returns a
// SYNC_THRESHOLD_EXCEEDED error.
func (s *Syncer) SyncAutomatically(ctx context.Context, sizeHint int64) error {
	return s.run(ctx, TriggerAuto, func(ctx context.Context) error {
		return s.uploader.UploadProjectWithThreshold(ctx, s.projectID, s.handle, sizeHint)
	})
}

func (s *Syncer) run(ctx context.Context, trigger string, upload func(context.Context) error) (err error) {
	if s.Disposed() {
		return domainerrors.NotAllowed("sync of project %q has been disposed", s.projectID)
	}

	ctx, span := s.tracer.StartSyncSpan(ctx, s.projectID, trigger)
	span.SetSize(ports.SizeOf(s.handle))
	start := time.Now()
	defer func() {
		s.metrics.SyncRun(trigger, time.Since(start), err)
		span.EndWithError(err)
		if err != nil {
			logging.LogSyncFailed(ctx, s.logger, s.projectID, trigger, err)
		} else {
			logging.LogSyncComplete(ctx, s.logger, s.projectID, trigger, time.Since(start))
		}
	}()

	tr, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}

	tr.Step(syncstate.Writing)
	span.AddState(string(syncstate.Writing))
	if err := s.saver.SaveProject(ctx, s.projectID, s.handle); err != nil {
		gerr := coded(err, domainerrors.CodeLocalSaveFailed, "save project %q locally", s.projectID)
		tr.Fail(gerr)
		return gerr
	}

	tr.Step(syncstate.Uploading)
	span.AddState(string(syncstate.Uploading))
	if err := upload(ctx); err != nil {
		if errors.Is(err, domainerrors.ErrSyncThresholdExceeded) {
			tr.Finish(syncstate.Dirty)
			return err
		}
		gerr := coded(err, domainerrors.CodeUploadFailed, "upload project %q", s.projectID)
		tr.Fail(gerr)
		return gerr
	}

	tr.Finish(syncstate.Synced)
	span.AddState(string(syncstate.Synced))
	return nil
}

// coded returns err itself when it already carries code, and wraps it in a
// new error of that code otherwise.
func coded(err error, code domainerrors.ErrorCode, format string, args ...any) *domainerrors.GatewayError {
	var gerr *domainerrors.GatewayError
	if errors.As(err, &gerr) && gerr.Code == code {
		return gerr
	}
	switch code {
	case domainerrors.CodeLocalSaveFailed:
		return domainerrors.LocalSaveFailed(err, format, args...)
	default:
		return domainerrors.UploadFailed(err, format, args...)
	}
}

// Disposed reports whether Dispose has been called.
func (s *Syncer) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose stops observing the workspace and cancels any pending automatic
// sync. It is idempotent and does not wait for a sync in progress.
func (s *Syncer) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()

		if s.unobserve != nil {
			s.unobserve()
		}
		s.debouncer.Shutdown()
		s.stopMetrics()
		s.logger.Debug("syncer disposed")
	})
}
