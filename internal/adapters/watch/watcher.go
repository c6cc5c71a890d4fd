// Package watch imports project files edited outside the gateway. It watches
// a directory of <projectID>.json snapshots and hands settled changes to an
// Importer.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/debounce"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
)

// Extension of watched project files.
const Extension = ".json"

// EventType represents the type of file system event.
type EventType string

// Event types that trigger an import.
const (
	EventCreate EventType = "create"
	EventWrite  EventType = "write"
)

// Event reports a settled change of a project file.
type Event struct {
	ProjectID string
	Path      string
	Type      EventType
	Timestamp time.Time
}

// Config holds configuration for the file watcher.
type Config struct {
	DebounceDuration time.Duration
	BufferSize       int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		DebounceDuration: 100 * time.Millisecond,
		BufferSize:       100,
	}
}

// Importer receives the content of a changed project file.
type Importer interface {
	Import(ctx context.Context, projectID string, data []byte) error
}

// Watcher monitors a directory for project file changes. Bursts of events
// for one file are coalesced into a single Event.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    Config
	logger    *logging.Logger
	events    chan Event
	errors    chan error

	pending map[string]*debounce.Debouncer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewWatcher creates a new file watcher with the given configuration.
func NewWatcher(cfg Config, logger *logging.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}

	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = def.DebounceDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		logger:    logging.OrDefault(logger),
		events:    make(chan Event, cfg.BufferSize),
		errors:    make(chan error, cfg.BufferSize),
		pending:   make(map[string]*debounce.Debouncer),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Watch starts watching dir, creating it if needed.
func (w *Watcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return domainerrors.NotAllowed("watcher is closed")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create watch directory: %w", err)
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}

	if !w.started {
		w.started = true
		w.wg.Add(1)
		go w.processEvents()
	}
	return nil
}

// Events returns the channel of settled changes. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel for receiving watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and releases resources. Pending changes are
// dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, d := range w.pending {
		d.Shutdown()
	}
	w.mu.Unlock()

	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	close(w.events)
	close(w.errors)
	w.mu.Unlock()
	return err
}

// processEvents reads from fsnotify and debounces events per file.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			projectID, isProject := ProjectIDFromPath(event.Name)
			if !isProject {
				continue
			}
			eventType := convertEventType(event.Op)
			if eventType == "" {
				continue
			}
			w.queue(Event{
				ProjectID: projectID,
				Path:      event.Name,
				Type:      eventType,
				Timestamp: time.Now(),
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			if !w.closed {
				select {
				case w.errors <- err:
				default:
				}
			}
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) queue(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	d, ok := w.pending[ev.Path]
	if !ok {
		d = debounce.New()
		w.pending[ev.Path] = d
	}
	d.Schedule(w.config.DebounceDuration, func() { w.emit(ev) })
}

func (w *Watcher) emit(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("dropping project file change, event buffer full",
			"project_id", ev.ProjectID,
			"path", ev.Path)
	}
}

// Run reads settled changes and imports each file until ctx is done or the
// watcher is closed. Import failures are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, importer Importer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			data, err := os.ReadFile(ev.Path)
			if err != nil {
				w.logger.Warn("could not read project file", "path", ev.Path, "error", err)
				continue
			}
			if err := importer.Import(ctx, ev.ProjectID, data); err != nil {
				level := w.logger.Warn
				if domainerrors.IsDeclined(err) {
					level = w.logger.Debug
				}
				level("project file not imported", "project_id", ev.ProjectID, "error", err)
				continue
			}
			w.logger.Info("project file imported", "project_id", ev.ProjectID, "path", ev.Path)
		}
	}
}

// ProjectIDFromPath returns the project id named by a watched file path.
func ProjectIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), Extension) || strings.HasPrefix(base, ".") {
		return "", false
	}
	id := strings.TrimSuffix(base, filepath.Ext(base))
	return id, id != ""
}

// convertEventType converts fsnotify event operation to EventType.
func convertEventType(op fsnotify.Op) EventType {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return EventCreate
	case op&fsnotify.Write == fsnotify.Write:
		return EventWrite
	default:
		return ""
	}
}
