package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
)

// FakeHandle is a workspace handle that records releases and reports a
// configurable size.
type FakeHandle struct {
	Version  version.ID
	Size     int64
	released atomic.Int32

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
}

// NewFakeHandle returns a handle for v.
func NewFakeHandle(v version.ID) *FakeHandle {
	return &FakeHandle{Version: v, listeners: make(map[int]func())}
}

// Release implements ports.Releaser.
func (h *FakeHandle) Release() error {
	h.released.Add(1)
	return nil
}

// Released returns how many times Release was called.
func (h *FakeHandle) Released() int {
	return int(h.released.Load())
}

// SizeHint implements ports.Sizer.
func (h *FakeHandle) SizeHint() int64 {
	return h.Size
}

// OnChange implements ports.ChangeSource.
func (h *FakeHandle) OnChange(fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Listeners returns the number of registered change listeners.
func (h *FakeHandle) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Touch notifies the change listeners.
func (h *FakeHandle) Touch() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// CountingLoader is a ports.Loader that counts invocations per version.
// Gate, when non-nil, blocks every load until it is closed. Err, when set,
// fails the next loads.
type CountingLoader struct {
	Gate chan struct{}

	mu      sync.Mutex
	calls   map[version.ID]int
	handles map[version.ID][]*FakeHandle
	err     error
}

// NewCountingLoader returns a loader that succeeds by default.
func NewCountingLoader() *CountingLoader {
	return &CountingLoader{
		calls:   make(map[version.ID]int),
		handles: make(map[version.ID][]*FakeHandle),
	}
}

// FailWith makes subsequent loads return err. A nil err restores success.
func (l *CountingLoader) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Load implements ports.Loader.
func (l *CountingLoader) Load(ctx context.Context, v version.ID) (ports.WorkspaceHandle, error) {
	l.mu.Lock()
	l.calls[v]++
	gate := l.Gate
	err := l.err
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	h := NewFakeHandle(v)
	l.mu.Lock()
	l.handles[v] = append(l.handles[v], h)
	l.mu.Unlock()
	return h, nil
}

// Calls returns the number of loads of v.
func (l *CountingLoader) Calls(v version.ID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[v]
}

// Handles returns every handle produced for v, oldest first.
func (l *CountingLoader) Handles(v version.ID) []*FakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeHandle(nil), l.handles[v]...)
}

// RecordingSaver is a ports.LocalSaver that counts saves and can fail.
type RecordingSaver struct {
	Err   error
	saves atomic.Int32

	mu   sync.Mutex
	last ports.WorkspaceHandle
}

// SaveProject implements ports.LocalSaver.
func (s *RecordingSaver) SaveProject(ctx context.Context, projectID string, h ports.WorkspaceHandle) error {
	s.saves.Add(1)
	s.mu.Lock()
	s.last = h
	s.mu.Unlock()
	return s.Err
}

// Last returns the handle passed to the most recent SaveProject call.
func (s *RecordingSaver) Last() ports.WorkspaceHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Saves returns the number of SaveProject calls.
func (s *RecordingSaver) Saves() int {
	return int(s.saves.Load())
}

// RecordingUploader is a ports.RemoteUploader that counts uploads. OnUpload
// runs inside every upload before it returns, which lets tests interleave
// events with an upload in flight. Threshold, when positive, rejects threshold
// uploads whose size hint exceeds it.
type RecordingUploader struct {
	Err       error
	Threshold int64
	OnUpload  func()

	uploads atomic.Int32
}

// UploadProject implements ports.RemoteUploader.
func (u *RecordingUploader) UploadProject(ctx context.Context, projectID string, h ports.WorkspaceHandle) error {
	u.uploads.Add(1)
	if u.OnUpload != nil {
		u.OnUpload()
	}
	return u.Err
}

// UploadProjectWithThreshold implements ports.RemoteUploader.
func (u *RecordingUploader) UploadProjectWithThreshold(ctx context.Context, projectID string, h ports.WorkspaceHandle, sizeHint int64) error {
	if u.Threshold > 0 && sizeHint > u.Threshold {
		return domainerrors.ThresholdExceeded(sizeHint, u.Threshold)
	}
	return u.UploadProject(ctx, projectID, h)
}

// Uploads returns the number of performed uploads.
func (u *RecordingUploader) Uploads() int {
	return int(u.uploads.Load())
}

// StateRecorder collects sync state notifications.
type StateRecorder struct {
	mu     sync.Mutex
	states []syncstate.Snapshot
}

// Listen implements syncstate.Listener.
func (r *StateRecorder) Listen(s syncstate.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

// States returns the recorded states in notification order.
func (r *StateRecorder) States() []syncstate.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]syncstate.State, len(r.states))
	for i, s := range r.states {
		out[i] = s.State
	}
	return out
}

// Last returns the most recent snapshot.
func (r *StateRecorder) Last() (syncstate.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return syncstate.Snapshot{}, false
	}
	return r.states[len(r.states)-1], true
}

// ErrBoom is a generic failure for collaborator fakes.
var ErrBoom = errors.New("boom")
