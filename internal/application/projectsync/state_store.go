// Package projectsync keeps a project's local and remote copies in sync: a
// state store with deferred updates and a debounced save/upload syncer.
package projectsync

import (
	"context"
	"sync"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
)

type listenerEntry struct {
	id uint64
	fn syncstate.Listener
}

// StateStore holds the sync state of one project and notifies listeners of
// every change, synchronously and in registration order.
//
// Sync runs go through Begin, which admits one run at a time. A deferrable
// change made while a run is open is queued and applied right after the run's
// terminal state, so an edit that lands during an upload is never hidden by
// the SYNCED that follows it.
//
// Listeners must not change the store's state from inside a notification.
type StateStore struct {
	emitMu sync.Mutex    // serializes state changes together with their notifications
	run    chan struct{} // admits one open transition

	mu        sync.Mutex
	current   syncstate.Snapshot
	lastErr   *domainerrors.GatewayError
	inRun     bool
	deferred  *syncstate.Snapshot
	listeners []listenerEntry
	nextID    uint64
}

// NewStateStore creates a store in the initial SYNCED state. Creating a store
// performs no I/O and fires no notification.
func NewStateStore() *StateStore {
	return &StateStore{
		run:     make(chan struct{}, 1),
		current: syncstate.Initial,
	}
}

// Snapshot returns the current state and error.
func (s *StateStore) Snapshot() syncstate.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the current state.
func (s *StateStore) State() syncstate.State {
	return s.Snapshot().State
}

// AddOnStateChangeListener registers fn and returns a function that removes
// it. The same function may be registered more than once.
func (s *StateStore) AddOnStateChangeListener(fn syncstate.Listener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ChangeState sets the state immediately, even while a run is open.
func (s *StateStore) ChangeState(state syncstate.State) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.emitLocked(syncstate.Snapshot{State: state})
}

// ChangeStateDeferrable sets the state immediately when no run is open and
// reports true. While a run is open the change is queued, replacing any
// earlier queued change, and applied after the run's terminal state; it then
// reports false.
func (s *StateStore) ChangeStateDeferrable(state syncstate.State) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.inRun {
		s.deferred = &syncstate.Snapshot{State: state}
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.emitLocked(syncstate.Snapshot{State: state})
	return true
}

// Begin opens a run, waiting while another run is open. The returned
// Transition must be ended with Finish or Fail.
func (s *StateStore) Begin(ctx context.Context) (*Transition, error) {
	select {
	case s.run <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.emitMu.Lock()
	s.mu.Lock()
	s.inRun = true
	s.deferred = nil
	s.mu.Unlock()
	s.emitMu.Unlock()

	return &Transition{store: s}, nil
}

// emitLocked stores snap and notifies listeners. emitMu must be held.
func (s *StateStore) emitLocked(snap syncstate.Snapshot) {
	s.mu.Lock()
	switch {
	case snap.Err != nil:
		s.lastErr = snap.Err
	case snap.State == syncstate.Synced:
		s.lastErr = nil
	}
	snap.LastErr = s.lastErr
	s.current = snap
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(snap)
	}
}

// end applies the terminal state, then any deferred change, and closes the run.
func (s *StateStore) end(terminal syncstate.Snapshot) {
	s.emitMu.Lock()
	s.emitLocked(terminal)

	s.mu.Lock()
	deferred := s.deferred
	s.deferred = nil
	s.inRun = false
	s.mu.Unlock()

	if deferred != nil {
		s.emitLocked(*deferred)
	}
	s.emitMu.Unlock()

	<-s.run
}

// Transition is an open sync run.
type Transition struct {
	store *StateStore
	once  sync.Once
	ended bool
}

// Step moves the run to an intermediate state.
func (t *Transition) Step(state syncstate.State) {
	if t.ended {
		return
	}
	t.store.ChangeState(state)
}

// Finish ends the run in state. Later calls are no-ops.
func (t *Transition) Finish(state syncstate.State) {
	t.once.Do(func() {
		t.ended = true
		t.store.end(syncstate.Snapshot{State: state})
	})
}

// Fail ends the run in ERROR carrying err. Later calls are no-ops.
func (t *Transition) Fail(err *domainerrors.GatewayError) {
	t.once.Do(func() {
		t.ended = true
		t.store.end(syncstate.Snapshot{State: syncstate.Error, Err: err})
	})
}
