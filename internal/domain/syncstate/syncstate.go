// Package syncstate defines the synchronization states of a project's local
// and remote copies.
package syncstate

import (
	"encoding/json"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
)

// State is the synchronization state of a project.
type State string

const (
	Writing   State = "WRITING"   // Saving to local storage
	Uploading State = "UPLOADING" // Pushing to the remote store
	Synced    State = "SYNCED"    // Local and remote copies match
	Dirty     State = "DIRTY"     // Unsynchronized local changes exist
	Error     State = "ERROR"     // The last sync failed
)

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case Writing, Uploading, Synced, Dirty, Error:
		return true
	}
	return false
}

// IsInProgress reports whether a sync run is writing or uploading.
func (s State) IsInProgress() bool {
	return s == Writing || s == Uploading
}

// Snapshot is an observed sync state. Err is set only in the Error state.
// LastErr is the failure of the most recent failed run and survives later
// state changes until a run ends in SYNCED.
type Snapshot struct {
	State   State
	Err     *domainerrors.GatewayError
	LastErr *domainerrors.GatewayError
}

// MarshalJSON renders the snapshot with the displayable form of its errors.
// last_error is omitted when it is the same failure as error.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := struct {
		State     State                 `json:"state"`
		Error     *domainerrors.Payload `json:"error,omitempty"`
		LastError *domainerrors.Payload `json:"last_error,omitempty"`
	}{State: s.State}
	if s.Err != nil {
		p := domainerrors.ToPayload(s.Err)
		out.Error = &p
	}
	if s.LastErr != nil && s.LastErr != s.Err {
		p := domainerrors.ToPayload(s.LastErr)
		out.LastError = &p
	}
	return json.Marshal(out)
}

// Initial is the state of a project that has not been synced yet.
var Initial = Snapshot{State: Synced}

// Listener observes state changes.
type Listener func(Snapshot)
