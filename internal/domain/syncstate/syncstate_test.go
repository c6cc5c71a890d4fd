package syncstate

import (
	"encoding/json"
	"errors"
	"testing"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
)

func TestState_IsValid(t *testing.T) {
	for _, s := range []State{Writing, Uploading, Synced, Dirty, Error} {
		if !s.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", s)
		}
	}
	if State("PAUSED").IsValid() {
		t.Error("PAUSED.IsValid() = true, want false")
	}
}

func TestState_IsInProgress(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{Writing, true},
		{Uploading, true},
		{Synced, false},
		{Dirty, false},
		{Error, false},
	}
	for _, tt := range tests {
		if got := tt.state.IsInProgress(); got != tt.want {
			t.Errorf("%s.IsInProgress() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestInitial(t *testing.T) {
	if Initial.State != Synced || Initial.Err != nil {
		t.Errorf("Initial = %+v, want SYNCED without error", Initial)
	}
}

func TestSnapshot_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Snapshot{State: Dirty})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"state":"DIRTY"}` {
		t.Errorf("Marshal() = %s", data)
	}

	snap := Snapshot{State: Error, Err: domainerrors.UploadFailed(errors.New("dial tcp"), "upload of p1 failed")}
	data, err = json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"state":"ERROR","error":{"kind":"UPLOAD_FAILED","message":"upload of p1 failed"}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	snap.LastErr = snap.Err
	data, err = json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != want {
		t.Errorf("Marshal() with LastErr == Err = %s, want %s", data, want)
	}

	data, err = json.Marshal(Snapshot{State: Dirty, LastErr: snap.Err})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want = `{"state":"DIRTY","last_error":{"kind":"UPLOAD_FAILED","message":"upload of p1 failed"}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}
