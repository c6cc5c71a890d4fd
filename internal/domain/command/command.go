// Package command defines the undoable edit abstraction applied to a
// workspace and the keys that scope independent undo/redo timelines.
package command

import (
	"context"
	"encoding/json"
	"strings"
)

// Kind tags a concrete command type. The set of kinds is closed: only kinds
// registered with a factory can be applied.
type Kind string

// ScopeKey identifies an independent undo/redo timeline: a project plus an
// optional sub-scope such as a client session or editor tab.
type ScopeKey struct {
	ProjectID string
	Scope     string
}

// NewScopeKey returns the key for the given project and sub-scope.
func NewScopeKey(projectID, scope string) ScopeKey {
	return ScopeKey{ProjectID: projectID, Scope: scope}
}

// IsZero reports whether the key has no project.
func (k ScopeKey) IsZero() bool {
	return strings.TrimSpace(k.ProjectID) == ""
}

// String renders the key as "project" or "project/scope".
func (k ScopeKey) String() string {
	if k.Scope == "" {
		return k.ProjectID
	}
	return k.ProjectID + "/" + k.Scope
}

// BelongsTo reports whether the key is scoped to projectID.
func (k ScopeKey) BelongsTo(projectID string) bool {
	return k.ProjectID == projectID
}

// Spec describes a command to instantiate: its kind and kind-specific
// arguments as raw JSON.
type Spec struct {
	Kind Kind            `json:"kind"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Command is a reversible edit. A command captures whatever state it needs to
// invert itself during Apply and releases that state after Undo.
type Command interface {
	// Apply performs the edit for the given scope.
	Apply(ctx context.Context, key ScopeKey) error

	// Undo reverts the edit.
	Undo(ctx context.Context) error

	// Redo re-applies the edit after an Undo.
	Redo(ctx context.Context) error

	// CanUndo reports whether Undo is currently permitted. A command may veto
	// while the underlying resource is busy.
	CanUndo() bool

	// CanRedo reports whether Redo is currently permitted.
	CanRedo() bool
}
