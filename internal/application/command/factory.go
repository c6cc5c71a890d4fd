// Package command applies, undoes and redoes workspace edits with bounded
// per-scope undo/redo history.
package command

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
)

// Builder instantiates a command from its kind-specific arguments.
type Builder func(args json.RawMessage) (command.Command, error)

// Factory maps command kinds to builders. Kinds that were never registered
// are rejected.
type Factory struct {
	mu       sync.RWMutex
	builders map[command.Kind]Builder
	order    []command.Kind
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		builders: make(map[command.Kind]Builder),
		order:    make([]command.Kind, 0),
	}
}

// Register adds a builder for kind, replacing any previous one.
func (f *Factory) Register(kind command.Kind, b Builder) error {
	if b == nil {
		return fmt.Errorf("builder cannot be nil")
	}
	if kind == "" {
		return fmt.Errorf("command kind cannot be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.builders[kind]; !exists {
		f.order = append(f.order, kind)
	}
	f.builders[kind] = b
	return nil
}

// Build instantiates the command described by spec. An unknown kind is an
// OPERATION_NOT_ALLOWED error; invalid arguments are a VALIDATION error.
func (f *Factory) Build(spec command.Spec) (command.Command, error) {
	f.mu.RLock()
	b, ok := f.builders[spec.Kind]
	f.mu.RUnlock()

	if !ok {
		return nil, domainerrors.NotAllowed("unknown command kind %q", spec.Kind)
	}
	cmd, err := b(spec.Args)
	if err != nil {
		return nil, domainerrors.WithContext(
			domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("invalid arguments for %q", spec.Kind), err),
			"kind", string(spec.Kind))
	}
	return cmd, nil
}

// Kinds returns the registered kinds in registration order.
func (f *Factory) Kinds() []command.Kind {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]command.Kind, len(f.order))
	copy(result, f.order)
	return result
}
