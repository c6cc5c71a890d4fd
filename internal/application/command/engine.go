package command

import (
	"context"
	"sync"

	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/tracing"
)

// DefaultMaxDepth is the default capacity of each undo and redo stack.
const DefaultMaxDepth = 5

// Operation names used in logs, spans and metrics.
const (
	OpApply = "apply"
	OpUndo  = "undo"
	OpRedo  = "redo"
)

// Options configures an Engine.
type Options struct {
	MaxDepth int
	Logger   *logging.Logger
	Tracer   *tracing.Tracer
	Metrics  *metrics.Metrics
}

// stackPair is the undo/redo history of one scope key.
type stackPair struct {
	mu   sync.Mutex
	undo boundedStack
	redo boundedStack
}

// Engine keeps bounded undo/redo stacks per scope key.
//
// The key map is safe for concurrent use across keys. Each key's stacks have
// their own lock, held while that key's command runs, so operations on one
// key are serialized and never block other keys.
type Engine struct {
	factory  *Factory
	maxDepth int
	logger   *logging.Logger
	tracer   *tracing.Tracer
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	stacks map[command.ScopeKey]*stackPair
}

// NewEngine creates an engine that builds commands with factory.
func NewEngine(factory *Factory, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Engine{
		factory:  factory,
		maxDepth: opts.MaxDepth,
		logger:   logging.OrDefault(opts.Logger).With("component", "commands"),
		tracer:   tracing.OrDefault(opts.Tracer),
		metrics:  opts.Metrics,
		stacks:   make(map[command.ScopeKey]*stackPair),
	}
}

// MaxDepth returns the stack capacity.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// Apply builds the command described by spec, applies it for key and, on
// success, pushes it onto key's undo stack and clears key's redo stack.
func (e *Engine) Apply(ctx context.Context, key command.ScopeKey, spec command.Spec) (err error) {
	ctx, span := e.tracer.StartCommandSpan(ctx, OpApply, key.String())
	span.SetKind(string(spec.Kind))
	defer func() { e.finish(ctx, span, OpApply, string(spec.Kind), key, err) }()

	if key.IsZero() {
		return domainerrors.NotAllowed("a scope key with a project id is required")
	}
	cmd, err := e.factory.Build(spec)
	if err != nil {
		return err
	}

	pair := e.pairFor(key, true)
	pair.mu.Lock()
	defer pair.mu.Unlock()

	if err := cmd.Apply(ctx, key); err != nil {
		return err
	}
	pair.undo.push(record{kind: spec.Kind, cmd: cmd})
	pair.redo.clear()
	return nil
}

// Undo reverts the most recent command of key and moves it to the redo
// stack. An empty stack or a vetoing command is OPERATION_NOT_ALLOWED; a
// failing command is reported as is. In every failure case both stacks are
// left unchanged.
func (e *Engine) Undo(ctx context.Context, key command.ScopeKey) error {
	return e.move(ctx, key, OpUndo)
}

// Redo re-applies the most recently undone command of key and moves it back
// to the undo stack, with the same failure rules as Undo.
func (e *Engine) Redo(ctx context.Context, key command.ScopeKey) error {
	return e.move(ctx, key, OpRedo)
}

func (e *Engine) move(ctx context.Context, key command.ScopeKey, op string) (err error) {
	ctx, span := e.tracer.StartCommandSpan(ctx, op, key.String())
	var kind string
	defer func() { e.finish(ctx, span, op, kind, key, err) }()

	if key.IsZero() {
		return domainerrors.NotAllowed("a scope key with a project id is required")
	}
	pair := e.pairFor(key, false)
	if pair == nil {
		return domainerrors.NotAllowed("nothing to %s for %q", op, key)
	}

	pair.mu.Lock()
	defer pair.mu.Unlock()

	from, to := &pair.undo, &pair.redo
	if op == OpRedo {
		from, to = &pair.redo, &pair.undo
	}

	top, ok := from.peek()
	if !ok {
		return domainerrors.NotAllowed("nothing to %s for %q", op, key)
	}
	kind = string(top.kind)
	span.SetKind(kind)

	if op == OpUndo {
		if !top.cmd.CanUndo() {
			return domainerrors.NotAllowed("%s of %q is not allowed right now", op, top.kind)
		}
		err = top.cmd.Undo(ctx)
	} else {
		if !top.cmd.CanRedo() {
			return domainerrors.NotAllowed("%s of %q is not allowed right now", op, top.kind)
		}
		err = top.cmd.Redo(ctx)
	}
	if err != nil {
		return err
	}

	from.pop()
	to.push(top)
	span.SetDepths(pair.undo.len(), pair.redo.len())
	return nil
}

func (e *Engine) finish(ctx context.Context, span *tracing.CommandSpan, op, kind string, key command.ScopeKey, err error) {
	ctx = logging.WithScopeKey(ctx, key.String())
	logging.LogCommand(ctx, e.logger, op, kind, err)
	e.metrics.Command(op, err, domainerrors.IsDeclined(err))
	span.EndWithError(err)
}

func (e *Engine) pairFor(key command.ScopeKey, create bool) *stackPair {
	e.mu.RLock()
	pair, ok := e.stacks[key]
	e.mu.RUnlock()
	if ok || !create {
		return pair
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if pair, ok = e.stacks[key]; ok {
		return pair
	}
	pair = &stackPair{
		undo: newBoundedStack(e.maxDepth),
		redo: newBoundedStack(e.maxDepth),
	}
	e.stacks[key] = pair
	return pair
}

// CanUndo reports whether key has a command to undo and that command
// currently permits it.
func (e *Engine) CanUndo(key command.ScopeKey) bool {
	return e.can(key, OpUndo)
}

// CanRedo reports whether key has a command to redo and that command
// currently permits it.
func (e *Engine) CanRedo(key command.ScopeKey) bool {
	return e.can(key, OpRedo)
}

func (e *Engine) can(key command.ScopeKey, op string) bool {
	pair := e.pairFor(key, false)
	if pair == nil {
		return false
	}
	pair.mu.Lock()
	defer pair.mu.Unlock()

	if op == OpUndo {
		top, ok := pair.undo.peek()
		return ok && top.cmd.CanUndo()
	}
	top, ok := pair.redo.peek()
	return ok && top.cmd.CanRedo()
}

// UndoDepth returns the size of key's undo stack.
func (e *Engine) UndoDepth(key command.ScopeKey) int {
	undo, _ := e.Depths(key)
	return undo
}

// RedoDepth returns the size of key's redo stack.
func (e *Engine) RedoDepth(key command.ScopeKey) int {
	_, redo := e.Depths(key)
	return redo
}

// Depths returns the sizes of key's undo and redo stacks.
func (e *Engine) Depths(key command.ScopeKey) (undo, redo int) {
	pair := e.pairFor(key, false)
	if pair == nil {
		return 0, 0
	}
	pair.mu.Lock()
	defer pair.mu.Unlock()
	return pair.undo.len(), pair.redo.len()
}

// Keys returns the scope keys of projectID that have history.
func (e *Engine) Keys(projectID string) []command.ScopeKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var keys []command.ScopeKey
	for k := range e.stacks {
		if k.BelongsTo(projectID) {
			keys = append(keys, k)
		}
	}
	return keys
}

// DisposeStacks drops the history of every scope key of projectID.
func (e *Engine) DisposeStacks(projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k := range e.stacks {
		if k.BelongsTo(projectID) {
			delete(e.stacks, k)
		}
	}
}
