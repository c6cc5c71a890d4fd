package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	appcommand "github.com/jbctechsolutions/projectgate/internal/application/command"
	"github.com/jbctechsolutions/projectgate/internal/domain/command"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
)

// Command kinds operating on documents.
const (
	KindTranslate command.Kind = "translate"
	KindDelete    command.Kind = "delete"
	KindRename    command.Kind = "rename"
	KindAdd       command.Kind = "add"
)

// Resolver returns the current document of a project.
type Resolver func(ctx context.Context, projectID string) (*Document, error)

// RegisterCommands registers the document commands with f. Commands locate
// their document through resolve when applied.
func RegisterCommands(f *appcommand.Factory, resolve Resolver) error {
	builders := map[command.Kind]appcommand.Builder{
		KindTranslate: func(args json.RawMessage) (command.Command, error) {
			c := &translateCmd{base: base{resolve: resolve}}
			if err := decodeArgs(args, &c.args); err != nil {
				return nil, err
			}
			if len(c.args.IDs) == 0 {
				return nil, fmt.Errorf("at least one node id is required")
			}
			return c, nil
		},
		KindDelete: func(args json.RawMessage) (command.Command, error) {
			c := &deleteCmd{base: base{resolve: resolve}}
			if err := decodeArgs(args, &c.args); err != nil {
				return nil, err
			}
			if len(c.args.IDs) == 0 {
				return nil, fmt.Errorf("at least one node id is required")
			}
			return c, nil
		},
		KindRename: func(args json.RawMessage) (command.Command, error) {
			c := &renameCmd{base: base{resolve: resolve}}
			if err := decodeArgs(args, &c.args); err != nil {
				return nil, err
			}
			if c.args.ID == "" {
				return nil, fmt.Errorf("node id is required")
			}
			return c, nil
		},
		KindAdd: func(args json.RawMessage) (command.Command, error) {
			c := &addCmd{base: base{resolve: resolve}}
			if err := decodeArgs(args, &c.node); err != nil {
				return nil, err
			}
			if c.node.ID == "" {
				c.node.ID = uuid.NewString()[:8]
			}
			return c, nil
		},
	}

	for _, kind := range []command.Kind{KindTranslate, KindDelete, KindRename, KindAdd} {
		if err := f.Register(kind, builders[kind]); err != nil {
			return err
		}
	}
	return nil
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return fmt.Errorf("arguments are required")
	}
	return json.Unmarshal(args, v)
}

// base tracks the target document and the applied flag shared by all
// document commands.
type base struct {
	resolve Resolver
	doc     *Document
	applied bool
}

func (b *base) bind(ctx context.Context, key command.ScopeKey) error {
	doc, err := b.resolve(ctx, key.ProjectID)
	if err != nil {
		return err
	}
	if doc.Busy() {
		return domainerrors.NotAllowed("project %q is busy", key.ProjectID)
	}
	b.doc = doc
	return nil
}

func (b *base) CanUndo() bool { return b.doc != nil && b.applied && !b.doc.Busy() }
func (b *base) CanRedo() bool { return b.doc != nil && !b.applied && !b.doc.Busy() }

// translateCmd moves nodes by a delta.
type translateCmd struct {
	base
	args struct {
		IDs []string `json:"ids"`
		DX  float64  `json:"dx"`
		DY  float64  `json:"dy"`
	}
	original map[string][2]float64
}

func (c *translateCmd) Apply(ctx context.Context, key command.ScopeKey) error {
	if err := c.bind(ctx, key); err != nil {
		return err
	}
	return c.move()
}

func (c *translateCmd) move() error {
	original := make(map[string][2]float64, len(c.args.IDs))
	moved := make(map[string][2]float64, len(c.args.IDs))
	for _, id := range c.args.IDs {
		n, ok := c.doc.Node(id)
		if !ok {
			return domainerrors.NotFound("node %q", id)
		}
		original[id] = [2]float64{n.X, n.Y}
		moved[id] = [2]float64{n.X + c.args.DX, n.Y + c.args.DY}
	}
	if err := c.doc.SetPosition(moved); err != nil {
		return err
	}
	c.original = original
	c.applied = true
	return nil
}

func (c *translateCmd) Undo(ctx context.Context) error {
	if err := c.doc.SetPosition(c.original); err != nil {
		return err
	}
	c.original = nil
	c.applied = false
	return nil
}

func (c *translateCmd) Redo(ctx context.Context) error {
	return c.move()
}

// deleteCmd removes nodes.
type deleteCmd struct {
	base
	args struct {
		IDs []string `json:"ids"`
	}
	removed []removedNode
}

type removedNode struct {
	node  Node
	index int
}

func (c *deleteCmd) Apply(ctx context.Context, key command.ScopeKey) error {
	if err := c.bind(ctx, key); err != nil {
		return err
	}
	return c.remove()
}

func (c *deleteCmd) remove() error {
	for _, id := range c.args.IDs {
		if _, ok := c.doc.Node(id); !ok {
			return domainerrors.NotFound("node %q", id)
		}
	}
	removed := make([]removedNode, 0, len(c.args.IDs))
	for _, id := range c.args.IDs {
		n, idx, err := c.doc.Remove(id)
		if err != nil {
			_ = c.restore(removed)
			return err
		}
		removed = append(removed, removedNode{node: n, index: idx})
	}
	c.removed = removed
	c.applied = true
	return nil
}

// restore re-inserts nodes in reverse removal order so indexes line up.
func (c *deleteCmd) restore(removed []removedNode) error {
	for i := len(removed) - 1; i >= 0; i-- {
		if err := c.doc.Insert(removed[i].node, removed[i].index); err != nil {
			return err
		}
	}
	return nil
}

func (c *deleteCmd) Undo(ctx context.Context) error {
	if err := c.restore(c.removed); err != nil {
		return err
	}
	c.removed = nil
	c.applied = false
	return nil
}

func (c *deleteCmd) Redo(ctx context.Context) error {
	return c.remove()
}

// renameCmd changes a node's name.
type renameCmd struct {
	base
	args struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	previous string
}

func (c *renameCmd) Apply(ctx context.Context, key command.ScopeKey) error {
	if err := c.bind(ctx, key); err != nil {
		return err
	}
	return c.rename()
}

func (c *renameCmd) rename() error {
	old, err := c.doc.Rename(c.args.ID, c.args.Name)
	if err != nil {
		return err
	}
	c.previous = old
	c.applied = true
	return nil
}

func (c *renameCmd) Undo(ctx context.Context) error {
	if _, err := c.doc.Rename(c.args.ID, c.previous); err != nil {
		return err
	}
	c.previous = ""
	c.applied = false
	return nil
}

func (c *renameCmd) Redo(ctx context.Context) error {
	return c.rename()
}

// addCmd appends a node.
type addCmd struct {
	base
	node Node
}

func (c *addCmd) Apply(ctx context.Context, key command.ScopeKey) error {
	if err := c.bind(ctx, key); err != nil {
		return err
	}
	return c.Redo(ctx)
}

func (c *addCmd) Undo(ctx context.Context) error {
	if _, _, err := c.doc.Remove(c.node.ID); err != nil {
		return err
	}
	c.applied = false
	return nil
}

func (c *addCmd) Redo(ctx context.Context) error {
	if err := c.doc.Add(c.node); err != nil {
		return err
	}
	c.applied = true
	return nil
}
