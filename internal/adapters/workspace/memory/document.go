// Package memory provides an in-memory workspace: a document of named,
// positioned nodes with change notification, a JSON codec and the edit
// commands that operate on it.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
)

// Node is a positioned element of a document.
type Node struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Document is a loaded workspace. It implements ports.ChangeSource,
// ports.Sizer, ports.BusyReporter, ports.Importable and ports.Releaser.
// Documents of fixed versions are read-only.
type Document struct {
	projectID string
	version   version.ID
	readOnly  bool

	mu    sync.RWMutex
	nodes map[string]*Node
	order []string

	busy     atomic.Bool
	released atomic.Bool

	lmu       sync.Mutex
	listeners map[uint64]func()
	nextID    uint64
}

// NewDocument creates an empty document. Documents of fixed versions are
// read-only.
func NewDocument(projectID string, v version.ID) *Document {
	return &Document{
		projectID: projectID,
		version:   v,
		readOnly:  !v.IsCurrent(),
		nodes:     make(map[string]*Node),
		listeners: make(map[uint64]func()),
	}
}

// ProjectID returns the owning project.
func (d *Document) ProjectID() string { return d.projectID }

// Version returns the version the document was loaded at.
func (d *Document) Version() version.ID { return d.version }

// ReadOnly reports whether the document rejects edits.
func (d *Document) ReadOnly() bool { return d.readOnly }

// Nodes returns a copy of the nodes in insertion order.
func (d *Document) Nodes() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Node, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.nodes[id])
	}
	return out
}

// Node returns a copy of the node with the given id.
func (d *Document) Node(id string) (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Len returns the number of nodes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Insert adds n at position index of the node order; an index outside the
// order appends.
func (d *Document) Insert(n Node, index int) error {
	if err := d.edit(func() error {
		if n.ID == "" {
			return domainerrors.NewError(domainerrors.CodeValidation, "node id is required", nil)
		}
		if _, exists := d.nodes[n.ID]; exists {
			return domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("node %q already exists", n.ID), nil)
		}
		node := n
		d.nodes[n.ID] = &node
		if index < 0 || index >= len(d.order) {
			d.order = append(d.order, n.ID)
		} else {
			d.order = append(d.order[:index], append([]string{n.ID}, d.order[index:]...)...)
		}
		return nil
	}); err != nil {
		return err
	}
	d.notify()
	return nil
}

// Add appends n.
func (d *Document) Add(n Node) error {
	return d.Insert(n, -1)
}

// Remove deletes the node with the given id and returns it with its former
// position in the node order.
func (d *Document) Remove(id string) (Node, int, error) {
	var removed Node
	index := -1
	if err := d.edit(func() error {
		n, ok := d.nodes[id]
		if !ok {
			return domainerrors.NotFound("node %q", id)
		}
		removed = *n
		delete(d.nodes, id)
		for i, oid := range d.order {
			if oid == id {
				index = i
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
		return nil
	}); err != nil {
		return Node{}, -1, err
	}
	d.notify()
	return removed, index, nil
}

// SetPosition moves the nodes to the given absolute positions.
func (d *Document) SetPosition(positions map[string][2]float64) error {
	if err := d.edit(func() error {
		for id := range positions {
			if _, ok := d.nodes[id]; !ok {
				return domainerrors.NotFound("node %q", id)
			}
		}
		for id, p := range positions {
			d.nodes[id].X, d.nodes[id].Y = p[0], p[1]
		}
		return nil
	}); err != nil {
		return err
	}
	d.notify()
	return nil
}

// Rename changes a node's name and returns the previous one.
func (d *Document) Rename(id, name string) (string, error) {
	var old string
	if err := d.edit(func() error {
		n, ok := d.nodes[id]
		if !ok {
			return domainerrors.NotFound("node %q", id)
		}
		old, n.Name = n.Name, name
		return nil
	}); err != nil {
		return "", err
	}
	d.notify()
	return old, nil
}

// Replace swaps the whole content of the document for nodes. Nothing
// changes when nodes holds an empty or duplicate id.
func (d *Document) Replace(nodes []Node) error {
	byID := make(map[string]*Node, len(nodes))
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup || n.ID == "" {
			return domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("invalid or duplicate node id %q", n.ID), nil)
		}
		node := n
		byID[n.ID] = &node
		order = append(order, n.ID)
	}
	if err := d.edit(func() error {
		d.nodes, d.order = byID, order
		return nil
	}); err != nil {
		return err
	}
	d.notify()
	return nil
}

// Import implements ports.Importable for an encoded snapshot.
func (d *Document) Import(data []byte) error {
	nodes, err := DecodeNodes(data)
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeValidation, "invalid project file", err)
	}
	return d.Replace(nodes)
}

func (d *Document) edit(fn func() error) error {
	if d.readOnly {
		return domainerrors.NotAllowed("version %s of project %q is read-only", d.version, d.projectID)
	}
	if d.released.Load() {
		return domainerrors.NotAllowed("workspace of project %q has been released", d.projectID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

// SetBusy marks the document as executing. Busy documents veto undo and redo.
func (d *Document) SetBusy(busy bool) {
	d.busy.Store(busy)
}

// Busy implements ports.BusyReporter.
func (d *Document) Busy() bool {
	return d.busy.Load()
}

// SizeHint implements ports.Sizer with the size of the JSON encoding.
func (d *Document) SizeHint() int64 {
	data, err := json.Marshal(d.snapshot())
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// OnChange implements ports.ChangeSource. fn runs synchronously after every
// successful edit, outside the document lock.
func (d *Document) OnChange(fn func()) (unsubscribe func()) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.lmu.Lock()
		defer d.lmu.Unlock()
		delete(d.listeners, id)
	}
}

func (d *Document) notify() {
	d.lmu.Lock()
	fns := make([]func(), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.lmu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Release implements ports.Releaser. A released document rejects edits.
func (d *Document) Release() error {
	d.released.Store(true)
	return nil
}

// Released reports whether Release was called.
func (d *Document) Released() bool {
	return d.released.Load()
}
