package memory

import (
	"encoding/json"
	"fmt"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
)

// FormatVersion is the version of the snapshot encoding.
const FormatVersion = 1

// snapshot is the persisted form of a document.
type snapshot struct {
	Format  int    `json:"format"`
	Project string `json:"project"`
	Nodes   []Node `json:"nodes"`
}

func (d *Document) snapshot() snapshot {
	return snapshot{Format: FormatVersion, Project: d.projectID, Nodes: d.Nodes()}
}

// Codec implements ports.WorkspaceCodec for documents.
type Codec struct{}

var _ ports.WorkspaceCodec = Codec{}

// New implements ports.WorkspaceCodec.
func (Codec) New(projectID string) (ports.WorkspaceHandle, error) {
	return NewDocument(projectID, version.Current), nil
}

// Encode implements ports.WorkspaceCodec.
func (Codec) Encode(h ports.WorkspaceHandle) ([]byte, error) {
	d, ok := h.(*Document)
	if !ok {
		return nil, fmt.Errorf("unsupported workspace handle %T", h)
	}
	return json.Marshal(d.snapshot())
}

// Decode implements ports.WorkspaceCodec.
func (Codec) Decode(projectID string, v version.ID, data []byte) (ports.WorkspaceHandle, error) {
	nodes, err := DecodeNodes(data)
	if err != nil {
		return nil, err
	}
	d := NewDocument(projectID, v)
	for _, n := range nodes {
		node := n
		d.nodes[n.ID] = &node
		d.order = append(d.order, n.ID)
	}
	return d, nil
}

// DecodeNodes parses an encoded snapshot and returns its nodes.
func DecodeNodes(data []byte) ([]Node, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode workspace snapshot: %w", err)
	}
	if s.Format > FormatVersion {
		return nil, fmt.Errorf("unsupported workspace snapshot format %d", s.Format)
	}
	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" || seen[n.ID] {
			return nil, fmt.Errorf("invalid or duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	return s.Nodes, nil
}
