// Package memory provides a map-backed graph store for tests and local
// development. It implements the same MERGE semantics as the real stores:
// nodes keyed by name, edges keyed by (from, to, type, role), properties
// merged last-writer-wins.
package memory

import (
	"context"
	"sync"

	"github.com/provgraph/provgraph/internal/domain/graph"
	"github.com/provgraph/provgraph/internal/port/graphstore"
)

type edgeKey struct {
	from, to, typ, role string
}

// Store is an in-memory graphstore.Store.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]graph.Node
	edges map[edgeKey]graph.Edge
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		nodes: make(map[string]graph.Node),
		edges: make(map[edgeKey]graph.Edge),
	}
}

// Apply upserts the change-set under a single lock, giving the same
// all-or-nothing visibility a store transaction would.
func (s *Store) Apply(ctx context.Context, cs *graph.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range cs.Nodes {
		existing, ok := s.nodes[n.Key]
		if !ok {
			existing = graph.Node{Key: n.Key, Label: n.Label, Base: n.Base, Props: make(map[string]any)}
		}
		for k, v := range n.Props {
			existing.Props[k] = v
		}
		s.nodes[n.Key] = existing
	}
	for _, e := range cs.Edges {
		// Edge endpoints may reference nodes no event has described yet;
		// merge them sparsely like the real stores do.
		s.ensureNode(e.From)
		s.ensureNode(e.To)
		k := edgeKey{from: e.From.Key, to: e.To.Key, typ: e.Type, role: e.Role}
		existing, ok := s.edges[k]
		if !ok {
			existing = graph.Edge{Type: e.Type, From: e.From, To: e.To, Role: e.Role, Props: make(map[string]any)}
		}
		if e.Label != "" {
			existing.Label = e.Label
		}
		for pk, pv := range e.Props {
			existing.Props[pk] = pv
		}
		s.edges[k] = existing
	}
	return nil
}

func (s *Store) ensureNode(ref graph.NodeRef) {
	if _, ok := s.nodes[ref.Key]; ok {
		return
	}
	base, _ := graph.BaseTypeOf(ref.Label)
	s.nodes[ref.Key] = graph.Node{Key: ref.Key, Label: ref.Label, Base: base, Props: make(map[string]any)}
}

// Stats reports current node and edge counts.
func (s *Store) Stats(ctx context.Context) (graphstore.Stats, error) {
	if err := ctx.Err(); err != nil {
		return graphstore.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return graphstore.Stats{Nodes: int64(len(s.nodes)), Edges: int64(len(s.edges))}, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Node returns a stored node by key, for assertions in tests.
func (s *Store) Node(key string) (graph.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[key]
	return n, ok
}

// Edge returns a stored edge, for assertions in tests.
func (s *Store) Edge(from, to, edgeType, role string) (graph.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[edgeKey{from: from, to: to, typ: edgeType, role: role}]
	return e, ok
}
