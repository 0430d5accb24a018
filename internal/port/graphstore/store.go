// Package graphstore defines the port for persisting provenance change-sets.
package graphstore

import (
	"context"

	"github.com/provgraph/provgraph/internal/domain/graph"
)

// Stats is a coarse snapshot of graph size, used by health reporting and
// idempotence checks.
type Stats struct {
	Nodes int64 `json:"nodes"`
	Edges int64 `json:"edges"`
}

// Store is the port interface for graph persistence. Apply upserts one
// event's change-set atomically: all MERGE semantics, so replaying the same
// change-set leaves the graph unchanged.
type Store interface {
	Apply(ctx context.Context, cs *graph.ChangeSet) error
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Row is one result row of an ad-hoc query.
type Row []any

// Querier runs read queries against stores with a query language surface
// (the graph database speaks Cypher). Write paths never go through it.
type Querier interface {
	Query(ctx context.Context, query string) (columns []string, rows []Row, err error)
}
