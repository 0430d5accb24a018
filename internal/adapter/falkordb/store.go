// Package falkordb implements the graph store against FalkorDB, a graph
// database speaking the Redis protocol. Writes go through GRAPH.QUERY with
// one Cypher query per event.
package falkordb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/provgraph/provgraph/internal/domain"
	"github.com/provgraph/provgraph/internal/domain/graph"
	"github.com/provgraph/provgraph/internal/port/graphstore"
)

// Store is a graphstore.Store and graphstore.Querier backed by FalkorDB.
type Store struct {
	client *redis.Client
	graph  string
}

// New connects to FalkorDB at the given redis:// URL and verifies the
// connection before returning.
func New(ctx context.Context, url, graphName string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse falkordb url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to falkordb: %w", err)
	}
	return &Store{client: client, graph: graphName}, nil
}

// Apply upserts a change-set as a single GRAPH.QUERY call. FalkorDB
// executes one query atomically, so the event is all-or-nothing.
func (s *Store) Apply(ctx context.Context, cs *graph.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	query := buildEventQuery(cs)
	if err := s.client.Do(ctx, "GRAPH.QUERY", s.graph, query).Err(); err != nil {
		return fmt.Errorf("%w: graph query: %s", domain.ErrUnavailable, err)
	}
	return nil
}

// Stats counts nodes and edges.
func (s *Store) Stats(ctx context.Context) (graphstore.Stats, error) {
	nodes, err := s.scalarCount(ctx, "MATCH (n) RETURN count(n)")
	if err != nil {
		return graphstore.Stats{}, err
	}
	edges, err := s.scalarCount(ctx, "MATCH ()-[r]->() RETURN count(r)")
	if err != nil {
		return graphstore.Stats{}, err
	}
	return graphstore.Stats{Nodes: nodes, Edges: edges}, nil
}

func (s *Store) scalarCount(ctx context.Context, query string) (int64, error) {
	_, rows, err := s.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	switch v := rows[0][0].(type) {
	case int64:
		return v, nil
	case string:
		var n int64
		_, err := fmt.Sscan(v, &n)
		return n, err
	default:
		return 0, fmt.Errorf("unexpected count type %T", rows[0][0])
	}
}

// Query runs a read-only Cypher query and returns the column names and
// rows. GRAPH.QUERY replies with [header, rows, stats]; a reply with a
// single element carries statistics only.
func (s *Store) Query(ctx context.Context, query string) ([]string, []graphstore.Row, error) {
	res, err := s.client.Do(ctx, "GRAPH.QUERY", s.graph, query).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: graph query: %s", domain.ErrUnavailable, err)
	}
	reply, ok := res.([]any)
	if !ok || len(reply) < 3 {
		return nil, nil, nil
	}

	var columns []string
	if header, ok := reply[0].([]any); ok {
		for _, col := range header {
			switch c := col.(type) {
			case string:
				columns = append(columns, c)
			case []any:
				// compact header entries are [type, name] pairs
				if len(c) == 2 {
					if name, ok := c[1].(string); ok {
						columns = append(columns, name)
					}
				}
			}
		}
	}

	var rows []graphstore.Row
	if data, ok := reply[1].([]any); ok {
		for _, raw := range data {
			if cells, ok := raw.([]any); ok {
				rows = append(rows, graphstore.Row(cells))
			}
		}
	}
	return columns, rows, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
