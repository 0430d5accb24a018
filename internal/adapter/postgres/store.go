package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provgraph/provgraph/internal/domain"
	"github.com/provgraph/provgraph/internal/domain/graph"
	"github.com/provgraph/provgraph/internal/port/graphstore"
)

// Store is a graphstore.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const upsertNodeSQL = `
	INSERT INTO prov_nodes (name, label, base_type, props, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (name) DO UPDATE SET
		label = EXCLUDED.label,
		base_type = EXCLUDED.base_type,
		props = prov_nodes.props || EXCLUDED.props,
		updated_at = now()`

const upsertEdgeSQL = `
	INSERT INTO prov_edges (from_name, to_name, edge_type, role, label, props, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (from_name, to_name, edge_type, role) DO UPDATE SET
		label = CASE WHEN EXCLUDED.label <> '' THEN EXCLUDED.label ELSE prov_edges.label END,
		props = prov_edges.props || EXCLUDED.props,
		updated_at = now()`

// ensureNodeSQL inserts a sparse node for an edge endpoint no event has
// described yet; an existing node is left untouched.
const ensureNodeSQL = `
	INSERT INTO prov_nodes (name, label, base_type, props, updated_at)
	VALUES ($1, $2, $3, '{}'::jsonb, now())
	ON CONFLICT (name) DO NOTHING`

// Apply upserts the change-set in one transaction. Serialization failures
// surface as domain.ErrConflict and are never retried here; the caller's
// per-task ordering makes them exceptional.
func (s *Store) Apply(ctx context.Context, cs *graph.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, n := range cs.Nodes {
		props, err := json.Marshal(n.Props)
		if err != nil {
			return fmt.Errorf("encode node %s props: %w", n.Key, err)
		}
		if _, err := tx.Exec(ctx, upsertNodeSQL, n.Key, n.Label, string(n.Base), props); err != nil {
			return mapPgError("upsert node "+n.Key, err)
		}
	}
	for _, e := range cs.Edges {
		for _, ref := range []graph.NodeRef{e.From, e.To} {
			base, _ := graph.BaseTypeOf(ref.Label)
			if _, err := tx.Exec(ctx, ensureNodeSQL, ref.Key, ref.Label, string(base)); err != nil {
				return mapPgError("ensure node "+ref.Key, err)
			}
		}
		props, err := json.Marshal(e.Props)
		if err != nil {
			return fmt.Errorf("encode edge props: %w", err)
		}
		if _, err := tx.Exec(ctx, upsertEdgeSQL, e.From.Key, e.To.Key, e.Type, e.Role, e.Label, props); err != nil {
			return mapPgError(fmt.Sprintf("upsert edge %s->%s", e.From.Key, e.To.Key), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError("commit", err)
	}
	return nil
}

// Stats counts nodes and edges.
func (s *Store) Stats(ctx context.Context) (graphstore.Stats, error) {
	var stats graphstore.Stats
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM prov_nodes`).Scan(&stats.Nodes); err != nil {
		return graphstore.Stats{}, mapPgError("count nodes", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM prov_edges`).Scan(&stats.Edges); err != nil {
		return graphstore.Stats{}, mapPgError("count edges", err)
	}
	return stats, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapPgError classifies serialization failures and deadlocks as conflicts;
// everything else on the write path is treated as the store being
// unavailable.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w: %s", op, domain.ErrUnavailable, err)
}
