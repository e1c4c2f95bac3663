package store

import (
	"context"

	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// Relational is the capability surface the pipeline needs from a
// relational store. Implementations own their connection pool;
// callers own the transaction lifecycle through Begin.
type Relational interface {
	// Introspect reads catalog metadata for one schema. The FK list
	// reflects declared constraints only; convention-only *_id columns
	// are not reported.
	Introspect(ctx context.Context, schema string) ([]types.TableSchema, error)

	// ReadFiltered streams the tenant's rows of one table into a
	// staging table. A table carrying the filter column is read with a
	// direct equality predicate; otherwise path must give the FK walk
	// to a table that carries it. Fails with errtag.Filter when the
	// column is absent and no path is provided.
	ReadFiltered(ctx context.Context, table types.TableSchema, filter types.TenantFilter, path []types.JoinHop) (*stage.Table, error)

	// Begin opens the store's single write transaction for a phase
	Begin(ctx context.Context) (Tx, error)

	Close()
}

// Tx is one store-level write transaction. Exactly one is held per
// store per phase, from Begin to Commit or Rollback.
type Tx interface {
	// WriteBulk applies the staged rows under the transaction using
	// the given conflict policy and returns the row count written
	WriteBulk(ctx context.Context, table types.TableSchema, data *stage.Table, strategy types.LoadStrategy) (int64, error)

	// DeleteByTenant removes the tenant's rows from one table. The
	// caller is responsible for skipping tables without the filter
	// column.
	DeleteByTenant(ctx context.Context, table types.TableSchema, filter types.TenantFilter) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Graph is the capability surface of the graph store
type Graph interface {
	// ExtractNeighborhood performs a bounded-depth traversal from the
	// tenant root and returns distinct reachable nodes plus the edges
	// between them, internal ids included for edge reconstruction.
	ExtractNeighborhood(ctx context.Context, rootLabel string, filter types.TenantFilter, maxDepth int) (nodes, edges *stage.Table, err error)

	// LoadNodes merges staged nodes on their stable id property
	LoadNodes(ctx context.Context, nodes *stage.Table) (int64, error)

	// LoadEdges merges staged edges between previously loaded nodes,
	// resolving exported internal ids through the nodes table. Edge
	// properties are replaced, not merged.
	LoadEdges(ctx context.Context, nodes, edges *stage.Table) (int64, error)

	// DeleteByTenant detach-deletes every node reachable from the
	// tenant root within maxDepth. Idempotent: a clean store yields
	// zero.
	DeleteByTenant(ctx context.Context, rootLabel string, filter types.TenantFilter, maxDepth int) (int64, error)

	Close(ctx context.Context) error
}
