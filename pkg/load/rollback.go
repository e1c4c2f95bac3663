package load

import (
	"context"
	"fmt"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
)

// SkipNoTenantColumn marks tables rollback cannot scope to the tenant
const SkipNoTenantColumn = "no_tenant_column"

// RollbackRelational deletes the tenant's rows from one store, tables
// in reverse extraction order, under a single transaction. Idempotent:
// a clean store reports zero rows.
func RollbackRelational(ctx context.Context, rel store.Relational, storeID string, tables []string, filter types.TenantFilter, analysis *types.SchemaAnalysis) *types.StoreRollback {
	logger := log.WithStore(storeID)
	result := &types.StoreRollback{Store: storeID}

	tx, err := rel.Begin(ctx)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for i := len(tables) - 1; i >= 0; i-- {
		tableName := tables[i]
		if err := ctx.Err(); err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			result.Error = fmt.Sprintf("cancelled before %s, transaction rolled back", tableName)
			return result
		}

		schema := analysis.TableFor(fmt.Sprintf("%s.%s.%s", storeID, config.DefaultSchema, tableName))
		if schema == nil || !schema.HasColumn(filter.Key) {
			result.Tables = append(result.Tables, types.TableRollback{
				Table: tableName, Skipped: true, SkipReason: SkipNoTenantColumn,
			})
			continue
		}

		deleted, err := tx.DeleteByTenant(ctx, *schema, filter)
		if err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			result.Error = fmt.Sprintf("%s: %v", tableName, err)
			logger.Error().Str("table", tableName).Err(err).Msg("Rollback delete failed")
			return result
		}
		result.Tables = append(result.Tables, types.TableRollback{Table: tableName, RowsDeleted: deleted})
		result.RowsDeleted += deleted
	}

	if err := tx.Commit(ctx); err != nil {
		result.Error = fmt.Sprintf("commit: %v", err)
		return result
	}

	result.Success = true
	logger.Info().Int64("rows", result.RowsDeleted).Msg("Store rollback committed")
	return result
}

// RollbackGraph detach-deletes the tenant's graph neighborhood
func RollbackGraph(ctx context.Context, g store.Graph, storeID, rootLabel string, filter types.TenantFilter, maxDepth int) *types.StoreRollback {
	result := &types.StoreRollback{Store: storeID}

	deleted, err := g.DeleteByTenant(ctx, rootLabel, filter, maxDepth)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.RowsDeleted = deleted
	result.Tables = []types.TableRollback{{Table: "neighborhood", RowsDeleted: deleted}}
	result.Success = true
	logger := log.WithStore(storeID)
	logger.Info().Int64("nodes", deleted).Msg("Graph rollback complete")
	return result
}
