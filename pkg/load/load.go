package load

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/metrics"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
)

// ReportFile is the per-store manifest basename
const ReportFile = "load-manifest.json"

// Relational loads one store's staged files in forward dependency
// order under a single transaction. Missing and empty files are
// skipped. The first failure rolls the whole store back; nothing is
// partially visible.
func Relational(ctx context.Context, rel store.Relational, storeID string, tables []string, dataDir string, strategy types.LoadStrategy, analysis *types.SchemaAnalysis) *types.LoadManifest {
	start := time.Now()
	defer metrics.ObservePhase("load_"+storeID, start)
	logger := log.WithStore(storeID)

	manifest := &types.LoadManifest{
		RunTimestamp: start.UTC(),
		Store:        storeID,
		Strategy:     strategy,
	}
	finish := func() *types.LoadManifest {
		manifest.Success = len(manifest.Errors) == 0
		manifest.DurationSeconds = time.Since(start).Seconds()
		return manifest
	}

	tx, err := rel.Begin(ctx)
	if err != nil {
		manifest.Errors = append(manifest.Errors, err.Error())
		return finish()
	}

	for _, tableName := range tables {
		if err := ctx.Err(); err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			manifest.Errors = append(manifest.Errors, fmt.Sprintf("cancelled before %s, transaction rolled back", tableName))
			return finish()
		}

		path := filepath.Join(dataDir, stage.FileName(storeID, tableName))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := stage.Read(path)
		if err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			manifest.FailedTable = tableName
			manifest.Errors = append(manifest.Errors, fmt.Sprintf("%s: %v", tableName, err))
			return finish()
		}
		if data.Rows() == 0 {
			continue
		}

		schema := tableSchemaFor(analysis, storeID, tableName, data)
		written, err := tx.WriteBulk(ctx, schema, data, strategy)
		if err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			manifest.FailedTable = tableName
			manifest.TablesLoaded = append(manifest.TablesLoaded, types.TableLoad{
				Table: tableName, Store: storeID, Strategy: strategy, Error: err.Error(),
			})
			manifest.Errors = append(manifest.Errors, fmt.Sprintf("%s: %v", tableName, err))
			logger.Error().Str("table", tableName).Err(err).Msg("Load failed, store rolled back")
			return finish()
		}

		manifest.TablesLoaded = append(manifest.TablesLoaded, types.TableLoad{
			Table: tableName, Store: storeID, RowsLoaded: written, Strategy: strategy, Success: true,
		})
		manifest.TotalRowsLoaded += written
		metrics.RowsLoaded.WithLabelValues(storeID).Add(float64(written))
	}

	if err := tx.Commit(ctx); err != nil {
		manifest.Errors = append(manifest.Errors, fmt.Sprintf("commit: %v", err))
		return finish()
	}

	logger.Info().
		Int("tables", len(manifest.TablesLoaded)).
		Int64("rows", manifest.TotalRowsLoaded).
		Msg("Store load committed")
	return finish()
}

// tableSchemaFor prefers the introspected schema; without one the
// staged file's own column schemas have to carry the load
func tableSchemaFor(analysis *types.SchemaAnalysis, storeID, tableName string, data *stage.Table) types.TableSchema {
	if analysis != nil {
		if schema := analysis.TableFor(fmt.Sprintf("%s.%s.%s", storeID, config.DefaultSchema, tableName)); schema != nil {
			return *schema
		}
	}
	return types.TableSchema{
		Store:   storeID,
		Schema:  config.DefaultSchema,
		Name:    tableName,
		Columns: data.Schemas(),
	}
}

// Graph loads the staged node and relationship files: nodes merged on
// their id property first, then edges between them. There is no
// transaction across the two; a failure reports counts loaded so far.
func Graph(ctx context.Context, g store.Graph, storeID, dataDir string) *types.LoadManifest {
	start := time.Now()
	defer metrics.ObservePhase("load_"+storeID, start)
	logger := log.WithStore(storeID)

	manifest := &types.LoadManifest{
		RunTimestamp: start.UTC(),
		Store:        storeID,
		Strategy:     types.LoadMerge,
		Graph:        &types.GraphLoad{Store: storeID},
	}
	finish := func() *types.LoadManifest {
		manifest.Graph.Success = len(manifest.Errors) == 0
		manifest.Success = manifest.Graph.Success
		manifest.TotalRowsLoaded = manifest.Graph.NodesLoaded + manifest.Graph.RelationshipsLoaded
		manifest.DurationSeconds = time.Since(start).Seconds()
		return manifest
	}

	nodesPath := filepath.Join(dataDir, stage.GraphNodesFile)
	if _, err := os.Stat(nodesPath); os.IsNotExist(err) {
		return finish()
	}
	nodes, err := stage.Read(nodesPath)
	if err != nil {
		manifest.Errors = append(manifest.Errors, err.Error())
		return finish()
	}

	loaded, err := g.LoadNodes(ctx, nodes)
	manifest.Graph.NodesLoaded = loaded
	metrics.RowsLoaded.WithLabelValues(storeID).Add(float64(loaded))
	if err != nil {
		manifest.Graph.Error = err.Error()
		manifest.Errors = append(manifest.Errors, err.Error())
		return finish()
	}

	edgesPath := filepath.Join(dataDir, stage.GraphEdgesFile)
	if _, err := os.Stat(edgesPath); os.IsNotExist(err) {
		return finish()
	}
	edges, err := stage.Read(edgesPath)
	if err != nil {
		manifest.Errors = append(manifest.Errors, err.Error())
		return finish()
	}

	loaded, err = g.LoadEdges(ctx, nodes, edges)
	manifest.Graph.RelationshipsLoaded = loaded
	metrics.RowsLoaded.WithLabelValues(storeID).Add(float64(loaded))
	if err != nil {
		manifest.Graph.Error = err.Error()
		manifest.Errors = append(manifest.Errors, err.Error())
		return finish()
	}

	logger.Info().
		Int64("nodes", manifest.Graph.NodesLoaded).
		Int64("relationships", manifest.Graph.RelationshipsLoaded).
		Msg("Graph load complete")
	return finish()
}
