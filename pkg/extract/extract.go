package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/metrics"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
)

// ReportFile is the per-store manifest basename
const ReportFile = "extraction-manifest.json"

// SkipNoTenantPath is the skip reason for tables that cannot be scoped
// to the tenant
const SkipNoTenantPath = "no_tenant_path"

// RootLabel is the graph traversal root's node label
const RootLabel = "District"

// Relational extracts one store's tables in dependency order into
// outDir. A per-table failure records an error and continues; losing
// the connection or being cancelled ends the phase.
func Relational(ctx context.Context, rel store.Relational, storeID string, filter types.TenantFilter, analysis *types.SchemaAnalysis, outDir string) *types.ExtractionManifest {
	start := time.Now()
	defer metrics.ObservePhase("extract_"+storeID, start)
	logger := log.WithStore(storeID)

	manifest := &types.ExtractionManifest{
		RunTimestamp: start.UTC(),
		Store:        storeID,
		Filter:       filter,
	}

	for _, tableName := range analysis.ExtractionByStore[storeID] {
		if err := ctx.Err(); err != nil {
			manifest.Errors = append(manifest.Errors, fmt.Sprintf("cancelled before %s", tableName))
			break
		}

		result, err := extractTable(ctx, rel, storeID, tableName, filter, analysis, outDir)
		manifest.TablesExtracted = append(manifest.TablesExtracted, result)
		manifest.TotalRecords += result.Records
		metrics.RowsExtracted.WithLabelValues(storeID).Add(float64(result.Records))

		if result.Error != "" {
			manifest.Errors = append(manifest.Errors, fmt.Sprintf("%s: %s", tableName, result.Error))
		}
		if fatalExtractError(err) {
			logger.Error().Str("table", tableName).Err(err).Msg("Aborting store extraction")
			break
		}
	}

	manifest.Success = len(manifest.Errors) == 0
	manifest.DurationSeconds = time.Since(start).Seconds()
	logger.Info().
		Int("tables", len(manifest.TablesExtracted)).
		Int64("records", manifest.TotalRecords).
		Bool("success", manifest.Success).
		Msg("Store extraction complete")
	return manifest
}

func extractTable(ctx context.Context, rel store.Relational, storeID, tableName string, filter types.TenantFilter, analysis *types.SchemaAnalysis, outDir string) (types.TableExtraction, error) {
	result := types.TableExtraction{Table: tableName, Store: storeID}

	schema := analysis.TableFor(fmt.Sprintf("%s.%s.%s", storeID, config.DefaultSchema, tableName))
	if schema == nil {
		result.Error = "table not present in schema analysis"
		return result, nil
	}

	path, ok := DeriveJoinPath(*schema, filter.Key, analysis)
	if !ok {
		result.Skipped = true
		result.SkipReason = SkipNoTenantPath
		result.Success = true
		return result, nil
	}
	if len(path) == 0 {
		result.JoinStrategy = "direct"
	} else {
		hops := make([]string, len(path))
		for i, h := range path {
			hops[i] = h.Table
		}
		result.JoinStrategy = "join:" + strings.Join(hops, ">")
	}

	data, err := rel.ReadFiltered(ctx, *schema, filter, path)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	file := stage.FileName(storeID, tableName)
	if err := data.Write(filepath.Join(outDir, file)); err != nil {
		result.Error = err.Error()
		return result, err
	}

	result.Records = int64(data.Rows())
	result.File = file
	result.Success = true
	return result, nil
}

// fatalExtractError reports whether a per-table error should end the
// whole store's extraction: connection loss and cancellation are
// fatal, anything else continues with the next table
func fatalExtractError(err error) bool {
	if err == nil {
		return false
	}
	tag := errtag.Tag(err)
	return tag == "connection" || tag == "cancelled"
}

// Graph dumps the tenant's graph neighborhood into outDir
func Graph(ctx context.Context, g store.Graph, storeID string, filter types.TenantFilter, maxDepth int, outDir string) *types.ExtractionManifest {
	start := time.Now()
	defer metrics.ObservePhase("extract_"+storeID, start)
	logger := log.WithStore(storeID)

	manifest := &types.ExtractionManifest{
		RunTimestamp: start.UTC(),
		Store:        storeID,
		Filter:       filter,
		Graph:        &types.GraphExtraction{Store: storeID},
	}

	nodes, edges, err := g.ExtractNeighborhood(ctx, RootLabel, filter, maxDepth)
	if err != nil {
		manifest.Graph.Error = err.Error()
		manifest.Errors = append(manifest.Errors, err.Error())
		manifest.DurationSeconds = time.Since(start).Seconds()
		return manifest
	}

	if err := nodes.Write(filepath.Join(outDir, stage.GraphNodesFile)); err != nil {
		manifest.Errors = append(manifest.Errors, err.Error())
	} else if err := edges.Write(filepath.Join(outDir, stage.GraphEdgesFile)); err != nil {
		manifest.Errors = append(manifest.Errors, err.Error())
	} else {
		// Counts and file entries describe staged data only
		manifest.Graph.Nodes = int64(nodes.Rows())
		manifest.Graph.Relationships = int64(edges.Rows())
		manifest.Graph.Files = map[string]string{
			"nodes":         stage.GraphNodesFile,
			"relationships": stage.GraphEdgesFile,
		}
	}
	manifest.Graph.Success = len(manifest.Errors) == 0
	manifest.TotalRecords = manifest.Graph.Nodes + manifest.Graph.Relationships
	manifest.Success = manifest.Graph.Success
	manifest.DurationSeconds = time.Since(start).Seconds()
	metrics.RowsExtracted.WithLabelValues(storeID).Add(float64(manifest.TotalRecords))

	logger.Info().
		Int64("nodes", manifest.Graph.Nodes).
		Int64("relationships", manifest.Graph.Relationships).
		Bool("success", manifest.Success).
		Msg("Graph extraction complete")
	return manifest
}
