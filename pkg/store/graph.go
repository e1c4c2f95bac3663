package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/rs/zerolog"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// Staging schemas for the graph store. Labels and properties are
// staged as JSON text so the columnar format stays closed over its
// scalar cell domain.
func NodeStageColumns() []types.ColumnSchema {
	return []types.ColumnSchema{
		{Name: "_internal_id", Type: types.TypeInt},
		{Name: "_labels", Type: types.TypeString},
		{Name: "properties", Type: types.TypeString},
	}
}

func EdgeStageColumns() []types.ColumnSchema {
	return []types.ColumnSchema{
		{Name: "start_internal_id", Type: types.TypeInt},
		{Name: "type", Type: types.TypeString},
		{Name: "end_internal_id", Type: types.TypeInt},
		{Name: "properties", Type: types.TypeString},
	}
}

// Neo4j implements Graph over the bolt driver
type Neo4j struct {
	driver neo4j.DriverWithContext
	store  string
	logger zerolog.Logger
}

// ConnectNeo4j opens and verifies a driver for the graph store
func ConnectNeo4j(ctx context.Context, storeID string, creds config.GraphCredentials) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(creds.URI, neo4j.BasicAuth(creds.User, creds.Password, ""))
	if err != nil {
		return nil, errtag.Connection.New("connecting to %s: %v", storeID, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errtag.Connection.New("verifying %s at %s: %v", storeID, creds.URI, err)
	}
	return &Neo4j{
		driver: driver,
		store:  storeID,
		logger: log.WithStore(storeID),
	}, nil
}

// Close releases the driver
func (g *Neo4j) Close(ctx context.Context) error { return g.driver.Close(ctx) }

// ExtractNeighborhood dumps the tenant's neighborhood: distinct nodes
// within maxDepth of the root and the edges between them
func (g *Neo4j) ExtractNeighborhood(ctx context.Context, rootLabel string, filter types.TenantFilter, maxDepth int) (*stage.Table, *stage.Table, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	params := map[string]any{"tenant": filter.Value}

	nodes := stage.NewTable(NodeStageColumns())
	result, err := session.Run(ctx, NeighborhoodNodesQuery(rootLabel, maxDepth), params)
	if err != nil {
		return nil, nil, errtag.Data.New("%s: node traversal: %v", g.store, err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		internalID, _ := rec.Get("internal_id")
		labels, _ := rec.Get("labels")
		props, _ := rec.Get("props")

		labelsJSON, err := json.Marshal(normalizeGraphValue(labels))
		if err != nil {
			return nil, nil, errtag.Data.New("%s: encoding node labels: %v", g.store, err)
		}
		propsJSON, err := json.Marshal(normalizeGraphValue(props))
		if err != nil {
			return nil, nil, errtag.Data.New("%s: encoding node properties: %v", g.store, err)
		}
		if err := nodes.AppendRow([]any{internalID, string(labelsJSON), string(propsJSON)}); err != nil {
			return nil, nil, errtag.Data.New("%s: staging node: %v", g.store, err)
		}
	}
	if err := result.Err(); err != nil {
		return nil, nil, errtag.Data.New("%s: node traversal: %v", g.store, err)
	}

	edges := stage.NewTable(EdgeStageColumns())
	result, err = session.Run(ctx, NeighborhoodEdgesQuery(rootLabel, maxDepth), params)
	if err != nil {
		return nil, nil, errtag.Data.New("%s: edge traversal: %v", g.store, err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		startID, _ := rec.Get("start_id")
		relType, _ := rec.Get("type")
		endID, _ := rec.Get("end_id")
		props, _ := rec.Get("props")

		propsJSON, err := json.Marshal(normalizeGraphValue(props))
		if err != nil {
			return nil, nil, errtag.Data.New("%s: encoding edge properties: %v", g.store, err)
		}
		if err := edges.AppendRow([]any{startID, relType, endID, string(propsJSON)}); err != nil {
			return nil, nil, errtag.Data.New("%s: staging edge: %v", g.store, err)
		}
	}
	if err := result.Err(); err != nil {
		return nil, nil, errtag.Data.New("%s: edge traversal: %v", g.store, err)
	}

	g.logger.Info().Int("nodes", nodes.Rows()).Int("edges", edges.Rows()).Msg("Neighborhood extracted")
	return nodes, edges, nil
}

// LoadNodes merges staged nodes on their id property. Nodes without an
// id property cannot be merged stably and are skipped with a warning.
func (g *Neo4j) LoadNodes(ctx context.Context, nodes *stage.Table) (int64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	var loaded int64
	for i := 0; i < nodes.Rows(); i++ {
		if err := ctx.Err(); err != nil {
			return loaded, errtag.Cancelled.Wrap(err)
		}
		labels, props, err := decodeNodeRow(nodes, i)
		if err != nil {
			return loaded, err
		}
		id, ok := props["id"]
		if !ok {
			g.logger.Warn().Int("row", i).Msg("Node has no id property, skipping")
			continue
		}
		_, err = session.Run(ctx, MergeNodeQuery(labels), map[string]any{"id": id, "props": props})
		if err != nil {
			return loaded, errtag.Data.New("%s: merging node %v: %v", g.store, id, err)
		}
		loaded++
	}
	return loaded, nil
}

// LoadEdges merges staged edges, resolving exported internal ids to id
// properties through the nodes table. Edges touching an unknown
// endpoint are skipped with a warning.
func (g *Neo4j) LoadEdges(ctx context.Context, nodes, edges *stage.Table) (int64, error) {
	idByInternal := make(map[int64]any, nodes.Rows())
	for i := 0; i < nodes.Rows(); i++ {
		_, props, err := decodeNodeRow(nodes, i)
		if err != nil {
			return 0, err
		}
		internal, _ := nodes.Value("_internal_id", i)
		iid, ok := internal.(int64)
		if !ok {
			continue
		}
		if id, ok := props["id"]; ok {
			idByInternal[iid] = id
		}
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	var loaded int64
	for i := 0; i < edges.Rows(); i++ {
		if err := ctx.Err(); err != nil {
			return loaded, errtag.Cancelled.Wrap(err)
		}
		start, _ := edges.Value("start_internal_id", i)
		end, _ := edges.Value("end_internal_id", i)
		relType, _ := edges.Value("type", i)
		propsRaw, _ := edges.Value("properties", i)

		startInternal, _ := start.(int64)
		endInternal, _ := end.(int64)
		startID, okStart := idByInternal[startInternal]
		endID, okEnd := idByInternal[endInternal]
		if !okStart || !okEnd {
			g.logger.Warn().Int("row", i).Msg("Edge endpoint not in staged nodes, skipping")
			continue
		}

		props := map[string]any{}
		if s, ok := propsRaw.(string); ok && s != "" {
			if err := json.Unmarshal([]byte(s), &props); err != nil {
				return loaded, errtag.Data.New("%s: decoding edge %d properties: %v", g.store, i, err)
			}
		}

		_, err := session.Run(ctx, MergeEdgeQuery(relType.(string)), map[string]any{
			"start_id": startID,
			"end_id":   endID,
			"props":    props,
		})
		if err != nil {
			return loaded, errtag.Data.New("%s: merging edge %d: %v", g.store, i, err)
		}
		loaded++
	}
	return loaded, nil
}

// DeleteByTenant detach-deletes the tenant neighborhood and returns
// the node count removed
func (g *Neo4j) DeleteByTenant(ctx context.Context, rootLabel string, filter types.TenantFilter, maxDepth int) (int64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, DeleteTenantQuery(rootLabel, maxDepth), map[string]any{"tenant": filter.Value})
	if err != nil {
		return 0, errtag.Data.New("%s: deleting tenant neighborhood: %v", g.store, err)
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return 0, errtag.Data.New("%s: deleting tenant neighborhood: %v", g.store, err)
	}
	return int64(summary.Counters().NodesDeleted()), nil
}

func decodeNodeRow(nodes *stage.Table, row int) ([]string, map[string]any, error) {
	labelsRaw, _ := nodes.Value("_labels", row)
	propsRaw, _ := nodes.Value("properties", row)

	var labels []string
	if s, ok := labelsRaw.(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &labels); err != nil {
			return nil, nil, errtag.Data.New("decoding node %d labels: %v", row, err)
		}
	}
	props := map[string]any{}
	if s, ok := propsRaw.(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &props); err != nil {
			return nil, nil, errtag.Data.New("decoding node %d properties: %v", row, err)
		}
	}
	return labels, props, nil
}

// normalizeGraphValue rewrites driver temporal types into JSON-safe
// strings, recursing through lists and maps
func normalizeGraphValue(v any) any {
	switch x := v.(type) {
	case dbtype.Date:
		return x.Time().Format("2006-01-02")
	case dbtype.LocalDateTime:
		return x.Time().Format(time.RFC3339Nano)
	case dbtype.LocalTime:
		return x.Time().Format("15:04:05.999999999")
	case dbtype.Time:
		return x.Time().Format("15:04:05.999999999Z07:00")
	case dbtype.Duration:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeGraphValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeGraphValue(e)
		}
		return out
	default:
		return v
	}
}
