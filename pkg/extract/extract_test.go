package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

type fakeGraph struct {
	nodes *stage.Table
	edges *stage.Table
	err   error
}

func (g *fakeGraph) ExtractNeighborhood(ctx context.Context, rootLabel string, filter types.TenantFilter, maxDepth int) (*stage.Table, *stage.Table, error) {
	return g.nodes, g.edges, g.err
}

func (g *fakeGraph) LoadNodes(ctx context.Context, nodes *stage.Table) (int64, error) {
	return 0, nil
}

func (g *fakeGraph) LoadEdges(ctx context.Context, nodes, edges *stage.Table) (int64, error) {
	return 0, nil
}

func (g *fakeGraph) DeleteByTenant(ctx context.Context, rootLabel string, filter types.TenantFilter, maxDepth int) (int64, error) {
	return 0, nil
}

func (g *fakeGraph) Close(ctx context.Context) error { return nil }

func graphFixture(t *testing.T) *fakeGraph {
	t.Helper()
	nodes := stage.NewTable([]types.ColumnSchema{
		{Name: "_internal_id", Type: types.TypeInt},
		{Name: "_labels", Type: types.TypeString},
		{Name: "properties", Type: types.TypeString},
	})
	require.NoError(t, nodes.AppendRow([]any{int64(1), `["District"]`, `{"id":"d-1"}`}))
	require.NoError(t, nodes.AppendRow([]any{int64(2), `["School"]`, `{"id":"s-1"}`}))

	edges := stage.NewTable([]types.ColumnSchema{
		{Name: "start_internal_id", Type: types.TypeInt},
		{Name: "type", Type: types.TypeString},
		{Name: "end_internal_id", Type: types.TypeInt},
		{Name: "properties", Type: types.TypeString},
	})
	require.NoError(t, edges.AppendRow([]any{int64(1), "HAS_SCHOOL", int64(2), "{}"}))

	return &fakeGraph{nodes: nodes, edges: edges}
}

func TestGraphStagesNeighborhood(t *testing.T) {
	outDir := t.TempDir()
	filter := types.TenantFilter{Key: "district_id", Value: "d-1"}

	manifest := Graph(context.Background(), graphFixture(t), "sp", filter, 10, outDir)

	require.True(t, manifest.Success)
	assert.Equal(t, int64(2), manifest.Graph.Nodes)
	assert.Equal(t, int64(1), manifest.Graph.Relationships)
	assert.Equal(t, int64(3), manifest.TotalRecords)
	assert.Equal(t, stage.GraphNodesFile, manifest.Graph.Files["nodes"])
	assert.FileExists(t, filepath.Join(outDir, stage.GraphNodesFile))
	assert.FileExists(t, filepath.Join(outDir, stage.GraphEdgesFile))
}

func TestGraphWriteFailureReportsNothingStaged(t *testing.T) {
	// A regular file where the staging directory should be makes
	// every write fail
	outDir := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(outDir, []byte("x"), 0644))
	filter := types.TenantFilter{Key: "district_id", Value: "d-1"}

	manifest := Graph(context.Background(), graphFixture(t), "sp", filter, 10, outDir)

	require.False(t, manifest.Success)
	assert.NotEmpty(t, manifest.Errors)
	assert.Zero(t, manifest.Graph.Nodes)
	assert.Zero(t, manifest.Graph.Relationships)
	assert.Empty(t, manifest.Graph.Files)
	assert.Zero(t, manifest.TotalRecords)
}

func TestGraphTraversalErrorFailsManifest(t *testing.T) {
	g := graphFixture(t)
	g.err = assert.AnError
	filter := types.TenantFilter{Key: "district_id", Value: "d-1"}

	manifest := Graph(context.Background(), g, "sp", filter, 10, t.TempDir())

	require.False(t, manifest.Success)
	assert.Equal(t, assert.AnError.Error(), manifest.Graph.Error)
}
