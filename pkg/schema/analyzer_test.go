package schema

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/types"
)

func table(store, name string, fks ...types.ForeignKey) types.TableSchema {
	return types.TableSchema{
		Store:  store,
		Schema: "public",
		Name:   name,
		Columns: []types.ColumnSchema{
			{Name: "id", Type: types.TypeInt},
		},
		PrimaryKey:  []string{"id"},
		ForeignKeys: fks,
	}
}

func fk(col, toTable string) types.ForeignKey {
	return types.ForeignKey{FromColumns: []string{col}, ToTable: toTable, ToColumns: []string{"id"}}
}

func TestAnalyzeLinearChain(t *testing.T) {
	// a <- b <- c: parents extract before children
	tables := []types.TableSchema{
		table("adb", "c", fk("b_id", "adb.public.b")),
		table("adb", "a"),
		table("adb", "b", fk("a_id", "adb.public.a")),
	}

	analysis := Analyze(tables)

	assert.True(t, analysis.Success)
	assert.False(t, analysis.HasCycles)
	assert.Empty(t, analysis.CircularDeps)
	assert.Equal(t, []string{"adb.public.a", "adb.public.b", "adb.public.c"}, analysis.ExtractionOrder)
	assert.Equal(t, 3, analysis.TotalTables)
	assert.Equal(t, 2, analysis.TotalRelationships)
	assert.Equal(t, []string{"a", "b", "c"}, analysis.ExtractionByStore["adb"])
}

func TestAnalyzeTwoCycle(t *testing.T) {
	tables := []types.TableSchema{
		table("adb", "x", fk("y_id", "adb.public.y")),
		table("adb", "y", fk("x_id", "adb.public.x")),
	}

	analysis := Analyze(tables)

	assert.True(t, analysis.HasCycles)
	require.Len(t, analysis.CircularDeps, 1)

	cycle := analysis.CircularDeps[0]
	assert.Equal(t, []string{"adb.public.x", "adb.public.y", "adb.public.x"}, cycle.Tables)
	// Equal out-degree, lexical tiebreak
	assert.Equal(t, "adb.public.x", cycle.BreakPoint.BreakFrom)
	assert.Equal(t, "adb.public.y", cycle.BreakPoint.BreakTo)

	// The order still covers every table, break target first
	assert.Equal(t, []string{"adb.public.y", "adb.public.x"}, analysis.ExtractionOrder)
}

func TestAnalyzeCycleBreakPrefersFewestDependents(t *testing.T) {
	// p -> q -> p, and p additionally feeds two leaves, so q has the
	// fewer outgoing edges and is the break-from node
	tables := []types.TableSchema{
		table("hcp1", "p", fk("q_id", "hcp1.public.q")),
		table("hcp1", "q", fk("p_id", "hcp1.public.p")),
		table("hcp1", "leaf1", fk("p_id", "hcp1.public.p")),
		table("hcp1", "leaf2", fk("p_id", "hcp1.public.p")),
	}

	analysis := Analyze(tables)

	require.Len(t, analysis.CircularDeps, 1)
	bp := analysis.CircularDeps[0].BreakPoint
	assert.Equal(t, "hcp1.public.q", bp.BreakFrom)
	assert.Equal(t, "hcp1.public.p", bp.BreakTo)
	assert.Len(t, analysis.ExtractionOrder, 4)
}

func TestAnalyzeCrossStoreSplit(t *testing.T) {
	tables := []types.TableSchema{
		table("adb", "districts"),
		table("adb", "schools", fk("district_id", "adb.public.districts")),
		table("ids", "identities"),
	}

	analysis := Analyze(tables)

	assert.Equal(t, []string{"districts", "schools"}, analysis.ExtractionByStore["adb"])
	assert.Equal(t, []string{"identities"}, analysis.ExtractionByStore["ids"])
}

func TestBuildGraphDeduplicatesEdges(t *testing.T) {
	// Two FKs to the same parent collapse to one edge
	tables := []types.TableSchema{
		table("adb", "parent"),
		table("adb", "child",
			fk("created_by", "adb.public.parent"),
			fk("updated_by", "adb.public.parent")),
	}

	graph := BuildGraph(tables)
	assert.Equal(t, []string{"adb.public.child"}, graph["adb.public.parent"])
}

func TestFindCyclesReportsEachOnce(t *testing.T) {
	graph := map[string][]string{
		"adb.public.x": {"adb.public.y"},
		"adb.public.y": {"adb.public.x"},
		"adb.public.z": {},
	}

	cycles := FindCycles(graph)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"adb.public.x", "adb.public.y", "adb.public.x"}, cycles[0])
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	graph := map[string][]string{
		"adb.public.root": {"adb.public.m", "adb.public.k"},
		"adb.public.m":    {},
		"adb.public.k":    {},
	}

	first, hasCycle := TopologicalOrder(graph, nil)
	assert.False(t, hasCycle)
	for i := 0; i < 10; i++ {
		again, _ := TopologicalOrder(graph, nil)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"adb.public.root", "adb.public.k", "adb.public.m"}, first)
}

func TestWriteDOT(t *testing.T) {
	graph := map[string][]string{
		"adb.public.districts": {"adb.public.schools"},
		"adb.public.schools":   {},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDOT(graph, &buf))

	out := buf.String()
	assert.Contains(t, out, "digraph dependencies")
	assert.Contains(t, out, `"districts" -> "schools";`)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	analysis := Analyze([]types.TableSchema{
		table("adb", "districts"),
		table("adb", "schools", fk("district_id", "adb.public.districts")),
	})

	path, err := Save(analysis, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AnalysisFile), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, analysis.ExtractionOrder, loaded.ExtractionOrder)
	assert.Equal(t, analysis.DependencyGraph, loaded.DependencyGraph)
	require.NotNil(t, loaded.TableFor("adb.public.schools"))
}
