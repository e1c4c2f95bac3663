package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/types"
)

func analysisOf(tables ...types.TableSchema) *types.SchemaAnalysis {
	return &types.SchemaAnalysis{Tables: tables}
}

func schemaTable(name string, columns []string, fks ...types.ForeignKey) types.TableSchema {
	t := types.TableSchema{Store: "adb", Schema: "public", Name: name, ForeignKeys: fks}
	for _, c := range columns {
		t.Columns = append(t.Columns, types.ColumnSchema{Name: c, Type: types.TypeString})
	}
	return t
}

func TestDeriveJoinPathDirect(t *testing.T) {
	table := schemaTable("schools", []string{"id", "district_id"})

	path, ok := DeriveJoinPath(table, "district_id", nil)
	assert.True(t, ok)
	assert.Empty(t, path)
}

func TestDeriveJoinPathOneHop(t *testing.T) {
	schools := schemaTable("schools", []string{"id", "district_id"})
	students := schemaTable("students", []string{"id", "school_id"},
		types.ForeignKey{FromColumns: []string{"school_id"}, ToTable: "adb.public.schools", ToColumns: []string{"id"}})

	path, ok := DeriveJoinPath(students, "district_id", analysisOf(schools, students))
	require.True(t, ok)
	assert.Equal(t, []types.JoinHop{{Table: "schools", FKColumn: "school_id"}}, path)
}

func TestDeriveJoinPathTwoHops(t *testing.T) {
	schools := schemaTable("schools", []string{"id", "district_id"})
	students := schemaTable("students", []string{"id", "school_id"},
		types.ForeignKey{FromColumns: []string{"school_id"}, ToTable: "adb.public.schools", ToColumns: []string{"id"}})
	grades := schemaTable("grades", []string{"id", "student_id"},
		types.ForeignKey{FromColumns: []string{"student_id"}, ToTable: "adb.public.students", ToColumns: []string{"id"}})

	path, ok := DeriveJoinPath(grades, "district_id", analysisOf(schools, students, grades))
	require.True(t, ok)
	assert.Equal(t, []types.JoinHop{
		{Table: "students", FKColumn: "student_id"},
		{Table: "schools", FKColumn: "school_id"},
	}, path)
}

func TestDeriveJoinPathNoPath(t *testing.T) {
	lookup := schemaTable("grade_scales", []string{"id", "label"})

	_, ok := DeriveJoinPath(lookup, "district_id", analysisOf(lookup))
	assert.False(t, ok)
}

func TestDeriveJoinPathIgnoresCrossStoreFKs(t *testing.T) {
	remote := types.TableSchema{Store: "ids", Schema: "public", Name: "identities",
		Columns: []types.ColumnSchema{{Name: "id"}, {Name: "district_id"}}}
	local := schemaTable("links", []string{"id", "identity_id"},
		types.ForeignKey{FromColumns: []string{"identity_id"}, ToTable: "ids.public.identities", ToColumns: []string{"id"}})

	_, ok := DeriveJoinPath(local, "district_id", analysisOf(remote, local))
	assert.False(t, ok)
}

func TestDeriveJoinPathSurvivesFKCycles(t *testing.T) {
	// x <-> y, neither carries the column: must terminate
	x := schemaTable("x", []string{"id", "y_id"},
		types.ForeignKey{FromColumns: []string{"y_id"}, ToTable: "adb.public.y", ToColumns: []string{"id"}})
	y := schemaTable("y", []string{"id", "x_id"},
		types.ForeignKey{FromColumns: []string{"x_id"}, ToTable: "adb.public.x", ToColumns: []string{"id"}})

	_, ok := DeriveJoinPath(x, "district_id", analysisOf(x, y))
	assert.False(t, ok)
}

func TestDeriveJoinPathSkipsMultiColumnFKs(t *testing.T) {
	parent := schemaTable("terms", []string{"year", "semester", "district_id"})
	child := schemaTable("enrollments", []string{"id"},
		types.ForeignKey{FromColumns: []string{"year", "semester"}, ToTable: "adb.public.terms", ToColumns: []string{"year", "semester"}})

	_, ok := DeriveJoinPath(child, "district_id", analysisOf(parent, child))
	assert.False(t, ok)
}
