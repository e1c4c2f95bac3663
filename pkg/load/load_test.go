package load

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
)

// fakeRelational records transaction activity instead of talking to a
// database
type fakeRelational struct {
	tx *fakeTx
}

func (f *fakeRelational) Introspect(context.Context, string) ([]types.TableSchema, error) {
	return nil, nil
}

func (f *fakeRelational) ReadFiltered(context.Context, types.TableSchema, types.TenantFilter, []types.JoinHop) (*stage.Table, error) {
	return nil, nil
}

func (f *fakeRelational) Begin(context.Context) (store.Tx, error) { return f.tx, nil }
func (f *fakeRelational) Close()                                  {}

type fakeTx struct {
	failOn     string
	written    []string
	deleted    []string
	committed  bool
	rolledBack bool
}

func (t *fakeTx) WriteBulk(_ context.Context, table types.TableSchema, data *stage.Table, _ types.LoadStrategy) (int64, error) {
	if table.Name == t.failOn {
		return 0, errtag.Data.New("%s: integrity violation", table.Name)
	}
	t.written = append(t.written, table.Name)
	return int64(data.Rows()), nil
}

func (t *fakeTx) DeleteByTenant(_ context.Context, table types.TableSchema, _ types.TenantFilter) (int64, error) {
	if table.Name == t.failOn {
		return 0, errtag.Data.New("%s: delete failed", table.Name)
	}
	t.deleted = append(t.deleted, table.Name)
	return 2, nil
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

func stageFile(t *testing.T, dir, storeID, table string, rows int) {
	t.Helper()
	tab := stage.NewTable([]types.ColumnSchema{{Name: "id", Type: types.TypeInt}})
	for i := 0; i < rows; i++ {
		require.NoError(t, tab.AppendRow([]any{int64(i + 1)}))
	}
	require.NoError(t, tab.Write(filepath.Join(dir, stage.FileName(storeID, table))))
}

func TestRelationalLoadCommitsAllTables(t *testing.T) {
	dir := t.TempDir()
	stageFile(t, dir, "adb", "schools", 3)
	stageFile(t, dir, "adb", "students", 5)

	tx := &fakeTx{}
	manifest := Relational(context.Background(), &fakeRelational{tx: tx}, "adb",
		[]string{"schools", "students"}, dir, types.LoadUpsert, nil)

	assert.True(t, manifest.Success)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Equal(t, []string{"schools", "students"}, tx.written)
	assert.Equal(t, int64(8), manifest.TotalRowsLoaded)
	assert.Empty(t, manifest.FailedTable)
}

func TestRelationalLoadFailureRollsBackWholeStore(t *testing.T) {
	// Second table violates integrity: the whole transaction rolls
	// back and the failure names the table
	dir := t.TempDir()
	stageFile(t, dir, "adb", "schools", 3)
	stageFile(t, dir, "adb", "students", 5)

	tx := &fakeTx{failOn: "students"}
	manifest := Relational(context.Background(), &fakeRelational{tx: tx}, "adb",
		[]string{"schools", "students"}, dir, types.LoadInsert, nil)

	assert.False(t, manifest.Success)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
	assert.Equal(t, "students", manifest.FailedTable)
	require.NotEmpty(t, manifest.Errors)
	assert.Contains(t, manifest.Errors[0], "integrity violation")
}

func TestRelationalLoadSkipsMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	stageFile(t, dir, "adb", "schools", 2)
	stageFile(t, dir, "adb", "empty", 0)

	tx := &fakeTx{}
	manifest := Relational(context.Background(), &fakeRelational{tx: tx}, "adb",
		[]string{"schools", "empty", "never_staged"}, dir, types.LoadUpsert, nil)

	assert.True(t, manifest.Success)
	assert.Equal(t, []string{"schools"}, tx.written)
	assert.Len(t, manifest.TablesLoaded, 1)
}

func TestRollbackRelationalReverseOrderAndSkips(t *testing.T) {
	analysis := &types.SchemaAnalysis{Tables: []types.TableSchema{
		{Store: "adb", Schema: "public", Name: "schools",
			Columns: []types.ColumnSchema{{Name: "id"}, {Name: "district_id"}}},
		{Store: "adb", Schema: "public", Name: "students",
			Columns: []types.ColumnSchema{{Name: "id"}, {Name: "district_id"}}},
		{Store: "adb", Schema: "public", Name: "grade_scales",
			Columns: []types.ColumnSchema{{Name: "id"}}},
	}}

	tx := &fakeTx{}
	result := RollbackRelational(context.Background(), &fakeRelational{tx: tx}, "adb",
		[]string{"schools", "students", "grade_scales"},
		types.TenantFilter{Key: "district_id", Value: "d-1"}, analysis)

	require.True(t, result.Success)
	assert.True(t, tx.committed)
	// Reverse extraction order, lookup table skipped
	assert.Equal(t, []string{"students", "schools"}, tx.deleted)
	require.Len(t, result.Tables, 3)
	assert.True(t, result.Tables[0].Skipped)
	assert.Equal(t, SkipNoTenantColumn, result.Tables[0].SkipReason)
	assert.Equal(t, int64(4), result.RowsDeleted)
}

func TestRollbackRelationalFailureAbortsTransaction(t *testing.T) {
	analysis := &types.SchemaAnalysis{Tables: []types.TableSchema{
		{Store: "adb", Schema: "public", Name: "schools",
			Columns: []types.ColumnSchema{{Name: "district_id"}}},
	}}

	tx := &fakeTx{failOn: "schools"}
	result := RollbackRelational(context.Background(), &fakeRelational{tx: tx}, "adb",
		[]string{"schools"}, types.TenantFilter{Key: "district_id", Value: "d-1"}, analysis)

	assert.False(t, result.Success)
	assert.True(t, tx.rolledBack)
	assert.Contains(t, result.Error, "delete failed")
}
