package stage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/types"
)

func TestWriteReadRoundTrip(t *testing.T) {
	born := time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)

	tab := NewTable([]types.ColumnSchema{
		{Name: "id", Type: types.TypeInt},
		{Name: "gpa", Type: types.TypeFloat},
		{Name: "active", Type: types.TypeBool},
		{Name: "name", Type: types.TypeString, Nullable: true},
		{Name: "birth_date", Type: types.TypeDate},
		{Name: "updated_at", Type: types.TypeTimestamp},
		{Name: "photo", Type: types.TypeBinary, Nullable: true},
	})
	require.NoError(t, tab.AppendRow([]any{
		int64(1), 3.7, true, "Ada", born, updated, []byte{0xde, 0xad},
	}))
	require.NoError(t, tab.AppendRow([]any{
		int64(2), 2.1, false, nil, born, updated, nil,
	}))

	path := filepath.Join(t.TempDir(), FileName("adb", "students"))
	require.NoError(t, tab.Write(path))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, 2, got.Rows())
	assert.Equal(t, tab.ColumnNames(), got.ColumnNames())

	assert.Equal(t, []any{int64(1), 3.7, true, "Ada", born, updated, []byte{0xde, 0xad}}, got.Row(0))

	// NULLs survive the round trip as nil cells
	name, ok := got.Value("name", 1)
	require.True(t, ok)
	assert.Nil(t, name)
	photo, ok := got.Value("photo", 1)
	require.True(t, ok)
	assert.Nil(t, photo)
}

func TestAppendRowNormalizesIntegerWidths(t *testing.T) {
	tab := NewTable([]types.ColumnSchema{{Name: "n", Type: types.TypeInt}})
	require.NoError(t, tab.AppendRow([]any{int32(7)}))
	require.NoError(t, tab.AppendRow([]any{7}))

	v, _ := tab.Value("n", 0)
	assert.Equal(t, int64(7), v)
	v, _ = tab.Value("n", 1)
	assert.Equal(t, int64(7), v)
}

func TestAppendRowRejectsWrongArity(t *testing.T) {
	tab := NewTable([]types.ColumnSchema{{Name: "a"}, {Name: "b"}})
	assert.Error(t, tab.AppendRow([]any{int64(1)}))
}

func TestNormalizeRejectsUnknownTypes(t *testing.T) {
	_, err := Normalize(struct{}{})
	assert.Error(t, err)
}

func TestStringifyStableForms(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "42", Stringify(int64(42)))
	assert.Equal(t, "3.5", Stringify(3.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "2026-01-02T03:04:05Z", Stringify(ts))
}

func TestFileNameSplit(t *testing.T) {
	assert.Equal(t, "adb_students.colz", FileName("adb", "students"))

	store, table, ok := SplitFileName("adb_grade_scales.colz")
	require.True(t, ok)
	assert.Equal(t, "adb", store)
	assert.Equal(t, "grade_scales", table)

	_, _, ok = SplitFileName("notastagingfile.json")
	assert.False(t, ok)
}

func TestListSortsStagingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hcp1_b", "adb_a", "adb_c"} {
		tab := NewTable([]types.ColumnSchema{{Name: "id", Type: types.TypeInt}})
		require.NoError(t, tab.Write(filepath.Join(dir, name+Ext)))
	}

	files, err := List(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "adb_a.colz", filepath.Base(files[0]))
	assert.Equal(t, "hcp1_b.colz", filepath.Base(files[2]))
}
