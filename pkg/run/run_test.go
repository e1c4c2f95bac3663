package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

func stageTable(t *testing.T, dir, storeID, table string, ids []int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	tab := stage.NewTable([]types.ColumnSchema{{Name: "id", Type: types.TypeInt}})
	for _, id := range ids {
		require.NoError(t, tab.AppendRow([]any{id}))
	}
	require.NoError(t, tab.Write(filepath.Join(dir, stage.FileName(storeID, table))))
}

func TestNewCoordinatorRequiresDistrict(t *testing.T) {
	_, err := NewCoordinator(Options{})
	assert.Error(t, err)
}

func TestValidationOnlyRunSucceeds(t *testing.T) {
	dataDir := t.TempDir()
	anonymized := filepath.Join(dataDir, "anonymized", "d-1")
	stageTable(t, anonymized, "adb", "schools", []int64{1, 2, 3})

	c, err := NewCoordinator(Options{
		DistrictID:     "d-1",
		DataDir:        dataDir,
		ValidationOnly: true,
	})
	require.NoError(t, err)

	manifest, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, manifest.OverallSuccess)
	assert.Equal(t, types.StatusSuccess, manifest.OverallStatus)
	require.NotNil(t, manifest.Validation)
	assert.True(t, manifest.Validation.Success)

	// Phase report and run reports are persisted
	assert.FileExists(t, filepath.Join(anonymized, "validation-report.json"))
	assert.FileExists(t, filepath.Join(dataDir, "reports", manifest.RunID+".json"))
	assert.FileExists(t, filepath.Join(dataDir, "reports", manifest.RunID+".md"))

	// And the run lands in the history ledger
	h, err := OpenHistory(dataDir)
	require.NoError(t, err)
	defer h.Close()
	recorded, err := h.Get(manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, "d-1", recorded.DistrictID)
}

func TestValidationOnlyRunFailsOnOrphans(t *testing.T) {
	dataDir := t.TempDir()
	anonymized := filepath.Join(dataDir, "anonymized", "d-1")
	stageTable(t, anonymized, "adb", "schools", []int64{1, 2})

	// school_id 9 has no parent row in schools
	require.NoError(t, os.MkdirAll(anonymized, 0755))
	tab := stage.NewTable([]types.ColumnSchema{
		{Name: "id", Type: types.TypeInt},
		{Name: "school_id", Type: types.TypeInt},
	})
	require.NoError(t, tab.AppendRow([]any{int64(1), int64(1)}))
	require.NoError(t, tab.AppendRow([]any{int64(2), int64(9)}))
	require.NoError(t, tab.Write(filepath.Join(anonymized, stage.FileName("adb", "students"))))

	c, err := NewCoordinator(Options{
		DistrictID:     "d-1",
		DataDir:        dataDir,
		ValidationOnly: true,
	})
	require.NoError(t, err)

	manifest, err := c.Execute(context.Background())
	require.Error(t, err)
	assert.False(t, manifest.OverallSuccess)
	assert.Equal(t, types.StatusFailed, manifest.OverallStatus)
	assert.Contains(t, manifest.ErrorMessage, "checks failed")
}

func TestExecuteRefusesLockedDistrict(t *testing.T) {
	dataDir := t.TempDir()
	lockPath := filepath.Join(dataDir, "locks", "d-1.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0755))

	held := flock.New(lockPath)
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	c, err := NewCoordinator(Options{
		DistrictID:     "d-1",
		DataDir:        dataDir,
		ValidationOnly: true,
	})
	require.NoError(t, err)

	manifest, err := c.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.StatusFailed, manifest.OverallStatus)
	assert.Contains(t, manifest.ErrorMessage, "locked by another run")
}

func TestSkipExtractionWithoutAnalysisFails(t *testing.T) {
	c, err := NewCoordinator(Options{
		DistrictID:     "d-1",
		DataDir:        t.TempDir(),
		SkipExtraction: true,
	})
	require.NoError(t, err)

	manifest, err := c.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.StatusFailed, manifest.OverallStatus)
	assert.Contains(t, manifest.ErrorMessage, "no schema analysis")
}
