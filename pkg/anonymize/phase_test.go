package anonymize

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

func stageEmailFile(t *testing.T, dir, value string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	tab := stage.NewTable([]types.ColumnSchema{{Name: "contact_email", Type: types.TypeString, Nullable: true}})
	require.NoError(t, tab.AppendRow([]any{value}))
	require.NoError(t, tab.Write(filepath.Join(dir, stage.FileName("adb", "contacts"))))
}

func readEmail(t *testing.T, dir string) string {
	t.Helper()
	tab, err := stage.Read(filepath.Join(dir, stage.FileName("adb", "contacts")))
	require.NoError(t, err)
	v, ok := tab.Value("contact_email", 0)
	require.True(t, ok)
	return v.(string)
}

func TestRunHonorsSuppliedMapPath(t *testing.T) {
	t.Setenv("ANONYMIZATION_SALT", "pepper")

	inputDir := filepath.Join(t.TempDir(), "staging")
	stageEmailFile(t, inputDir, "a@x.com")
	mapPath := filepath.Join(t.TempDir(), "shared", MapFile)
	rules := []types.AnonymizationRule{emailRule()}

	firstOut := filepath.Join(t.TempDir(), "out1")
	report, err := Run(context.Background(), inputDir, firstOut, mapPath, rules, nil)
	require.NoError(t, err)
	require.True(t, report.Success)

	// The map lands at the supplied path, not next to the output
	assert.FileExists(t, mapPath)
	assert.NoFileExists(t, filepath.Join(firstOut, MapFile))

	// A later run sharing the map reuses the recorded replacement
	secondOut := filepath.Join(t.TempDir(), "out2")
	_, err = Run(context.Background(), inputDir, secondOut, mapPath, rules, nil)
	require.NoError(t, err)
	assert.Equal(t, readEmail(t, firstOut), readEmail(t, secondOut))
}

func TestRunDefaultsMapPathToOutputDir(t *testing.T) {
	t.Setenv("ANONYMIZATION_SALT", "pepper")

	inputDir := filepath.Join(t.TempDir(), "staging")
	stageEmailFile(t, inputDir, "a@x.com")
	outputDir := filepath.Join(t.TempDir(), "out")

	report, err := Run(context.Background(), inputDir, outputDir, "", []types.AnonymizationRule{emailRule()}, nil)
	require.NoError(t, err)
	require.True(t, report.Success)
	assert.FileExists(t, filepath.Join(outputDir, MapFile))
}
