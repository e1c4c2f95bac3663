package validate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

func intTable(t *testing.T, name string, values ...any) *stage.Table {
	t.Helper()
	tab := stage.NewTable([]types.ColumnSchema{{Name: name, Type: types.TypeInt, Nullable: true}})
	for _, v := range values {
		require.NoError(t, tab.AppendRow([]any{v}))
	}
	return tab
}

func TestReferentialIntegrityReportsOrphans(t *testing.T) {
	students := intTable(t, "id", 1, 2, 3)
	grades := intTable(t, "student_id", 1, 2, 4)

	datasets := []dataset{
		{file: "adb_students.colz", store: "adb", table: "students", data: students},
		{file: "adb_grades.colz", store: "adb", table: "grades", data: grades},
	}

	result := checkReferentialIntegrity(datasets, nil)
	assert.Equal(t, 1, result.ChecksRun)
	assert.Equal(t, 1, result.ChecksFailed)
	require.Len(t, result.Errors, 1)

	finding := result.Errors[0]
	assert.Equal(t, "adb_grades.colz", finding.Table)
	assert.Equal(t, "student_id", finding.Column)
	assert.Equal(t, "adb_students.colz", finding.ReferencedTable)
	assert.Equal(t, []string{"4"}, finding.SampleOrphaned)
}

func TestReferentialIntegrityUnresolvableTargetPasses(t *testing.T) {
	datasets := []dataset{
		{file: "adb_grades.colz", store: "adb", table: "grades", data: intTable(t, "term_id", 7)},
	}

	result := checkReferentialIntegrity(datasets, nil)
	assert.Equal(t, 1, result.ChecksRun)
	assert.Equal(t, 1, result.ChecksPassed)
	assert.Empty(t, result.Errors)
}

func TestReferentialIntegrityPrefersDeclaredFKs(t *testing.T) {
	// Declared FK points at "people", which the plural heuristic would
	// never find for owner_id
	analysis := &types.SchemaAnalysis{
		Tables: []types.TableSchema{{
			Store:  "adb",
			Schema: "public",
			Name:   "assets",
			ForeignKeys: []types.ForeignKey{{
				FromColumns: []string{"owner_id"},
				ToTable:     "adb.public.people",
				ToColumns:   []string{"id"},
			}},
		}},
	}
	datasets := []dataset{
		{file: "adb_assets.colz", store: "adb", table: "assets", data: intTable(t, "owner_id", 1, 9)},
		{file: "adb_people.colz", store: "adb", table: "people", data: intTable(t, "id", 1)},
	}

	result := checkReferentialIntegrity(datasets, analysis)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "adb_people.colz", result.Errors[0].ReferencedTable)
	assert.Equal(t, []string{"9"}, result.Errors[0].SampleOrphaned)
}

func TestDataQualityDuplicateAndNegativeIDs(t *testing.T) {
	datasets := []dataset{
		{file: "adb_schools.colz", store: "adb", table: "schools", data: intTable(t, "id", 1, 1, -2)},
		{file: "adb_clean.colz", store: "adb", table: "clean", data: intTable(t, "id", 1, 2)},
		{file: "adb_noid.colz", store: "adb", table: "noid", data: intTable(t, "value", 5)},
	}

	result := checkDataQuality(datasets)
	assert.Equal(t, 2, result.ChecksRun)
	assert.Equal(t, 1, result.ChecksFailed)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0].Message, "1 duplicate id")
	assert.Contains(t, result.Errors[1].Message, "1 negative id")
}

func TestCompletenessAbsentAndNullFields(t *testing.T) {
	tab := stage.NewTable([]types.ColumnSchema{
		{Name: "id", Type: types.TypeInt},
		{Name: "email", Type: types.TypeString, Nullable: true},
	})
	require.NoError(t, tab.AppendRow([]any{int64(1), nil}))
	require.NoError(t, tab.AppendRow([]any{int64(2), "x@anon.example.org"}))

	datasets := []dataset{{file: "ids_identities.colz", store: "ids", table: "identities", data: tab}}
	rules := []types.CompletenessRule{{
		Name:           "identity_completeness",
		Store:          "ids",
		Table:          "identities",
		RequiredFields: []string{"email", "ssn"},
		Severity:       types.SeverityError,
	}}

	result := checkCompleteness(datasets, rules)
	assert.Equal(t, 1, result.ChecksFailed)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "ssn", result.Errors[0].Field)
	assert.Contains(t, result.Errors[0].Message, "absent")
	assert.Equal(t, "email", result.Errors[1].Field)
	assert.Contains(t, result.Errors[1].Message, "1 null")
}

func TestBusinessRuleSeverityRouting(t *testing.T) {
	tab := intTable(t, "score", 10, -5)
	datasets := []dataset{{file: "adb_scores.colz", store: "adb", table: "scores", data: tab}}

	errRule := types.BusinessRule{
		Name: "non_negative", Store: "adb", Table: "scores",
		Condition: "score >= 0", Severity: types.SeverityError,
	}
	warnRule := errRule
	warnRule.Name = "non_negative_warn"
	warnRule.Severity = types.SeverityWarning

	result := checkBusinessRules(datasets, []types.BusinessRule{errRule, warnRule})
	assert.Equal(t, 1, result.ChecksFailed)
	assert.Equal(t, 1, result.ChecksPassed)
	require.Len(t, result.Errors, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Errors[0].Message, "1 of 2 rows")
}

func TestValidatorMonotonicity(t *testing.T) {
	// Adding rows that violate nothing never increases failures
	clean := intTable(t, "id", 1, 2)
	base := []dataset{{file: "adb_items.colz", store: "adb", table: "items", data: clean}}
	before := checkDataQuality(base)

	grown := intTable(t, "id", 1, 2, 3, 4)
	after := checkDataQuality([]dataset{{file: "adb_items.colz", store: "adb", table: "items", data: grown}})

	assert.Equal(t, before.ChecksFailed, after.ChecksFailed)
	assert.LessOrEqual(t, len(after.Warnings), len(before.Warnings))
}

func TestRunOverallStatus(t *testing.T) {
	dir := t.TempDir()

	students := intTable(t, "id", 1, 2, 3)
	require.NoError(t, students.Write(filepath.Join(dir, "adb_students.colz")))
	grades := intTable(t, "student_id", 1, 2, 4)
	require.NoError(t, grades.Write(filepath.Join(dir, "adb_grades.colz")))

	report, err := Run(context.Background(), dir, types.ValidationRules{}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, report.OverallStatus)
	assert.False(t, report.Success)
	assert.NotZero(t, report.TotalChecks)
	assert.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Checks, CheckReferential)
}

func TestRunPassesOnCleanData(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, intTable(t, "id", 1, 2).Write(filepath.Join(dir, "adb_schools.colz")))

	report, err := Run(context.Background(), dir, types.ValidationRules{}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPassed, report.OverallStatus)
	assert.True(t, report.Success)
	assert.Empty(t, report.Errors)
}
