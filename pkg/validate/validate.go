package validate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/metrics"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// ReportFile is the phase report's basename
const ReportFile = "validation-report.json"

// Check family names as they appear in the report
const (
	CheckSchema       = "schema"
	CheckReferential  = "referential_integrity"
	CheckBusiness     = "business_rules"
	CheckCompleteness = "completeness"
	CheckDataQuality  = "data_quality"
)

// sampleOrphanLimit bounds how many orphaned keys a finding carries
const sampleOrphanLimit = 5

// dataset is one staged file loaded for validation
type dataset struct {
	file  string
	store string
	table string
	data  *stage.Table
}

// Run validates every staged file in dataDir against the configured
// rule families. The schema analysis, when present, upgrades the RI
// check from the naming heuristic to declared FK metadata.
func Run(ctx context.Context, dataDir string, rules types.ValidationRules, analysis *types.SchemaAnalysis) (*types.ValidationReport, error) {
	start := time.Now()
	defer metrics.ObservePhase("validate", start)
	logger := log.WithComponent("validate")

	report := &types.ValidationReport{
		RunTimestamp: start.UTC(),
		DataDir:      dataDir,
		Checks:       make(map[string]types.CheckResult),
	}

	datasets, err := loadDatasets(dataDir)
	if err != nil {
		return nil, err
	}

	families := []struct {
		name string
		run  func([]dataset) types.CheckResult
	}{
		{CheckSchema, func(ds []dataset) types.CheckResult { return checkSchema(ds) }},
		{CheckReferential, func(ds []dataset) types.CheckResult { return checkReferentialIntegrity(ds, analysis) }},
		{CheckBusiness, func(ds []dataset) types.CheckResult { return checkBusinessRules(ds, rules.BusinessRules) }},
		{CheckCompleteness, func(ds []dataset) types.CheckResult { return checkCompleteness(ds, rules.CompletenessRules) }},
		{CheckDataQuality, func(ds []dataset) types.CheckResult { return checkDataQuality(ds) }},
	}

	for _, family := range families {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := family.run(datasets)
		report.Checks[family.name] = result
		report.TotalChecks += result.ChecksRun
		report.TotalPassed += result.ChecksPassed
		report.TotalFailed += result.ChecksFailed
		report.TotalWarnings += len(result.Warnings)
		report.Errors = append(report.Errors, result.Errors...)
		report.Warnings = append(report.Warnings, result.Warnings...)

		metrics.ValidationFindings.WithLabelValues(family.name, string(types.SeverityError)).Add(float64(len(result.Errors)))
		metrics.ValidationFindings.WithLabelValues(family.name, string(types.SeverityWarning)).Add(float64(len(result.Warnings)))
	}

	switch {
	case len(report.Errors) > 0:
		report.OverallStatus = types.StatusFailed
	case len(report.Warnings) > 0:
		report.OverallStatus = types.StatusPassedWithWarnings
	default:
		report.OverallStatus = types.StatusPassed
	}
	report.Success = report.OverallStatus != types.StatusFailed
	report.DurationSeconds = time.Since(start).Seconds()

	logger.Info().
		Str("status", report.OverallStatus).
		Int("checks", report.TotalChecks).
		Int("errors", len(report.Errors)).
		Int("warnings", len(report.Warnings)).
		Msg("Validation phase complete")
	return report, nil
}

func loadDatasets(dataDir string) ([]dataset, error) {
	files, err := stage.List(dataDir)
	if err != nil {
		return nil, err
	}
	var out []dataset
	for _, path := range files {
		base := filepath.Base(path)
		storeID, table, ok := stage.SplitFileName(base)
		if !ok {
			continue
		}
		t, err := stage.Read(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", base, err)
		}
		out = append(out, dataset{file: base, store: storeID, table: table, data: t})
	}
	return out, nil
}

func findDataset(datasets []dataset, storeID, table string) *dataset {
	for i := range datasets {
		if datasets[i].store == storeID && datasets[i].table == table {
			return &datasets[i]
		}
	}
	return nil
}

// checkSchema surveys nulls per column. Findings are warnings only:
// without the schema manifest nullability cannot be enforced, and with
// it enforcement belongs to the load phase's constraints.
func checkSchema(datasets []dataset) types.CheckResult {
	var result types.CheckResult
	for _, ds := range datasets {
		result.ChecksRun++
		for _, col := range ds.data.Columns {
			nulls := 0
			for _, v := range col.Values {
				if v == nil {
					nulls++
				}
			}
			if nulls > 0 {
				result.Warnings = append(result.Warnings, types.Finding{
					Check:    CheckSchema,
					Table:    ds.file,
					Column:   col.Name,
					Message:  fmt.Sprintf("%d of %d values are null", nulls, ds.data.Rows()),
					Severity: types.SeverityWarning,
				})
			}
		}
		result.ChecksPassed++
	}
	return result
}

// riTarget resolves the dataset a *_id column points at: declared FK
// metadata first, naive pluralization as the fallback
func riTarget(datasets []dataset, ds *dataset, column string, analysis *types.SchemaAnalysis) (*dataset, string) {
	if analysis != nil {
		if schema := analysis.TableFor(fmt.Sprintf("%s.%s.%s", ds.store, config.DefaultSchema, ds.table)); schema != nil {
			for _, fk := range schema.ForeignKeys {
				if len(fk.FromColumns) == 1 && fk.FromColumns[0] == column {
					targetStore, _, targetTable := types.SplitQualifiedName(fk.ToTable)
					if target := findDataset(datasets, targetStore, targetTable); target != nil {
						key := "id"
						if len(fk.ToColumns) == 1 {
							key = fk.ToColumns[0]
						}
						return target, key
					}
				}
			}
		}
	}

	// Heuristic: student_id -> students, first dataset whose table
	// name contains the pluralized base
	base := strings.TrimSuffix(column, "_id")
	plural := base + "s"
	names := make([]string, 0, len(datasets))
	byFile := make(map[string]*dataset, len(datasets))
	for i := range datasets {
		names = append(names, datasets[i].file)
		byFile[datasets[i].file] = &datasets[i]
	}
	sort.Strings(names)
	for _, name := range names {
		target := byFile[name]
		if target.file != ds.file && strings.Contains(target.table, plural) {
			return target, "id"
		}
	}
	return nil, ""
}

func checkReferentialIntegrity(datasets []dataset, analysis *types.SchemaAnalysis) types.CheckResult {
	var result types.CheckResult
	for i := range datasets {
		ds := &datasets[i]
		for _, col := range ds.data.Columns {
			if col.Name == "id" || !strings.HasSuffix(col.Name, "_id") {
				continue
			}
			result.ChecksRun++

			target, key := riTarget(datasets, ds, col.Name, analysis)
			if target == nil {
				// Unverifiable references pass
				result.ChecksPassed++
				continue
			}

			keyIdx := target.data.ColumnIndex(key)
			if keyIdx < 0 {
				result.ChecksPassed++
				continue
			}
			known := make(map[string]bool, target.data.Rows())
			for _, v := range target.data.Columns[keyIdx].Values {
				if v != nil {
					known[stage.Stringify(v)] = true
				}
			}

			var orphans []string
			seen := make(map[string]bool)
			for _, v := range col.Values {
				if v == nil {
					continue
				}
				s := stage.Stringify(v)
				if !known[s] && !seen[s] {
					seen[s] = true
					orphans = append(orphans, s)
				}
			}

			if len(orphans) == 0 {
				result.ChecksPassed++
				continue
			}
			result.ChecksFailed++
			sample := orphans
			if len(sample) > sampleOrphanLimit {
				sample = sample[:sampleOrphanLimit]
			}
			result.Errors = append(result.Errors, types.Finding{
				Check:           CheckReferential,
				Table:           ds.file,
				Column:          col.Name,
				ReferencedTable: target.file,
				Message: fmt.Sprintf("%d orphaned %s values not present in %s.%s",
					len(orphans), col.Name, target.table, key),
				Severity:       types.SeverityError,
				SampleOrphaned: sample,
			})
		}
	}
	return result
}

func checkBusinessRules(datasets []dataset, rules []types.BusinessRule) types.CheckResult {
	var result types.CheckResult
	for _, rule := range rules {
		result.ChecksRun++

		ds := findDataset(datasets, rule.Store, rule.Table)
		if ds == nil {
			result.ChecksPassed++
			result.Warnings = append(result.Warnings, types.Finding{
				Check:    CheckBusiness,
				Rule:     rule.Name,
				Table:    rule.Store + "_" + rule.Table,
				Message:  "table not present in staged data, rule not verifiable",
				Severity: types.SeverityWarning,
			})
			continue
		}

		predicate, err := ParsePredicate(rule.Condition)
		if err != nil {
			result.ChecksFailed++
			result.Errors = append(result.Errors, types.Finding{
				Check:    CheckBusiness,
				Rule:     rule.Name,
				Table:    ds.file,
				Message:  err.Error(),
				Severity: types.SeverityError,
			})
			continue
		}

		failing := 0
		for row := 0; row < ds.data.Rows(); row++ {
			ok, err := predicate.Eval(rowAccessor(ds.data, row))
			if err != nil {
				result.ChecksFailed++
				result.Errors = append(result.Errors, types.Finding{
					Check:    CheckBusiness,
					Rule:     rule.Name,
					Table:    ds.file,
					Message:  err.Error(),
					Severity: types.SeverityError,
				})
				failing = -1
				break
			}
			if !ok {
				failing++
			}
		}
		if failing < 0 {
			continue
		}
		if failing == 0 {
			result.ChecksPassed++
			continue
		}

		finding := types.Finding{
			Check:    CheckBusiness,
			Rule:     rule.Name,
			Table:    ds.file,
			Message:  fmt.Sprintf("%d of %d rows violate %q", failing, ds.data.Rows(), rule.Condition),
			Severity: rule.Severity,
		}
		if rule.Severity == types.SeverityError {
			result.ChecksFailed++
			result.Errors = append(result.Errors, finding)
		} else {
			result.ChecksPassed++
			result.Warnings = append(result.Warnings, finding)
		}
	}
	return result
}

func rowAccessor(t *stage.Table, row int) Row {
	return func(column string) (any, bool) {
		idx := t.ColumnIndex(column)
		if idx < 0 {
			return nil, false
		}
		return t.Columns[idx].Values[row], true
	}
}

func checkCompleteness(datasets []dataset, rules []types.CompletenessRule) types.CheckResult {
	var result types.CheckResult
	for _, rule := range rules {
		result.ChecksRun++

		ds := findDataset(datasets, rule.Store, rule.Table)
		if ds == nil {
			result.ChecksPassed++
			continue
		}

		failed := false
		for _, field := range rule.RequiredFields {
			idx := ds.data.ColumnIndex(field)
			if idx < 0 {
				failed = true
				result.Errors = append(result.Errors, types.Finding{
					Check:    CheckCompleteness,
					Rule:     rule.Name,
					Table:    ds.file,
					Field:    field,
					Message:  "required field is absent",
					Severity: types.SeverityError,
				})
				continue
			}

			nulls := 0
			for _, v := range ds.data.Columns[idx].Values {
				if v == nil {
					nulls++
				}
			}
			if nulls == 0 {
				continue
			}
			finding := types.Finding{
				Check:    CheckCompleteness,
				Rule:     rule.Name,
				Table:    ds.file,
				Field:    field,
				Message:  fmt.Sprintf("required field has %d null values", nulls),
				Severity: rule.Severity,
			}
			if rule.Severity == types.SeverityError {
				failed = true
				result.Errors = append(result.Errors, finding)
			} else {
				result.Warnings = append(result.Warnings, finding)
			}
		}
		if failed {
			result.ChecksFailed++
		} else {
			result.ChecksPassed++
		}
	}
	return result
}

// checkDataQuality applies the generic id sanity checks to every file
// with an id column: duplicates and negative values are both errors
func checkDataQuality(datasets []dataset) types.CheckResult {
	var result types.CheckResult
	for _, ds := range datasets {
		idx := ds.data.ColumnIndex("id")
		if idx < 0 {
			continue
		}
		result.ChecksRun++

		counts := make(map[string]int)
		negatives := 0
		for _, v := range ds.data.Columns[idx].Values {
			if v == nil {
				continue
			}
			counts[stage.Stringify(v)]++
			if n, ok := v.(int64); ok && n < 0 {
				negatives++
			}
			if f, ok := v.(float64); ok && f < 0 {
				negatives++
			}
		}
		duplicates := 0
		for _, c := range counts {
			if c > 1 {
				duplicates += c - 1
			}
		}

		failed := false
		if duplicates > 0 {
			failed = true
			result.Errors = append(result.Errors, types.Finding{
				Check:    CheckDataQuality,
				Table:    ds.file,
				Column:   "id",
				Message:  fmt.Sprintf("%d duplicate id values", duplicates),
				Severity: types.SeverityError,
			})
		}
		if negatives > 0 {
			failed = true
			result.Errors = append(result.Errors, types.Finding{
				Check:    CheckDataQuality,
				Table:    ds.file,
				Column:   "id",
				Message:  fmt.Sprintf("%d negative id values", negatives),
				Severity: types.SeverityError,
			})
		}
		if failed {
			result.ChecksFailed++
		} else {
			result.ChecksPassed++
		}
	}
	return result
}
