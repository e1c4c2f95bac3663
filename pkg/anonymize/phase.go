package anonymize

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/metrics"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// ReportFile is the phase report's basename
const ReportFile = "anonymization-report.json"

// Run anonymizes every staged file under inputDir into outputDir. The
// salt must be configured before any data is touched. mapPath locates
// the consistency map, so a caller can share one map across runs; an
// empty path keeps it next to the output under MapFile. The schema
// analysis, when available, supplies FK columns the null strategy must
// not blank; without it the phase still runs, FK-blind.
func Run(ctx context.Context, inputDir, outputDir, mapPath string, rules []types.AnonymizationRule, analysis *types.SchemaAnalysis) (*types.AnonymizationReport, error) {
	start := time.Now()
	defer metrics.ObservePhase("anonymize", start)
	logger := log.WithComponent("anonymize")

	report := &types.AnonymizationReport{
		RunTimestamp: start.UTC(),
		InputDir:     inputDir,
		OutputDir:    outputDir,
		PIILeakCheck: types.StatusPassed,
	}

	salt, err := config.Salt()
	if err != nil {
		return nil, err
	}
	if mapPath == "" {
		mapPath = filepath.Join(outputDir, MapFile)
	}
	cmap, err := OpenConsistencyMap(mapPath)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(rules, salt, cmap)
	if err != nil {
		return nil, err
	}

	files, err := stage.List(inputDir)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		base := filepath.Base(path)
		fileResult := anonymizeFile(ctx, engine, path, filepath.Join(outputDir, base), analysis)
		report.FilesProcessed = append(report.FilesProcessed, fileResult)
		report.TotalRecords += fileResult.Records
		report.TotalFieldsAnonymized += len(fileResult.AnonymizedFields)

		if store, _, ok := stage.SplitFileName(base); ok {
			metrics.RowsAnonymized.WithLabelValues(store).Add(float64(fileResult.Records))
		}
		for _, leak := range fileResult.PIILeaks {
			report.PIILeaksDetected = append(report.PIILeaksDetected, base+": "+leak)
			metrics.PIILeakFindings.Inc()
		}
		if fileResult.Error != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", base, fileResult.Error))
		}
	}

	if err := cmap.Save(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("saving consistency map: %v", err))
	}

	if len(report.PIILeaksDetected) > 0 {
		report.PIILeakCheck = types.StatusFailed
	}
	report.Success = len(report.Errors) == 0 && len(report.PIILeaksDetected) == 0
	report.DurationSeconds = time.Since(start).Seconds()

	logger.Info().
		Int("files", len(report.FilesProcessed)).
		Int64("records", report.TotalRecords).
		Int("fields", report.TotalFieldsAnonymized).
		Int("leaks", len(report.PIILeaksDetected)).
		Bool("success", report.Success).
		Msg("Anonymization phase complete")
	return report, nil
}

func anonymizeFile(ctx context.Context, engine *Engine, inPath, outPath string, analysis *types.SchemaAnalysis) types.FileAnonymization {
	base := filepath.Base(inPath)
	out := types.FileAnonymization{File: base}

	t, err := stage.Read(inPath)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Records = int64(t.Rows())
	out.Columns = len(t.Columns)

	result, err := engine.AnonymizeTable(ctx, t, fkColumnsFor(base, analysis))
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.AnonymizedFields = result.AnonymizedFields
	out.FieldsByRule = result.FieldsByRule
	out.PIILeaks = result.Leaks

	if err := t.Write(outPath); err != nil {
		out.Error = err.Error()
		return out
	}
	out.Success = true
	return out
}

// fkColumnsFor resolves a staged file's FK columns through the schema
// analysis
func fkColumnsFor(fileName string, analysis *types.SchemaAnalysis) map[string]bool {
	if analysis == nil {
		return nil
	}
	storeID, table, ok := stage.SplitFileName(fileName)
	if !ok {
		return nil
	}
	schema := analysis.TableFor(fmt.Sprintf("%s.%s.%s", storeID, config.DefaultSchema, table))
	if schema == nil {
		return nil
	}
	fks := make(map[string]bool)
	for _, fk := range schema.ForeignKeys {
		for _, col := range fk.FromColumns {
			fks[col] = true
		}
	}
	return fks
}
