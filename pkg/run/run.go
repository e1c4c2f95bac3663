package run

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/caravan/pkg/anonymize"
	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/extract"
	"github.com/cuemby/caravan/pkg/load"
	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/metrics"
	"github.com/cuemby/caravan/pkg/schema"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
	"github.com/cuemby/caravan/pkg/validate"
)

// Options configures one migration run
type Options struct {
	DistrictID         string
	DataDir            string
	AnonymizationRules []types.AnonymizationRule
	ValidationRules    types.ValidationRules
	Strategy           types.LoadStrategy
	GraphDepth         int
	ValidationOnly     bool
	SkipExtraction     bool
	SkipLoad           bool
	IncludeGraph       bool
}

// Coordinator drives the phase pipeline: extract, anonymize, validate,
// load, report. Phases are sequential; per-store work inside a phase
// runs in parallel, one connection per worker.
type Coordinator struct {
	opts   Options
	logger zerolog.Logger
}

// NewCoordinator validates options and builds a coordinator
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.DistrictID == "" {
		return nil, errtag.Configuration.New("district id is required")
	}
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Strategy == "" {
		opts.Strategy = types.LoadUpsert
	}
	if opts.GraphDepth <= 0 {
		opts.GraphDepth = config.DefaultGraphDepth
	}
	return &Coordinator{opts: opts, logger: log.WithComponent("run")}, nil
}

// NewRunID generates a run identifier: mig-YYYYMMDD-HHMMSS-NNN
func NewRunID() string {
	return fmt.Sprintf("mig-%s-%03d", time.Now().UTC().Format("20060102-150405"), rand.Intn(1000))
}

func (c *Coordinator) filter() types.TenantFilter {
	return types.TenantFilter{Key: config.DefaultFilterKey, Value: c.opts.DistrictID}
}

func (c *Coordinator) stagingDir() string {
	return filepath.Join(c.opts.DataDir, "staging", c.opts.DistrictID)
}

func (c *Coordinator) anonymizedDir() string {
	return filepath.Join(c.opts.DataDir, "anonymized", c.opts.DistrictID)
}

// Execute runs the pipeline and always returns a manifest, even on
// failure. The error reports what stopped the run.
func (c *Coordinator) Execute(ctx context.Context) (*types.RunManifest, error) {
	manifest := &types.RunManifest{
		RunID:      NewRunID(),
		DistrictID: c.opts.DistrictID,
		StartTime:  time.Now().UTC(),
	}
	logger := c.logger.With().Str("run_id", manifest.RunID).Logger()

	finish := func(err error) (*types.RunManifest, error) {
		manifest.EndTime = time.Now().UTC()
		manifest.TotalDuration = manifest.EndTime.Sub(manifest.StartTime).Seconds()
		switch {
		case err == nil:
			manifest.OverallSuccess = true
			manifest.OverallStatus = types.StatusSuccess
		case errtag.Tag(err) == "cancelled":
			manifest.OverallStatus = types.StatusCancelled
			manifest.ErrorMessage = err.Error()
		default:
			manifest.OverallStatus = types.StatusFailed
			manifest.ErrorMessage = err.Error()
		}
		if _, _, werr := WriteReports(manifest, filepath.Join(c.opts.DataDir, "reports")); werr != nil {
			logger.Warn().Err(werr).Msg("Failed to write run reports")
		}
		if h, herr := OpenHistory(c.opts.DataDir); herr != nil {
			logger.Warn().Err(herr).Msg("Failed to open run history")
		} else {
			if herr := h.Record(manifest); herr != nil {
				logger.Warn().Err(herr).Msg("Failed to record run history")
			}
			h.Close()
		}
		logger.Info().
			Str("status", manifest.OverallStatus).
			Float64("duration_s", manifest.TotalDuration).
			Msg("Run finished")
		return manifest, err
	}

	// One run per district at a time
	lockPath := filepath.Join(c.opts.DataDir, "locks", c.opts.DistrictID+".lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return finish(err)
	}
	lock := flock.New(lockPath)
	held, err := lock.TryLock()
	if err != nil {
		return finish(err)
	}
	if !held {
		return finish(errtag.Configuration.New("district %s is locked by another run", c.opts.DistrictID))
	}
	defer lock.Unlock()

	if c.opts.ValidationOnly {
		report, err := validate.Run(ctx, c.anonymizedDir(), c.opts.ValidationRules, c.loadAnalysis())
		manifest.Validation = report
		if report != nil {
			if werr := stage.WriteJSONFile(filepath.Join(c.anonymizedDir(), validate.ReportFile), report); werr != nil {
				logger.Warn().Err(werr).Msg("Failed to write validation report")
			}
		}
		if err != nil {
			return finish(err)
		}
		if !report.Success {
			return finish(errtag.Validation.New("%d checks failed", report.TotalFailed))
		}
		return finish(nil)
	}

	phaseStart := time.Now()
	analysis, err := c.runExtraction(ctx, manifest)
	metrics.ObservePhase("extraction", phaseStart)
	if err != nil {
		return finish(err)
	}

	phaseStart = time.Now()
	anonReport, err := anonymize.Run(ctx, c.stagingDir(), c.anonymizedDir(), "", c.opts.AnonymizationRules, analysis)
	metrics.ObservePhase("anonymization", phaseStart)
	manifest.Anonymization = anonReport
	if anonReport != nil {
		if werr := stage.WriteJSONFile(filepath.Join(c.anonymizedDir(), anonymize.ReportFile), anonReport); werr != nil {
			logger.Warn().Err(werr).Msg("Failed to write anonymization report")
		}
	}
	if err != nil {
		return finish(err)
	}
	manifest.FieldsAnonymized = anonReport.TotalFieldsAnonymized
	if !anonReport.Success {
		return finish(errtag.PIILeak.New("anonymization failed: %d leaks, %d errors",
			len(anonReport.PIILeaksDetected), len(anonReport.Errors)))
	}

	phaseStart = time.Now()
	valReport, err := validate.Run(ctx, c.anonymizedDir(), c.opts.ValidationRules, analysis)
	metrics.ObservePhase("validation", phaseStart)
	manifest.Validation = valReport
	if valReport != nil {
		if werr := stage.WriteJSONFile(filepath.Join(c.anonymizedDir(), validate.ReportFile), valReport); werr != nil {
			logger.Warn().Err(werr).Msg("Failed to write validation report")
		}
	}
	if err != nil {
		return finish(err)
	}
	if !valReport.Success {
		return finish(errtag.Validation.New("validation failed: %d checks failed", valReport.TotalFailed))
	}

	if !c.opts.SkipLoad {
		phaseStart = time.Now()
		err := c.runLoad(ctx, manifest, analysis)
		metrics.ObservePhase("loading", phaseStart)
		if err != nil {
			return finish(err)
		}
	}
	return finish(nil)
}

// runExtraction introspects the source stores, persists the schema
// analysis, and extracts every store in parallel. With SkipExtraction
// set it only reloads the previous analysis.
func (c *Coordinator) runExtraction(ctx context.Context, manifest *types.RunManifest) (*types.SchemaAnalysis, error) {
	if c.opts.SkipExtraction {
		analysis := c.loadAnalysis()
		if analysis == nil {
			return nil, errtag.Configuration.New("extraction skipped but no schema analysis found in %s", c.stagingDir())
		}
		return analysis, nil
	}

	stores := make(map[string]*store.Postgres, len(config.RelationalStores))
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()

	// Introspect all stores up front; the analysis needs the union
	var tables []types.TableSchema
	for _, storeID := range config.RelationalStores {
		creds, err := config.RelationalCredentials(types.StoreRoleSource, storeID)
		if err != nil {
			return nil, err
		}
		rel, err := store.ConnectPostgres(ctx, storeID, creds)
		if err != nil {
			return nil, err
		}
		stores[storeID] = rel

		introspected, err := rel.Introspect(ctx, config.DefaultSchema)
		if err != nil {
			return nil, err
		}
		tables = append(tables, introspected...)
	}

	analysis := schema.Analyze(tables)
	if _, err := schema.Save(analysis, c.stagingDir()); err != nil {
		return nil, err
	}

	filter := c.filter()
	results := make([]*types.ExtractionManifest, len(config.RelationalStores))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, storeID := range config.RelationalStores {
		i, id := i, storeID
		rel := stores[id]
		group.Go(func() error {
			results[i] = extract.Relational(groupCtx, rel, id, filter, analysis, c.stagingDir())
			return nil
		})
	}
	var graphResult *types.ExtractionManifest
	if c.opts.IncludeGraph {
		group.Go(func() error {
			creds, err := config.Neo4jCredentials(types.StoreRoleSource)
			if err != nil {
				return err
			}
			g, err := store.ConnectNeo4j(groupCtx, config.GraphStore, creds)
			if err != nil {
				return err
			}
			defer g.Close(groupCtx)
			graphResult = extract.Graph(groupCtx, g, config.GraphStore, filter, c.opts.GraphDepth, c.stagingDir())
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, m := range results {
		manifest.Extractions = append(manifest.Extractions, *m)
		manifest.RecordsExtracted += m.TotalRecords
		if !m.Success {
			failed++
		}
	}
	if graphResult != nil {
		manifest.Extractions = append(manifest.Extractions, *graphResult)
		manifest.RecordsExtracted += graphResult.TotalRecords
		if !graphResult.Success {
			failed++
		}
	}
	for i := range manifest.Extractions {
		m := &manifest.Extractions[i]
		path := filepath.Join(c.stagingDir(), m.Store+"_"+extract.ReportFile)
		if err := stage.WriteJSONFile(path, m); err != nil {
			c.logger.Warn().Err(err).Str("store", m.Store).Msg("Failed to write extraction manifest")
		}
	}
	if failed > 0 {
		return nil, errtag.Data.New("extraction failed for %d stores", failed)
	}
	return analysis, nil
}

// runLoad writes the anonymized staging data into the target stores,
// one transaction per store, stores in parallel
func (c *Coordinator) runLoad(ctx context.Context, manifest *types.RunManifest, analysis *types.SchemaAnalysis) error {
	results := make([]*types.LoadManifest, len(config.RelationalStores))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, storeID := range config.RelationalStores {
		i, id := i, storeID
		group.Go(func() error {
			creds, err := config.RelationalCredentials(types.StoreRoleTarget, id)
			if err != nil {
				return err
			}
			rel, err := store.ConnectPostgres(groupCtx, id, creds)
			if err != nil {
				return err
			}
			defer rel.Close()
			results[i] = load.Relational(groupCtx, rel, id,
				analysis.ExtractionByStore[id], c.anonymizedDir(), c.opts.Strategy, analysis)
			return nil
		})
	}
	var graphResult *types.LoadManifest
	if c.opts.IncludeGraph {
		group.Go(func() error {
			creds, err := config.Neo4jCredentials(types.StoreRoleTarget)
			if err != nil {
				return err
			}
			g, err := store.ConnectNeo4j(groupCtx, config.GraphStore, creds)
			if err != nil {
				return err
			}
			defer g.Close(groupCtx)
			graphResult = load.Graph(groupCtx, g, config.GraphStore, c.anonymizedDir())
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, m := range results {
		manifest.Loads = append(manifest.Loads, *m)
		manifest.RecordsLoaded += m.TotalRowsLoaded
		if !m.Success {
			failed++
		}
	}
	if graphResult != nil {
		manifest.Loads = append(manifest.Loads, *graphResult)
		manifest.RecordsLoaded += graphResult.TotalRowsLoaded
		if !graphResult.Success {
			failed++
		}
	}
	loadsDir := filepath.Join(c.opts.DataDir, "loads", c.opts.DistrictID)
	for i := range manifest.Loads {
		m := &manifest.Loads[i]
		path := filepath.Join(loadsDir, m.Store+"_"+load.ReportFile)
		if err := stage.WriteJSONFile(path, m); err != nil {
			c.logger.Warn().Err(err).Str("store", m.Store).Msg("Failed to write load manifest")
		}
	}
	if failed > 0 {
		return errtag.Data.New("load failed for %d stores", failed)
	}
	return nil
}

func (c *Coordinator) loadAnalysis() *types.SchemaAnalysis {
	analysis, err := schema.Load(filepath.Join(c.stagingDir(), schema.AnalysisFile))
	if err != nil {
		return nil
	}
	return analysis
}

// Rollback removes the district's data from the target stores: the
// graph neighborhood first, then the relational stores in reverse
// dependency order, tables in reverse extraction order. Idempotent.
func (c *Coordinator) Rollback(ctx context.Context) (*types.RollbackManifest, error) {
	start := time.Now()
	manifest := &types.RollbackManifest{
		RunTimestamp: start.UTC(),
		Filter:       c.filter(),
	}

	analysis := c.loadAnalysis()
	if analysis == nil {
		// No prior extraction: introspect the targets directly
		var tables []types.TableSchema
		for _, storeID := range config.RelationalStores {
			creds, err := config.RelationalCredentials(types.StoreRoleTarget, storeID)
			if err != nil {
				return nil, err
			}
			rel, err := store.ConnectPostgres(ctx, storeID, creds)
			if err != nil {
				return nil, err
			}
			introspected, err := rel.Introspect(ctx, config.DefaultSchema)
			rel.Close()
			if err != nil {
				return nil, err
			}
			tables = append(tables, introspected...)
		}
		analysis = schema.Analyze(tables)
	}

	if c.opts.IncludeGraph {
		creds, err := config.Neo4jCredentials(types.StoreRoleTarget)
		if err != nil {
			return nil, err
		}
		g, err := store.ConnectNeo4j(ctx, config.GraphStore, creds)
		if err != nil {
			manifest.Errors = append(manifest.Errors, err.Error())
		} else {
			result := load.RollbackGraph(ctx, g, config.GraphStore, extract.RootLabel, c.filter(), c.opts.GraphDepth)
			g.Close(ctx)
			manifest.Stores = append(manifest.Stores, *result)
			manifest.TotalRowsDeleted += result.RowsDeleted
			if !result.Success {
				manifest.Errors = append(manifest.Errors, result.Error)
			}
		}
	}

	for i := len(config.RelationalStores) - 1; i >= 0; i-- {
		storeID := config.RelationalStores[i]
		creds, err := config.RelationalCredentials(types.StoreRoleTarget, storeID)
		if err != nil {
			return nil, err
		}
		rel, err := store.ConnectPostgres(ctx, storeID, creds)
		if err != nil {
			manifest.Errors = append(manifest.Errors, err.Error())
			continue
		}
		result := load.RollbackRelational(ctx, rel, storeID,
			analysis.ExtractionByStore[storeID], c.filter(), analysis)
		rel.Close()
		manifest.Stores = append(manifest.Stores, *result)
		manifest.TotalRowsDeleted += result.RowsDeleted
		if !result.Success {
			manifest.Errors = append(manifest.Errors, result.Error)
		}
	}

	manifest.Success = len(manifest.Errors) == 0
	if manifest.Success {
		manifest.Status = types.StatusSuccess
	} else {
		manifest.Status = types.StatusManualIntervention
	}
	manifest.DurationSeconds = time.Since(start).Seconds()
	return manifest, nil
}
