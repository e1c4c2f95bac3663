package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/caravan/pkg/anonymize"
	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/extract"
	"github.com/cuemby/caravan/pkg/load"
	"github.com/cuemby/caravan/pkg/schema"
	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
	"github.com/cuemby/caravan/pkg/validate"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract one store's district slice into the staging directory",
	Long: `Extract reads {source_config: {store}, filter: {district_id},
extraction_order?, output_dir} from stdin, connects to the PROD store,
and writes one staging file per table (or the node/relationship pair
for the graph store) plus an extraction manifest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req extractRequest
		if err := readRequest(os.Stdin, &req); err != nil {
			return respond(nil, err)
		}
		if req.OutputDir == "" || req.SourceConfig.Store == "" || req.Filter.DistrictID == "" {
			return respond(nil, errtag.Configuration.New("source_config.store, filter.district_id, and output_dir are required"))
		}

		ctx := cmd.Context()
		filter := types.TenantFilter{Key: config.DefaultFilterKey, Value: req.Filter.DistrictID}
		storeID := strings.ToLower(req.SourceConfig.Store)

		var manifest *types.ExtractionManifest
		if storeID == config.GraphStore {
			creds, err := config.Neo4jCredentials(types.StoreRoleSource)
			if err != nil {
				return respond(nil, err)
			}
			g, err := store.ConnectNeo4j(ctx, storeID, creds)
			if err != nil {
				return respond(nil, err)
			}
			defer g.Close(ctx)
			depth := req.MaxDepth
			if depth <= 0 {
				depth = config.DefaultGraphDepth
			}
			manifest = extract.Graph(ctx, g, storeID, filter, depth, req.OutputDir)
		} else {
			creds, err := config.RelationalCredentials(types.StoreRoleSource, storeID)
			if err != nil {
				return respond(nil, err)
			}
			rel, err := store.ConnectPostgres(ctx, storeID, creds)
			if err != nil {
				return respond(nil, err)
			}
			defer rel.Close()

			tables, err := rel.Introspect(ctx, config.DefaultSchema)
			if err != nil {
				return respond(nil, err)
			}
			analysis := schema.Analyze(tables)
			if len(req.ExtractionOrder) > 0 {
				analysis.ExtractionByStore[storeID] = req.ExtractionOrder
			}
			if _, err := schema.Save(analysis, req.OutputDir); err != nil {
				return respond(nil, err)
			}
			manifest = extract.Relational(ctx, rel, storeID, filter, analysis, req.OutputDir)
		}

		path := filepath.Join(req.OutputDir, manifest.Store+"_"+extract.ReportFile)
		if err := stage.WriteJSONFile(path, manifest); err != nil {
			return respond(nil, err)
		}
		if !manifest.Success {
			return stageFailure(manifest, "extraction failed for store "+manifest.Store)
		}
		return respond(manifest, nil)
	},
}

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Anonymize staged data into the output directory",
	Long: `Anonymize reads {input_dir, output_dir, rules_file,
consistency_map?} from stdin, applies the ordered rule list to every
staged file, and writes the anonymization report. A leak-sentinel
finding fails the stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req anonymizeRequest
		if err := readRequest(os.Stdin, &req); err != nil {
			return respond(nil, err)
		}
		if req.InputDir == "" || req.OutputDir == "" || req.RulesFile == "" {
			return respond(nil, errtag.Configuration.New("input_dir, output_dir, and rules_file are required"))
		}

		rules, err := config.LoadAnonymizationRules(req.RulesFile)
		if err != nil {
			return respond(nil, err)
		}

		analysis, _ := schema.Load(filepath.Join(req.InputDir, schema.AnalysisFile))
		report, err := anonymize.Run(cmd.Context(), req.InputDir, req.OutputDir, req.ConsistencyMap, rules, analysis)
		if report != nil {
			path := filepath.Join(req.OutputDir, anonymize.ReportFile)
			if werr := stage.WriteJSONFile(path, report); werr != nil {
				return respond(nil, werr)
			}
		}
		if err != nil {
			return respond(nil, err)
		}
		if !report.Success {
			return stageFailure(report, "anonymization failed: PII leak check "+report.PIILeakCheck)
		}
		return respond(report, nil)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate anonymized data before loading",
	Long: `Validate reads {data_dir, schema_file?, validation_rules,
output_report?} from stdin, runs the five check families, and writes
the validation report. Any error-severity finding fails the stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req validateRequest
		if err := readRequest(os.Stdin, &req); err != nil {
			return respond(nil, err)
		}
		if req.DataDir == "" || req.ValidationRules == "" {
			return respond(nil, errtag.Configuration.New("data_dir and validation_rules are required"))
		}

		rules, err := config.LoadValidationRules(req.ValidationRules)
		if err != nil {
			return respond(nil, err)
		}

		schemaFile := req.SchemaFile
		if schemaFile == "" {
			schemaFile = filepath.Join(req.DataDir, schema.AnalysisFile)
		}
		analysis, _ := schema.Load(schemaFile)

		report, err := validate.Run(cmd.Context(), req.DataDir, rules, analysis)
		if report != nil {
			out := req.OutputReport
			if out == "" {
				out = filepath.Join(req.DataDir, validate.ReportFile)
			}
			if werr := stage.WriteJSONFile(out, report); werr != nil {
				return respond(nil, werr)
			}
		}
		if err != nil {
			return respond(nil, err)
		}
		if !report.Success {
			return stageFailure(report, "validation failed: "+report.OverallStatus)
		}
		return respond(report, nil)
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load anonymized data into one CERT store",
	Long: `Load reads {input_dir, target_config: {store}, loading_order?,
strategy?} from stdin and writes the staged files into the CERT store
in a single transaction. A failure on any table rolls the whole store
back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req loadRequest
		if err := readRequest(os.Stdin, &req); err != nil {
			return respond(nil, err)
		}
		if req.InputDir == "" || req.TargetConfig.Store == "" {
			return respond(nil, errtag.Configuration.New("input_dir and target_config.store are required"))
		}

		ctx := cmd.Context()
		storeID := strings.ToLower(req.TargetConfig.Store)
		strategy := types.LoadStrategy(req.Strategy)
		if strategy == "" {
			strategy = types.LoadUpsert
		}
		switch strategy {
		case types.LoadInsert, types.LoadUpsert, types.LoadMerge:
		default:
			return respond(nil, errtag.Configuration.New("unknown load strategy %q", req.Strategy))
		}

		var manifest *types.LoadManifest
		if storeID == config.GraphStore {
			creds, err := config.Neo4jCredentials(types.StoreRoleTarget)
			if err != nil {
				return respond(nil, err)
			}
			g, err := store.ConnectNeo4j(ctx, storeID, creds)
			if err != nil {
				return respond(nil, err)
			}
			defer g.Close(ctx)
			manifest = load.Graph(ctx, g, storeID, req.InputDir)
		} else {
			creds, err := config.RelationalCredentials(types.StoreRoleTarget, storeID)
			if err != nil {
				return respond(nil, err)
			}
			rel, err := store.ConnectPostgres(ctx, storeID, creds)
			if err != nil {
				return respond(nil, err)
			}
			defer rel.Close()

			schemaFile := req.SchemaFile
			if schemaFile == "" {
				schemaFile = filepath.Join(req.InputDir, schema.AnalysisFile)
			}
			analysis, _ := schema.Load(schemaFile)

			order := req.LoadingOrder
			if len(order) == 0 && analysis != nil {
				order = analysis.ExtractionByStore[storeID]
			}
			if len(order) == 0 {
				order = stagedTables(req.InputDir, storeID)
			}
			manifest = load.Relational(ctx, rel, storeID, order, req.InputDir, strategy, analysis)
		}

		if !manifest.Success {
			return stageFailure(manifest, "load failed for store "+manifest.Store)
		}
		return respond(manifest, nil)
	},
}

// stagedTables lists the tables staged for one store, in file order
func stagedTables(dir, storeID string) []string {
	files, err := stage.List(dir)
	if err != nil {
		return nil
	}
	var tables []string
	for _, f := range files {
		s, table, ok := stage.SplitFileName(filepath.Base(f))
		if ok && s == storeID {
			tables = append(tables, table)
		}
	}
	return tables
}

