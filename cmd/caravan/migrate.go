package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/metrics"
	"github.com/cuemby/caravan/pkg/run"
	"github.com/cuemby/caravan/pkg/types"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the full migration pipeline for one district",
	Long: `Migrate runs extraction, anonymization, validation, and loading
in sequence for one district, then writes the run report. The stores
inside each phase are processed in parallel. A FAILED validation
stops the pipeline before any load.

Ctrl+C cancels the run; the manifest records CANCELLED and any
in-flight store transaction rolls back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := coordinatorOptions(cmd)
		if err != nil {
			return respond(nil, err)
		}

		coordinator, err := run.NewCoordinator(opts)
		if err != nil {
			return respond(nil, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			go metrics.Serve(ctx, addr)
		}

		manifest, runErr := coordinator.Execute(ctx)
		if runErr != nil {
			return respond(manifest, runErr)
		}
		return respond(manifest, nil)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Remove a district's data from the CERT stores",
	Long: `Rollback deletes the district's rows from every CERT store: the
graph neighborhood first, then the relational stores in reverse
dependency order. Tables without the tenant column are skipped.
Safe to re-run; any failure surfaces NEEDS_MANUAL_INTERVENTION.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := coordinatorOptions(cmd)
		if err != nil {
			return respond(nil, err)
		}

		coordinator, err := run.NewCoordinator(opts)
		if err != nil {
			return respond(nil, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manifest, err := coordinator.Rollback(ctx)
		if err != nil {
			return respond(nil, err)
		}
		if !manifest.Success {
			return stageFailure(manifest, "rollback finished with status "+manifest.Status)
		}
		return respond(manifest, nil)
	},
}

func coordinatorOptions(cmd *cobra.Command) (run.Options, error) {
	districtID, _ := cmd.Flags().GetString("district")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	rulesPath, _ := cmd.Flags().GetString("rules")
	validationPath, _ := cmd.Flags().GetString("validation-rules")
	strategy, _ := cmd.Flags().GetString("strategy")
	depth, _ := cmd.Flags().GetInt("graph-depth")
	validationOnly, _ := cmd.Flags().GetBool("validation-only")
	skipExtraction, _ := cmd.Flags().GetBool("skip-extraction")
	skipLoad, _ := cmd.Flags().GetBool("skip-load")
	includeGraph, _ := cmd.Flags().GetBool("include-graph")

	opts := run.Options{
		DistrictID:     districtID,
		DataDir:        dataDir,
		Strategy:       types.LoadStrategy(strategy),
		GraphDepth:     depth,
		ValidationOnly: validationOnly,
		SkipExtraction: skipExtraction,
		SkipLoad:       skipLoad,
		IncludeGraph:   includeGraph,
	}

	if rulesPath != "" {
		rules, err := config.LoadAnonymizationRules(rulesPath)
		if err != nil {
			return opts, err
		}
		opts.AnonymizationRules = rules
	}
	if validationPath != "" {
		rules, err := config.LoadValidationRules(validationPath)
		if err != nil {
			return opts, err
		}
		opts.ValidationRules = rules
	}
	return opts, nil
}

func init() {
	for _, cmd := range []*cobra.Command{migrateCmd, rollbackCmd} {
		cmd.Flags().String("district", "", "District id to migrate (required)")
		cmd.Flags().String("data-dir", "data", "Root data directory")
		cmd.Flags().Int("graph-depth", config.DefaultGraphDepth, "Graph neighborhood traversal depth")
		cmd.Flags().Bool("include-graph", false, fmt.Sprintf("Include the %s graph store", config.GraphStore))
		cmd.MarkFlagRequired("district")
	}

	migrateCmd.Flags().String("rules", "", "Anonymization rules YAML file")
	migrateCmd.Flags().String("validation-rules", "", "Validation rules YAML file")
	migrateCmd.Flags().String("strategy", string(types.LoadUpsert), "Load strategy: insert, upsert, or merge")
	migrateCmd.Flags().Bool("validation-only", false, "Only validate previously anonymized data")
	migrateCmd.Flags().Bool("skip-extraction", false, "Reuse existing staged data")
	migrateCmd.Flags().Bool("skip-load", false, "Stop after validation")
	migrateCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address for the run")
}
