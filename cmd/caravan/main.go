package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/caravan/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "caravan",
	Short: "Caravan - District data migration pipeline",
	Long: `Caravan migrates a school district's data footprint from the PROD
environment to CERT: extraction across the relational and graph
stores, PII anonymization, consistency validation, and transactional
loading, with a run report at the end.

Stage subcommands read a JSON request on stdin and write a JSON
response on stdout. The migrate subcommand runs the whole pipeline.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.InfoLevel
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = log.DebugLevel
		}
		log.Init(log.Config{Level: level, JSONOutput: true})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Caravan version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(anonymizeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runsCmd)
}
