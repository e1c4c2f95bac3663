package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/caravan/pkg/config"
	"github.com/cuemby/caravan/pkg/district"
	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/schema"
	"github.com/cuemby/caravan/pkg/store"
	"github.com/cuemby/caravan/pkg/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze schema dependencies or rank migration candidates",
	Long: `Analyze introspects the PROD relational stores, builds the
foreign-key dependency graph, detects cycles, and derives the
extraction order. The result is written as schema-analysis.json and
echoed on stdout.

With --districts the command instead reads a candidate list (JSON
array of districts) from stdin, scores and ranks them, and prints the
selection analysis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if districts, _ := cmd.Flags().GetBool("districts"); districts {
			return analyzeDistricts(cmd)
		}
		return analyzeSchema(cmd)
	},
}

func init() {
	analyzeCmd.Flags().Bool("districts", false, "Rank district candidates instead of analyzing the schema")
	analyzeCmd.Flags().Int("top", 0, "Cap the recommended district list (default 15)")
	analyzeCmd.Flags().String("output-dir", ".", "Directory for schema-analysis.json")
	analyzeCmd.Flags().String("dot", "", "Also write the dependency graph as Graphviz DOT to this file")
	analyzeCmd.Flags().StringSlice("stores", nil, "Restrict introspection to these stores (default: all relational stores)")
}

func analyzeSchema(cmd *cobra.Command) error {
	ctx := cmd.Context()
	outputDir, _ := cmd.Flags().GetString("output-dir")
	dotPath, _ := cmd.Flags().GetString("dot")
	storeIDs, _ := cmd.Flags().GetStringSlice("stores")
	if len(storeIDs) == 0 {
		storeIDs = config.RelationalStores
	}

	var tables []types.TableSchema
	for _, storeID := range storeIDs {
		creds, err := config.RelationalCredentials(types.StoreRoleSource, storeID)
		if err != nil {
			return respond(nil, err)
		}
		rel, err := store.ConnectPostgres(ctx, storeID, creds)
		if err != nil {
			return respond(nil, err)
		}
		introspected, err := rel.Introspect(ctx, config.DefaultSchema)
		rel.Close()
		if err != nil {
			return respond(nil, err)
		}
		tables = append(tables, introspected...)
	}

	analysis := schema.Analyze(tables)
	if _, err := schema.Save(analysis, outputDir); err != nil {
		return respond(nil, err)
	}

	if dotPath != "" {
		f, err := os.Create(dotPath)
		if err != nil {
			return respond(nil, err)
		}
		err = schema.WriteDOT(analysis.DependencyGraph, f)
		f.Close()
		if err != nil {
			return respond(nil, err)
		}
	}
	return respond(analysis, nil)
}

func analyzeDistricts(cmd *cobra.Command) error {
	topN, _ := cmd.Flags().GetInt("top")

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return respond(nil, errtag.Configuration.New("reading district list: %v", err))
	}
	candidates, err := unmarshalDistricts(data)
	if err != nil {
		return respond(nil, err)
	}
	if len(candidates) == 0 {
		return respond(nil, errtag.Configuration.New("no districts in request"))
	}

	analysis := district.Analyze(candidates, district.DefaultCriteria(), topN)
	return respond(analysis, nil)
}

// unmarshalDistricts accepts either a bare array or {districts: [...]}
func unmarshalDistricts(data []byte) ([]district.District, error) {
	var bare []district.District
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	var wrapped struct {
		Districts []district.District `json:"districts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, errtag.Configuration.New("parsing district list: %v", err)
	}
	return wrapped.Districts, nil
}
