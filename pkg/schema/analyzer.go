package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/caravan/pkg/log"
	"github.com/cuemby/caravan/pkg/types"
)

// AnalysisFile is the basename the analysis is persisted under in the
// run directory
const AnalysisFile = "schema-analysis.json"

// Analyze builds the cross-store dependency graph from the
// introspected table schemas, detects circular dependencies, suggests
// a break point per cycle, and derives the extraction order. The
// result is deterministic for a given input.
func Analyze(tables []types.TableSchema) *types.SchemaAnalysis {
	logger := log.WithComponent("schema")

	graph := BuildGraph(tables)

	rawCycles := FindCycles(graph)
	cycles := make([]types.CycleInfo, 0, len(rawCycles))
	breakTargets := make([]string, 0, len(rawCycles))
	for _, c := range rawCycles {
		bp := SuggestBreakPoint(c, graph)
		cycles = append(cycles, types.CycleInfo{Tables: c, BreakPoint: bp})
		breakTargets = append(breakTargets, bp.BreakTo)
		logger.Warn().
			Strs("cycle", c).
			Str("break_from", bp.BreakFrom).
			Str("break_to", bp.BreakTo).
			Msg("Circular dependency detected")
	}

	order, hasCycles := TopologicalOrder(graph, breakTargets)

	byStore := make(map[string][]string)
	for _, qualified := range order {
		store, _, table := types.SplitQualifiedName(qualified)
		byStore[store] = append(byStore[store], table)
	}

	relationships := 0
	for _, children := range graph {
		relationships += len(children)
	}

	logger.Info().
		Int("tables", len(graph)).
		Int("relationships", relationships).
		Int("cycles", len(cycles)).
		Msg("Schema analysis complete")

	return &types.SchemaAnalysis{
		Success:            true,
		DependencyGraph:    graph,
		ExtractionOrder:    order,
		ExtractionByStore:  byStore,
		CircularDeps:       cycles,
		HasCycles:          hasCycles,
		TotalTables:        len(graph),
		TotalRelationships: relationships,
		Tables:             tables,
	}
}

// Save persists the analysis into dir as schema-analysis.json
func Save(analysis *types.SchemaAnalysis, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, AnalysisFile)
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}

// Load reads an analysis persisted by Save
func Load(path string) (*types.SchemaAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var analysis types.SchemaAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// Dependents returns the qualified names of tables that reference the
// given table, sorted
func Dependents(graph map[string][]string, qualified string) []string {
	out := append([]string(nil), graph[qualified]...)
	sort.Strings(out)
	return out
}
