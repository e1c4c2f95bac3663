package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/caravan/pkg/errtag"
)

// Stage subcommands speak JSON: a request document on stdin, a
// response document on stdout, exit code 0 or 1. Logs go to stderr.

type storeConfig struct {
	Store       string `json:"store"`
	Environment string `json:"environment,omitempty"`
}

type tenantRequest struct {
	DistrictID string `json:"district_id"`
}

type extractRequest struct {
	SourceConfig    storeConfig   `json:"source_config"`
	Filter          tenantRequest `json:"filter"`
	ExtractionOrder []string      `json:"extraction_order,omitempty"`
	MaxDepth        int           `json:"max_depth,omitempty"`
	OutputDir       string        `json:"output_dir"`
}

type anonymizeRequest struct {
	InputDir       string `json:"input_dir"`
	OutputDir      string `json:"output_dir"`
	RulesFile      string `json:"rules_file"`
	ConsistencyMap string `json:"consistency_map,omitempty"`
}

type validateRequest struct {
	DataDir         string `json:"data_dir"`
	SchemaFile      string `json:"schema_file,omitempty"`
	ValidationRules string `json:"validation_rules"`
	OutputReport    string `json:"output_report,omitempty"`
}

type loadRequest struct {
	InputDir     string      `json:"input_dir"`
	TargetConfig storeConfig `json:"target_config"`
	LoadingOrder []string    `json:"loading_order,omitempty"`
	Strategy     string      `json:"strategy,omitempty"`
	SchemaFile   string      `json:"schema_file,omitempty"`
}

type reportRequest struct {
	RunID      string `json:"run_id"`
	DistrictID string `json:"district_id"`
	OutputDir  string `json:"output_dir"`
}

type errorDocument struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// readRequest decodes the stage request from r
func readRequest(r io.Reader, into any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errtag.Configuration.New("reading request: %v", err)
	}
	if len(data) == 0 {
		return errtag.Configuration.New("empty request on stdin")
	}
	if err := json.Unmarshal(data, into); err != nil {
		return errtag.Configuration.New("parsing request: %v", err)
	}
	return nil
}

// respond writes the response document to stdout. When err is non-nil
// (or the stage reports failure) the document is the error form and
// the returned error propagates the exit code 1 through cobra.
func respond(result any, err error) error {
	if err != nil {
		doc := errorDocument{Error: err.Error(), ErrorType: errtag.Tag(err)}
		payload, merr := json.MarshalIndent(doc, "", "  ")
		if merr != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(payload))
		return err
	}

	payload, merr := json.MarshalIndent(result, "", "  ")
	if merr != nil {
		return merr
	}
	fmt.Fprintln(os.Stdout, string(payload))
	return nil
}

// stageFailure converts an unsuccessful stage result into the exit-1
// path while still printing the full result document
func stageFailure(result any, message string) error {
	payload, merr := json.MarshalIndent(result, "", "  ")
	if merr != nil {
		return merr
	}
	fmt.Fprintln(os.Stdout, string(payload))
	return fmt.Errorf("%s", message)
}
