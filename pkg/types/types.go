package types

import (
	"fmt"
	"strings"
	"time"
)

// StoreKind distinguishes relational from graph stores
type StoreKind string

const (
	StoreKindRelational StoreKind = "relational"
	StoreKindGraph      StoreKind = "graph"
)

// StoreRole identifies which side of the migration a store sits on
type StoreRole string

const (
	StoreRoleSource StoreRole = "source"
	StoreRoleTarget StoreRole = "target"
)

// StoreDescriptor identifies one database instance in the pipeline
type StoreDescriptor struct {
	ID       string    `json:"id"`
	Kind     StoreKind `json:"kind"`
	Endpoint string    `json:"endpoint"`
	Role     StoreRole `json:"role"`
}

// LogicalType is the column type vocabulary that must round-trip
// through the staging format
type LogicalType string

const (
	TypeInt       LogicalType = "int"
	TypeFloat     LogicalType = "float"
	TypeBool      LogicalType = "bool"
	TypeString    LogicalType = "string"
	TypeTimestamp LogicalType = "timestamp"
	TypeDate      LogicalType = "date"
	TypeBinary    LogicalType = "binary"
)

// ColumnSchema describes one column of a relational table
type ColumnSchema struct {
	Name     string      `json:"name"`
	Type     LogicalType `json:"type"`
	Nullable bool        `json:"nullable"`
}

// ForeignKey is a declared FK constraint. ToTable is a qualified name
// (store.schema.table).
type ForeignKey struct {
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
}

// TableSchema is the introspected shape of one table. Immutable within
// a run.
type TableSchema struct {
	Store       string         `json:"store"`
	Schema      string         `json:"schema"`
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	PrimaryKey  []string       `json:"primary_key"`
	ForeignKeys []ForeignKey   `json:"foreign_keys"`
}

// QualifiedName returns store.schema.table
func (t *TableSchema) QualifiedName() string {
	return fmt.Sprintf("%s.%s.%s", t.Store, t.Schema, t.Name)
}

// HasColumn reports whether the table declares the named column
func (t *TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// SplitQualifiedName breaks store.schema.table into its parts. A
// two-part name is treated as store.table with the default schema.
func SplitQualifiedName(qualified string) (store, schema, table string) {
	parts := strings.SplitN(qualified, ".", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], "public", parts[1]
	default:
		return "", "public", qualified
	}
}

// TenantFilter scopes a run to a single district
type TenantFilter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// JoinHop is one step of an indirect-filter join path
type JoinHop struct {
	Table    string `json:"table"`     // parent table (unqualified)
	FKColumn string `json:"fk_column"` // column on the child side
}

// AnonymizationStrategy is the transform applied to a matched column
type AnonymizationStrategy string

const (
	StrategySynthetic   AnonymizationStrategy = "synthetic"
	StrategyHash        AnonymizationStrategy = "hash"
	StrategyToken       AnonymizationStrategy = "token"
	StrategyNull        AnonymizationStrategy = "null"
	StrategyPassthrough AnonymizationStrategy = "passthrough"
)

// SyntheticArgs parameterizes the synthetic strategy
type SyntheticArgs struct {
	MinimumAge int `json:"minimum_age,omitempty" yaml:"minimum_age"`
	MaximumAge int `json:"maximum_age,omitempty" yaml:"maximum_age"`
}

// AnonymizationRule binds a column-name pattern to a strategy. Rules
// are an ordered list; the first matching rule governs a column.
type AnonymizationRule struct {
	Name          string                `json:"name" yaml:"name"`
	FieldPattern  string                `json:"field_pattern" yaml:"field_pattern"`
	Strategy      AnonymizationStrategy `json:"strategy" yaml:"strategy"`
	SyntheticType string                `json:"synthetic_type,omitempty" yaml:"synthetic_type"`
	SyntheticArgs *SyntheticArgs        `json:"synthetic_args,omitempty" yaml:"synthetic_args"`
	HashAlgorithm string                `json:"hash_algorithm,omitempty" yaml:"hash_algorithm"`
}

// Severity of a validation finding
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// BusinessRule is a per-row predicate over one table
type BusinessRule struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Store       string   `json:"store" yaml:"store"`
	Table       string   `json:"table" yaml:"table"`
	Condition   string   `json:"condition" yaml:"condition"`
	Severity    Severity `json:"severity" yaml:"severity"`
}

// CompletenessRule lists fields that must be present and non-null
type CompletenessRule struct {
	Name           string   `json:"name" yaml:"name"`
	Store          string   `json:"store" yaml:"store"`
	Table          string   `json:"table" yaml:"table"`
	RequiredFields []string `json:"required_fields" yaml:"required_fields"`
	Severity       Severity `json:"severity" yaml:"severity"`
}

// DataQualityRule scopes the generic quality checks
type DataQualityRule struct {
	Name     string   `json:"name" yaml:"name"`
	Store    string   `json:"store" yaml:"store"`
	Table    string   `json:"table" yaml:"table"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// ValidationRules groups the configured rule families
type ValidationRules struct {
	BusinessRules     []BusinessRule     `json:"business_rules" yaml:"business_rules"`
	CompletenessRules []CompletenessRule `json:"completeness_rules" yaml:"completeness_rules"`
	DataQualityRules  []DataQualityRule  `json:"data_quality_rules" yaml:"data_quality_rules"`
}

// LoadStrategy is the conflict policy applied by the loader
type LoadStrategy string

const (
	LoadInsert LoadStrategy = "insert"
	LoadUpsert LoadStrategy = "upsert"
	LoadMerge  LoadStrategy = "merge"
)

// Status values shared by validation and run reports
const (
	StatusPassed             = "PASSED"
	StatusPassedWithWarnings = "PASSED_WITH_WARNINGS"
	StatusFailed             = "FAILED"
	StatusSuccess            = "SUCCESS"
	StatusCancelled          = "CANCELLED"
	StatusManualIntervention = "NEEDS_MANUAL_INTERVENTION"
)

// BreakPoint names the edge ignored to linearize a cycle
type BreakPoint struct {
	BreakFrom string `json:"break_from"`
	BreakTo   string `json:"break_to"`
	Strategy  string `json:"strategy"`
	Impact    string `json:"impact"`
}

// CycleInfo reports one simple cycle and its suggested break point
type CycleInfo struct {
	Tables     []string   `json:"tables"`
	BreakPoint BreakPoint `json:"break_point"`
}

// SchemaAnalysis is the schema analyzer's output, persisted as
// schema-analysis.json and consumed by the extractor and validator
type SchemaAnalysis struct {
	Success            bool                `json:"success"`
	DependencyGraph    map[string][]string `json:"dependency_graph"`
	ExtractionOrder    []string            `json:"extraction_order"`
	ExtractionByStore  map[string][]string `json:"extraction_by_store"`
	CircularDeps       []CycleInfo         `json:"circular_dependencies"`
	HasCycles          bool                `json:"has_cycles"`
	TotalTables        int                 `json:"total_tables"`
	TotalRelationships int                 `json:"total_relationships"`
	Tables             []TableSchema       `json:"tables,omitempty"`
}

// TableFor finds the schema of a qualified table name, or nil
func (a *SchemaAnalysis) TableFor(qualified string) *TableSchema {
	for i := range a.Tables {
		if a.Tables[i].QualifiedName() == qualified {
			return &a.Tables[i]
		}
	}
	return nil
}

// TableExtraction records the outcome for one table
type TableExtraction struct {
	Table        string `json:"table"`
	Store        string `json:"store"`
	Records      int64  `json:"records"`
	File         string `json:"file,omitempty"`
	JoinStrategy string `json:"join_strategy,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
	SkipReason   string `json:"skip_reason,omitempty"`
	Error        string `json:"error,omitempty"`
	Success      bool   `json:"success"`
}

// GraphExtraction records the graph-store neighborhood dump
type GraphExtraction struct {
	Store         string            `json:"store"`
	Nodes         int64             `json:"nodes"`
	Relationships int64             `json:"relationships"`
	Files         map[string]string `json:"files,omitempty"`
	Error         string            `json:"error,omitempty"`
	Success       bool              `json:"success"`
}

// ExtractionManifest is written as extraction-manifest.json
type ExtractionManifest struct {
	RunTimestamp    time.Time         `json:"run_timestamp"`
	Store           string            `json:"store"`
	Filter          TenantFilter      `json:"filter"`
	TablesExtracted []TableExtraction `json:"tables_extracted"`
	Graph           *GraphExtraction  `json:"neo4j,omitempty"`
	TotalRecords    int64             `json:"total_records"`
	Success         bool              `json:"success"`
	Errors          []string          `json:"errors"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// FileAnonymization records the outcome for one staged file
type FileAnonymization struct {
	File             string              `json:"file"`
	Records          int64               `json:"records"`
	Columns          int                 `json:"columns"`
	AnonymizedFields []string            `json:"anonymized_fields"`
	FieldsByRule     map[string][]string `json:"fields_by_rule"`
	PIILeaks         []string            `json:"pii_leaks"`
	Error            string              `json:"error,omitempty"`
	Success          bool                `json:"success"`
}

// AnonymizationReport is written as anonymization-report.json
type AnonymizationReport struct {
	RunTimestamp          time.Time           `json:"run_timestamp"`
	InputDir              string              `json:"input_dir"`
	OutputDir             string              `json:"output_dir"`
	FilesProcessed        []FileAnonymization `json:"files_processed"`
	TotalRecords          int64               `json:"total_records"`
	TotalFieldsAnonymized int                 `json:"total_fields_anonymized"`
	PIILeaksDetected      []string            `json:"pii_leaks_detected"`
	PIILeakCheck          string              `json:"pii_leak_check"`
	Success               bool                `json:"success"`
	Errors                []string            `json:"errors"`
	DurationSeconds       float64             `json:"duration_seconds"`
}

// Finding is one validation error or warning
type Finding struct {
	Check           string   `json:"check"`
	Rule            string   `json:"rule,omitempty"`
	Table           string   `json:"table,omitempty"`
	Column          string   `json:"column,omitempty"`
	Field           string   `json:"field,omitempty"`
	ReferencedTable string   `json:"referenced_table,omitempty"`
	Message         string   `json:"message"`
	Severity        Severity `json:"severity"`
	SampleOrphaned  []string `json:"sample_orphaned,omitempty"`
}

// CheckResult accumulates one validation family's outcome
type CheckResult struct {
	ChecksRun    int       `json:"checks_run"`
	ChecksPassed int       `json:"checks_passed"`
	ChecksFailed int       `json:"checks_failed"`
	Errors       []Finding `json:"errors"`
	Warnings     []Finding `json:"warnings"`
}

// ValidationReport is written as validation-report.json
type ValidationReport struct {
	RunTimestamp    time.Time              `json:"run_timestamp"`
	DataDir         string                 `json:"data_dir"`
	OverallStatus   string                 `json:"overall_status"`
	Checks          map[string]CheckResult `json:"checks"`
	TotalChecks     int                    `json:"total_checks"`
	TotalPassed     int                    `json:"total_passed"`
	TotalFailed     int                    `json:"total_failed"`
	TotalWarnings   int                    `json:"total_warnings"`
	Errors          []Finding              `json:"errors"`
	Warnings        []Finding              `json:"warnings"`
	Success         bool                   `json:"success"`
	DurationSeconds float64                `json:"duration_seconds"`
}

// TableLoad records the outcome for one loaded table
type TableLoad struct {
	Table      string       `json:"table"`
	Store      string       `json:"store"`
	RowsLoaded int64        `json:"rows_loaded"`
	Strategy   LoadStrategy `json:"strategy"`
	Error      string       `json:"error,omitempty"`
	Success    bool         `json:"success"`
}

// GraphLoad records the graph-store load outcome
type GraphLoad struct {
	Store               string `json:"store"`
	NodesLoaded         int64  `json:"nodes_loaded"`
	RelationshipsLoaded int64  `json:"relationships_loaded"`
	Error               string `json:"error,omitempty"`
	Success             bool   `json:"success"`
}

// LoadManifest is written as load-manifest.json
type LoadManifest struct {
	RunTimestamp    time.Time    `json:"run_timestamp"`
	Store           string       `json:"store"`
	Strategy        LoadStrategy `json:"strategy"`
	TablesLoaded    []TableLoad  `json:"tables_loaded"`
	Graph           *GraphLoad   `json:"neo4j,omitempty"`
	TotalRowsLoaded int64        `json:"total_rows_loaded"`
	FailedTable     string       `json:"failed_table,omitempty"`
	Success         bool         `json:"success"`
	Errors          []string     `json:"errors"`
	DurationSeconds float64      `json:"duration_seconds"`
}

// TableRollback is one reverse-order delete
type TableRollback struct {
	Table       string `json:"table"`
	RowsDeleted int64  `json:"rows_deleted"`
	Skipped     bool   `json:"skipped,omitempty"`
	SkipReason  string `json:"skip_reason,omitempty"`
}

// StoreRollback is the per-store slice of a rollback
type StoreRollback struct {
	Store       string          `json:"store"`
	Tables      []TableRollback `json:"tables"`
	RowsDeleted int64           `json:"rows_deleted"`
	Error       string          `json:"error,omitempty"`
	Success     bool            `json:"success"`
}

// RollbackManifest records the outcome of a rollback pass
type RollbackManifest struct {
	RunTimestamp     time.Time       `json:"run_timestamp"`
	Filter           TenantFilter    `json:"filter"`
	Stores           []StoreRollback `json:"stores"`
	TotalRowsDeleted int64           `json:"total_rows_deleted"`
	Status           string          `json:"status"`
	Success          bool            `json:"success"`
	Errors           []string        `json:"errors"`
	DurationSeconds  float64         `json:"duration_seconds"`
}

// RunManifest aggregates every phase of one migration run
type RunManifest struct {
	RunID            string               `json:"run_id"`
	DistrictID       string               `json:"district_id"`
	OverallSuccess   bool                 `json:"overall_success"`
	OverallStatus    string               `json:"overall_status"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time"`
	TotalDuration    float64              `json:"total_duration"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	Extractions      []ExtractionManifest `json:"extractions,omitempty"`
	Anonymization    *AnonymizationReport `json:"anonymization,omitempty"`
	Validation       *ValidationReport    `json:"validation,omitempty"`
	Loads            []LoadManifest       `json:"loads,omitempty"`
	Rollback         *RollbackManifest    `json:"rollback,omitempty"`
	RecordsExtracted int64                `json:"records_extracted"`
	FieldsAnonymized int                  `json:"fields_anonymized"`
	RecordsLoaded    int64                `json:"records_loaded"`
}
