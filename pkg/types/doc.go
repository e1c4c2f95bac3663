/*
Package types defines the core data structures used throughout Caravan.

This package contains all fundamental types that represent the migration
domain model: store descriptors, introspected table schemas and foreign
keys, tenant filters, anonymization and validation rules, and the
per-phase manifests that each pipeline stage persists.

# Core Types

Schema metadata:
  - StoreDescriptor: One database instance (relational or graph)
  - TableSchema: Introspected table shape, keyed by store.schema.table
  - ForeignKey: Declared FK constraint (from columns, target table)
  - SchemaAnalysis: Analyzer output (graph, order, cycles, break points)

Rules:
  - AnonymizationRule: field pattern + strategy (synthetic, hash,
    token, null, passthrough)
  - BusinessRule / CompletenessRule / DataQualityRule: validation
    rule families loaded from YAML

Manifests:
  - ExtractionManifest, AnonymizationReport, ValidationReport,
    LoadManifest, RollbackManifest: written by each phase
  - RunManifest: the coordinator's aggregate, keyed by run_id

All types are plain structs with JSON tags matching the on-disk
manifest documents; enums use typed string constants.

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type LoadStrategy string
	  const (
	      LoadInsert LoadStrategy = "insert"
	      LoadUpsert LoadStrategy = "upsert"
	  )

Optional sections of manifests use pointers (*GraphExtraction is nil
for relational stores).

# Integration Points

This package integrates with:

  - pkg/schema: Produces SchemaAnalysis
  - pkg/store: Consumes StoreDescriptor, produces TableSchema
  - pkg/extract, pkg/anonymize, pkg/validate, pkg/load: Produce the
    per-phase manifests
  - pkg/run: Aggregates manifests into RunManifest
*/
package types
