/*
Package load writes anonymized staged data into the target stores and
undoes it on demand.

A relational store is loaded under exactly one transaction, tables in
forward dependency order, so a failure anywhere leaves the store
untouched. Three strategies: insert (violations abort), upsert (ON
CONFLICT on the primary key, non-key columns updated from EXCLUDED),
and merge (upsert semantics, the name reserved for table-specific
predicates). The graph store merges nodes on their id property, then
edges; it has no cross-entity transaction and reports partial counts
on failure.

Rollback is the mirror image: stores in reverse dependency order,
tables in reverse extraction order, tenant-scoped deletes under one
transaction per store. Tables without the tenant column are skipped.
Rollback on an already-clean target succeeds with zero rows.
*/
package load
