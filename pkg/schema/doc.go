/*
Package schema analyzes cross-store table dependencies.

The analyzer turns introspected table schemas into a directed
dependency graph (parent -> child per foreign key), detects circular
dependencies, and produces a topological extraction order. The same
order, reversed, is the rollback deletion order.

# Cycles

Real district schemas carry cycles (a table holding a denormalized
pointer back into its own ancestry is the common case). Each simple
cycle is reported once with a suggested break point: the cycle node
with the fewest outgoing edges is broken from, and its successor is
extracted first with FK validation on that edge deferred until both
sides are loaded.

# Determinism

Child lists, traversal order, and Kahn's queue are all kept sorted, so
the same schema always yields the same analysis. The analysis is
persisted as schema-analysis.json in the run directory and consumed by
the extractor, the validator, and the loader.
*/
package schema
