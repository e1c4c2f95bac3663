/*
Package store holds the database adapters.

Two capability surfaces: Relational (PostgreSQL via pgx) and Graph
(Neo4j via the bolt driver). Adapters own their connections; the
phases own the transaction lifecycle. A loading phase holds exactly
one transaction per relational store, from Begin to Commit or
Rollback.

Query construction is split from execution: the SQL and Cypher
builders are pure functions over table schemas, so conflict policies,
join-path rendering, and traversal bounds are testable without a
database. Identifiers are quoted (SQL) or sanitized (Cypher) before
interpolation; data values always travel as bind parameters.

Reads and writes observe context cancellation between rows, so an
aborted run stops at a row boundary and the open transaction can be
rolled back cleanly.
*/
package store
