/*
Package extract pulls one district's rows out of the source stores.

Tables are read in the analyzer's dependency order. A table carrying
the tenant column is read directly; one that does not gets a join path
derived by walking declared FK parents until the column is found.
Tables with no path at all are reference data and are skipped with
reason no_tenant_path rather than failed.

The graph store is handled by a bounded-depth traversal from the
district root node, staged as a node file and a relationship file.

A failed table records its error and extraction continues; a lost
connection or a cancel ends the store's phase. The per-store manifest
is the input to every later phase.
*/
package extract
