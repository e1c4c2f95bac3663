/*
Package stage implements the on-disk columnar staging format.

One file per table, named store_table.colz: a gzip stream containing a
single column-major JSON document. Logical types (int, float, bool,
string, timestamp, date, binary) round-trip losslessly; timestamps are
RFC 3339 nano strings, dates are YYYY-MM-DD, binary is base64, NULL is
JSON null. The graph store stages as two files, sp_nodes.colz and
sp_relationships.colz.

Writes are atomic: the document goes to a uuid-suffixed temp file and
is renamed into place, so a crashed phase never leaves a torn file for
the next phase to read.

All stages of a run agree on this format: the extractor writes it, the
anonymizer rewrites it, the validator and loader read it.
*/
package stage
