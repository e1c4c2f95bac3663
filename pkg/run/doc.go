// Package run coordinates a full migration: extract, anonymize,
// validate, load, report. Phases run in sequence; stores inside a
// phase run in parallel. Every run gets a unique id, a JSON and
// Markdown report, and an entry in the local history ledger. A
// per-district file lock keeps concurrent runs from interleaving.
package run
