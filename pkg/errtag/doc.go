/*
Package errtag defines the error taxonomy for Caravan stages.

Each taxonomy entry is a zeebo/errs class. Wrapping preserves the
original error for errors.Is/As while letting stage boundaries recover
the error_type string that goes into the JSON error document:

	return errtag.Filter.New("no join path from %s to %s", table, filterKey)

	resp := stageError(err) // {"success":false,"error":...,"error_type":errtag.Tag(err)}

Propagation policy (per phase): configuration and connection errors are
fatal; data errors abort the current table only, except inside a loader
transaction where they escalate to a full rollback; a detected PII leak
fails the anonymization phase and blocks validation.
*/
package errtag
