package errtag

import (
	"context"
	"errors"

	"github.com/zeebo/errs"
)

// Error classes, one per entry of the failure taxonomy. Stages wrap
// errors in the class that names the failure; Tag recovers the
// error_type string for the JSON error document.
var (
	Configuration = errs.Class("configuration")
	Connection    = errs.Class("connection")
	Schema        = errs.Class("schema")
	Filter        = errs.Class("filter")
	Data          = errs.Class("data")
	PIILeak       = errs.Class("pii_leak")
	Validation    = errs.Class("validation_failure")
	Cancelled     = errs.Class("cancelled")
)

// Tag returns the taxonomy name of err, or "internal" when err does
// not belong to any class. Context cancellation maps to "cancelled"
// even when it was never wrapped.
func Tag(err error) string {
	switch {
	case err == nil:
		return ""
	case Cancelled.Has(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case Configuration.Has(err):
		return "configuration"
	case Connection.Has(err):
		return "connection"
	case Schema.Has(err):
		return "schema"
	case Filter.Has(err):
		return "filter"
	case Data.Has(err):
		return "data"
	case PIILeak.Has(err):
		return "pii_leak"
	case Validation.Has(err):
		return "validation_failure"
	default:
		return "internal"
	}
}
