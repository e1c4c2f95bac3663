/*
Package log provides structured logging for Caravan using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers and configurable log levels.
Output defaults to stderr because every stage process reserves stdout
for its JSON response document.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component Loggers:

	extractLog := log.WithComponent("extract")
	extractLog.Info().Str("table", "students").Int64("records", n).Msg("table extracted")

	runLog := log.WithRunID("mig-20260824-101500-042")
	runLog.Info().Msg("phase complete")

# Integration Points

  - pkg/extract, pkg/anonymize, pkg/validate, pkg/load: per-phase logs
  - pkg/run: run-scoped logs carrying the run_id field
  - cmd/caravan: initializes the global logger before any stage runs
*/
package log
