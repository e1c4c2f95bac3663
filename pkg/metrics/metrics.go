package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/caravan/pkg/log"
)

var (
	// RowsExtracted counts rows pulled out of source stores
	RowsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caravan_rows_extracted_total",
		Help: "Rows extracted from source stores",
	}, []string{"store"})

	// RowsAnonymized counts rows passed through the anonymization engine
	RowsAnonymized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caravan_rows_anonymized_total",
		Help: "Rows processed by the anonymization engine",
	}, []string{"store"})

	// RowsLoaded counts rows written into target stores
	RowsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caravan_rows_loaded_total",
		Help: "Rows loaded into target stores",
	}, []string{"store"})

	// PIILeakFindings counts leak-scan findings; any nonzero value on a
	// run is a failed anonymization
	PIILeakFindings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caravan_pii_leak_findings_total",
		Help: "PII leak sentinel findings",
	})

	// PhaseDuration observes wall time per pipeline phase
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caravan_phase_duration_seconds",
		Help:    "Pipeline phase wall time",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"phase"})

	// ValidationFindings counts validator errors and warnings by family
	ValidationFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caravan_validation_findings_total",
		Help: "Validation findings by check family and severity",
	}, []string{"check", "severity"})
)

// ObservePhase records one phase's duration
func ObservePhase(phase string, start time.Time) {
	PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled. Errors are
// logged, not returned: metrics must never take a migration down.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger := log.WithComponent("metrics")
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}
