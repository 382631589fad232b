package metrics

import (
	"context"

	"pushlytics/api/analytics"
)

// Sink records engine notifications as Prometheus metrics.
type Sink struct{}

var _ analytics.Sink = Sink{}

func (Sink) AnalysisCompleted(_ context.Context, ev analytics.AnalysisEvent) {
	backend := ev.Backend
	if backend == "" {
		backend = "none"
	}
	RecordAnalysis(string(ev.Kind), backend, ev.Duration)
}

func (Sink) BackendFallback(_ context.Context, kind analytics.AnalysisKind, from, to string, _ error) {
	BackendFallbacks.WithLabelValues(string(kind), from, to).Inc()
}

func (Sink) AnalysisFailed(_ context.Context, kind analytics.AnalysisKind, _ error) {
	AnalysisFailures.WithLabelValues(string(kind)).Inc()
}

func (Sink) BreakerStateChanged(name, _, to string) {
	BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}
