package analytics

import (
	"context"
	"time"
)

// AnalysisKind names the analysis an event or metric refers to.
type AnalysisKind string

const (
	KindFunnel AnalysisKind = "funnel"
	KindCohort AnalysisKind = "cohort"
)

// AnalysisEvent describes one finished analysis.
type AnalysisEvent struct {
	Kind       AnalysisKind  `json:"kind"`
	OrgID      string        `json:"org_id"`
	SubjectID  string        `json:"subject_id"`
	QueryHash  string        `json:"query_hash"`
	Backend    string        `json:"backend"`
	TotalUsers int64         `json:"total_users"`
	Duration   time.Duration `json:"duration_ns"`
	At         time.Time     `json:"at"`
}

// Sink receives side-channel notifications from the engine. Implementations
// must not block the caller for long and must be safe for concurrent use.
type Sink interface {
	AnalysisCompleted(ctx context.Context, ev AnalysisEvent)
	BackendFallback(ctx context.Context, kind AnalysisKind, from, to string, err error)
	AnalysisFailed(ctx context.Context, kind AnalysisKind, err error)
	BreakerStateChanged(name, from, to string)
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) AnalysisCompleted(context.Context, AnalysisEvent)                     {}
func (NopSink) BackendFallback(context.Context, AnalysisKind, string, string, error) {}
func (NopSink) AnalysisFailed(context.Context, AnalysisKind, error)                  {}
func (NopSink) BreakerStateChanged(string, string, string)                           {}

// MultiSink fans notifications out to every sink in order.
type MultiSink []Sink

func (m MultiSink) AnalysisCompleted(ctx context.Context, ev AnalysisEvent) {
	for _, s := range m {
		s.AnalysisCompleted(ctx, ev)
	}
}

func (m MultiSink) BackendFallback(ctx context.Context, kind AnalysisKind, from, to string, err error) {
	for _, s := range m {
		s.BackendFallback(ctx, kind, from, to, err)
	}
}

func (m MultiSink) AnalysisFailed(ctx context.Context, kind AnalysisKind, err error) {
	for _, s := range m {
		s.AnalysisFailed(ctx, kind, err)
	}
}

func (m MultiSink) BreakerStateChanged(name, from, to string) {
	for _, s := range m {
		s.BreakerStateChanged(name, from, to)
	}
}
