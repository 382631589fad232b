// Package events publishes analysis notifications to Kafka.
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	kafka "github.com/segmentio/kafka-go"

	"pushlytics/api/analytics"
	"pushlytics/api/logging"
)

// Notification types carried in the "type" field of every message.
const (
	TypeAnalysisCompleted = "analysis.completed"
	TypeAnalysisFailed    = "analysis.failed"
	TypeBackendFallback   = "analysis.backend_fallback"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type notification struct {
	Type     string                   `json:"type"`
	Kind     analytics.AnalysisKind   `json:"kind"`
	Analysis *analytics.AnalysisEvent `json:"analysis,omitempty"`
	From     string                   `json:"from,omitempty"`
	To       string                   `json:"to,omitempty"`
	Error    string                   `json:"error,omitempty"`
	At       time.Time                `json:"at"`
}

// KafkaSink publishes engine notifications. Publishing is best effort: errors
// are logged and never reach the analysis caller.
type KafkaSink struct {
	w       messageWriter
	timeout time.Duration
	now     func() time.Time
}

var _ analytics.Sink = (*KafkaSink)(nil)

func NewKafkaSink(w *kafka.Writer, timeout time.Duration) *KafkaSink {
	return newKafkaSink(w, timeout)
}

func newKafkaSink(w messageWriter, timeout time.Duration) *KafkaSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &KafkaSink{w: w, timeout: timeout, now: time.Now}
}

func (s *KafkaSink) AnalysisCompleted(ctx context.Context, ev analytics.AnalysisEvent) {
	s.publish(ctx, ev.OrgID, notification{
		Type:     TypeAnalysisCompleted,
		Kind:     ev.Kind,
		Analysis: &ev,
		At:       ev.At,
	})
}

func (s *KafkaSink) BackendFallback(ctx context.Context, kind analytics.AnalysisKind, from, to string, err error) {
	s.publish(ctx, logging.OrgIDFromContext(ctx), notification{
		Type:  TypeBackendFallback,
		Kind:  kind,
		From:  from,
		To:    to,
		Error: errText(err),
		At:    s.now().UTC(),
	})
}

func (s *KafkaSink) AnalysisFailed(ctx context.Context, kind analytics.AnalysisKind, err error) {
	s.publish(ctx, logging.OrgIDFromContext(ctx), notification{
		Type:  TypeAnalysisFailed,
		Kind:  kind,
		Error: errText(err),
		At:    s.now().UTC(),
	})
}

// BreakerStateChanged is recorded by metrics and logs only.
func (s *KafkaSink) BreakerStateChanged(string, string, string) {}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}

// publish keys messages by organization so one org's notifications stay ordered.
// Sends outlive the caller's cancellation but not the sink timeout.
func (s *KafkaSink) publish(ctx context.Context, orgID string, n notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("type", n.Type).Msg("failed to encode analysis notification")
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(orgID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
	}
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "request_id", Value: []byte(rid)})
	}

	if err := s.w.WriteMessages(wctx, msg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", n.Type).Msg("failed to publish analysis notification")
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
