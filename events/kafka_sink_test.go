package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	kafka "github.com/segmentio/kafka-go"

	"pushlytics/api/analytics"
	"pushlytics/api/logging"
)

type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func decode(t *testing.T, m kafka.Message) notification {
	t.Helper()
	var n notification
	if err := json.Unmarshal(m.Value, &n); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	return n
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaSinkAnalysisCompleted(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, time.Second)

	at := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	ctx := logging.ContextWithRequestID(context.Background(), "req-1")
	sink.AnalysisCompleted(ctx, analytics.AnalysisEvent{
		Kind:       analytics.KindFunnel,
		OrgID:      "org-1",
		SubjectID:  "funnel-1",
		QueryHash:  "abc123",
		Backend:    "clickhouse",
		TotalUsers: 42,
		At:         at,
	})

	if len(w.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "org-1" {
		t.Errorf("key = %q, want org-1", msg.Key)
	}
	if got := header(msg, "type"); got != TypeAnalysisCompleted {
		t.Errorf("type header = %q", got)
	}
	if got := header(msg, "request_id"); got != "req-1" {
		t.Errorf("request_id header = %q, want req-1", got)
	}
	if !w.deadline {
		t.Error("write should carry a deadline")
	}

	n := decode(t, msg)
	if n.Analysis == nil || n.Analysis.TotalUsers != 42 || n.Analysis.Backend != "clickhouse" {
		t.Errorf("analysis payload = %+v", n.Analysis)
	}
	if !n.At.Equal(at) {
		t.Errorf("at = %v, want %v", n.At, at)
	}
}

func TestKafkaSinkFailureNotifications(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, time.Second)
	ctx := logging.ContextWithOrgID(context.Background(), "org-9")

	sink.BackendFallback(ctx, analytics.KindCohort, "clickhouse", "postgres", errors.New("timeout"))
	sink.AnalysisFailed(ctx, analytics.KindCohort, analytics.ErrAllBackendsFailed)
	sink.BreakerStateChanged("clickhouse", "closed", "open")

	if len(w.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(w.msgs))
	}

	fallback := decode(t, w.msgs[0])
	if fallback.Type != TypeBackendFallback || fallback.From != "clickhouse" || fallback.To != "postgres" || fallback.Error != "timeout" {
		t.Errorf("fallback notification = %+v", fallback)
	}
	failed := decode(t, w.msgs[1])
	if failed.Type != TypeAnalysisFailed || failed.Kind != analytics.KindCohort || failed.Error == "" {
		t.Errorf("failed notification = %+v", failed)
	}
	for _, m := range w.msgs {
		if string(m.Key) != "org-9" {
			t.Errorf("key = %q, want org-9", m.Key)
		}
	}
}

func TestKafkaSinkWriteErrorIsSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := newKafkaSink(w, 0)
	if sink.timeout != 2*time.Second {
		t.Errorf("default timeout = %v, want 2s", sink.timeout)
	}
	sink.AnalysisFailed(context.Background(), analytics.KindFunnel, errors.New("x"))
	if len(w.msgs) != 0 {
		t.Errorf("published %d messages, want 0", len(w.msgs))
	}
}

func TestKafkaSinkIgnoresCallerCancellation(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink.AnalysisCompleted(ctx, analytics.AnalysisEvent{Kind: analytics.KindFunnel, OrgID: "org-1"})
	if len(w.msgs) != 1 {
		t.Errorf("published %d messages, want 1", len(w.msgs))
	}
}

func TestKafkaSinkClose(t *testing.T) {
	w := &fakeWriter{}
	if err := newKafkaSink(w, time.Second).Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}
