package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	mu      sync.Mutex
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.mu.Lock()
	c.started = append(c.started, op)
	c.mu.Unlock()
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
	s.tracer.mu.Unlock()
}

func TestServiceObservabilityHooks(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	log := &captureLogger{}
	svc := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(log))

	if _, err := svc.AddAuthor(ctx, "Borges"); err != nil {
		t.Fatalf("add author: %v", err)
	}
	if _, err := svc.AddAuthor(ctx, "Borges"); err != nil {
		t.Fatalf("add author: %v", err)
	}
	if _, err := svc.Authors(ctx); err != nil {
		t.Fatalf("authors: %v", err)
	}

	if !audit.has("add_author", AuditStatusSuccess) || !audit.has("add_author", AuditStatusRejected) {
		t.Fatalf("expected success and rejected audit entries, got %+v", audit.entries)
	}
	if !metrics.has("add_author", true) || !metrics.has("list_authors", true) {
		t.Fatalf("expected successful metrics, got %+v", metrics.calls)
	}
	if len(tracer.started) != 3 || len(tracer.ended) != 3 {
		t.Fatalf("expected one span per operation, got %v / %v", tracer.started, tracer.ended)
	}
	if !log.has("i:mutation rejected") || !log.has("d:service operation completed") {
		t.Fatalf("expected rejection and completion logs, got %v", log.calls)
	}
}

func TestServiceOptionsIgnoreNil(t *testing.T) {
	svc := NewService(failingStore{}, WithLogger(nil), WithClock(nil), WithMetricsRecorder(nil), WithTracer(nil), WithAuditRecorder(nil), WithIDGenerator(nil))
	if svc.logger == nil || svc.clock == nil || svc.metrics == nil || svc.tracer == nil || svc.audit == nil || svc.newID == nil {
		t.Fatalf("expected defaults to survive nil options")
	}
	if id := svc.newID(); len(id) != 36 {
		t.Fatalf("expected uuid default generator, got %q", id)
	}
	fixed := time.Unix(123, 0).UTC()
	svc = NewService(failingStore{}, WithClock(ClockFunc(func() time.Time { return fixed })))
	if !svc.now().Equal(fixed) {
		t.Fatalf("expected clock override")
	}
}

func TestNoopLogger(_ *testing.T) {
	logger := noopLogger{}
	logger.Debug("debug", "key", "value")
	logger.Info("info", "key", "value")
	logger.Warn("warn", "key", "value")
	logger.Error("error", "key", "value")
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "add_author", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "add_author", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	snap := rec.Snapshot()
	totals := snap.Operations["add_author"]
	if totals.Success != 1 || totals.Error != 1 || totals.DurationMS != 3 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if ops := rec.Operations(); len(ops) != 1 || ops[0] != "add_author" {
		t.Fatalf("unexpected operations %v", ops)
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), "add_author") {
		t.Fatalf("expected recorder to be published under %s", rec.Name())
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "add_book")
	span.End(errors.New("boom"))
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].Error != "boom" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.Operation != "add_book" {
		t.Fatalf("unexpected span %+v", decoded)
	}

	silent := NewJSONTracer(nil)
	_, span = silent.Start(context.Background(), "authors")
	span.End(nil)
	if got := silent.Entries(); len(got) != 1 || got[0].Status != "success" {
		t.Fatalf("expected retained span, got %+v", got)
	}
	for i := 0; i < maxRetainedSpans+5; i++ {
		_, span = silent.Start(context.Background(), "books")
		span.End(nil)
	}
	got := silent.Entries()
	if len(got) != maxRetainedSpans || got[0].Operation != "books" {
		t.Fatalf("expected %d most recent spans, got %d (first %q)", maxRetainedSpans, len(got), got[0].Operation)
	}
}
