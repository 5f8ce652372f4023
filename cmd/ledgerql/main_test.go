package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ledgerql/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	cfg.Seed = true
	a, err := newApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	a := newTestApp(t)

	if rec := do(t, a.handler, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec := do(t, a.handler, http.MethodPost, "/graphql", `{"query":"{ catalog(kind: \"taxes\") { description afipCode } }"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("graphql status = %d", rec.Code)
	}
	var resp struct {
		Data struct {
			Catalog []struct{ Description string }
		}
		Errors []json.RawMessage
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Errors) != 0 || len(resp.Data.Catalog) != 3 {
		t.Fatalf("seeded taxes = %+v (%s)", resp.Data.Catalog, rec.Body.String())
	}

	if rec := do(t, a.handler, http.MethodPost, "/api/v1/exports", `{"formats":["json"]}`); rec.Code != http.StatusAccepted {
		t.Fatalf("exports status = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, a.handler, http.MethodGet, "/api/v1/exports/unknown", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown export status = %d", rec.Code)
	}

	rec = do(t, a.handler, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	for _, want := range []string{
		`ledgerql_http_requests_total{code="200",path="/graphql"} 1`,
		`ledgerql_service_operation_duration_seconds_count{operation="seed_catalogs",status="success"} 1`,
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestExpvarTraceAndAudit(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	cfg.Seed = true
	cfg.Observability = config.ObservabilityConfig{
		MetricsBackend: config.MetricsExpvar,
		TraceFile:      filepath.Join(t.TempDir(), "spans.jsonl"),
		Audit:          true,
	}
	obsCore, logs := observer.New(zapcore.InfoLevel)
	a, err := newApp(context.Background(), cfg, zap.New(obsCore))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	rec := do(t, a.handler, http.MethodPost, "/graphql", `{"query":"mutation { addAuthor(name: \"Borges\") { __typename } }"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Author"`) {
		t.Fatalf("addAuthor = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, a.handler, http.MethodGet, "/debug/vars", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), a.expvar.Name()) || !strings.Contains(rec.Body.String(), "add_author") {
		t.Fatalf("debug vars = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, a.handler, http.MethodGet, "/metrics", "")
	if strings.Contains(rec.Body.String(), "ledgerql_service_operation_duration_seconds_count") {
		t.Fatalf("service timings should go to expvar only")
	}

	spans, err := os.ReadFile(cfg.Observability.TraceFile)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	for _, op := range []string{`"operation":"seed_catalogs"`, `"operation":"add_author"`} {
		if !strings.Contains(string(spans), op) {
			t.Fatalf("trace file missing %s:\n%s", op, spans)
		}
	}
	if got := logs.FilterMessage("mutation audit").FilterField(zap.String("operation", "add_author")).Len(); got != 1 {
		t.Fatalf("expected one audit line for add_author, got %d", got)
	}
}

func TestTraceFileErrorFailsStartup(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	cfg.Observability.TraceFile = filepath.Join(t.TempDir(), "missing", "spans.jsonl")
	if _, err := newApp(context.Background(), cfg, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "open trace file") {
		t.Fatalf("expected trace file error, got %v", err)
	}
}

func TestHealthReportsStoreFailure(t *testing.T) {
	a := newTestApp(t)
	if err := a.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	a.store = nil
	rec := do(t, a.handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	lookup := func(string) (string, bool) { return "", false }
	err := run(context.Background(), []string{"-storage", "bogus"}, lookup)
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("run = %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lookup := func(key string) (string, bool) {
		switch key {
		case config.EnvPrefix + "STORAGE_DRIVER":
			return "memory", true
		case config.EnvPrefix + "BLOB_DRIVER":
			return "memory", true
		case config.EnvPrefix + "HTTP_ADDR":
			return "127.0.0.1:0", true
		case config.EnvPrefix + "LOG_LEVEL":
			return "error", true
		}
		return "", false
	}
	done := make(chan error, 1)
	go func() { done <- run(ctx, nil, lookup) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
