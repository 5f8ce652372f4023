package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledgerql/internal/core"
	"ledgerql/internal/loader"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	_ core.MetricsRecorder = (*Metrics)(nil)
	_ loader.Observer      = (*Metrics)(nil)
)

func TestObserveRecordsOperations(t *testing.T) {
	m := New()
	m.Observe(context.Background(), "add_author", true, 5*time.Millisecond)
	m.Observe(context.Background(), "add_author", false, time.Millisecond)
	m.Observe(context.Background(), "add_author", true, time.Millisecond)

	if got := testutil.CollectAndCount(m.OperationDuration); got != 2 {
		t.Fatalf("expected two label sets, got %d", got)
	}
}

func TestLoaderObserver(t *testing.T) {
	m := New()
	m.ObserveBatch("booksByAuthor", 3, nil)
	m.ObserveBatch("booksByAuthor", 2, errors.New("boom"))
	m.ObserveCacheHit("booksByAuthor")
	m.ObserveCacheHit("booksByAuthor")

	if got := testutil.ToFloat64(m.LoaderBatches.WithLabelValues("booksByAuthor", "success")); got != 1 {
		t.Fatalf("expected one successful batch, got %v", got)
	}
	if got := testutil.ToFloat64(m.LoaderBatches.WithLabelValues("booksByAuthor", "error")); got != 1 {
		t.Fatalf("expected one failed batch, got %v", got)
	}
	if got := testutil.ToFloat64(m.LoaderKeys.WithLabelValues("booksByAuthor")); got != 5 {
		t.Fatalf("expected five keys, got %v", got)
	}
	if got := testutil.ToFloat64(m.LoaderCacheHits.WithLabelValues("booksByAuthor")); got != 2 {
		t.Fatalf("expected two cache hits, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveExport("csv", "completed")
	instrumented := m.InstrumentHandler("/graphql", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	instrumented.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/graphql", "418")); got != 1 {
		t.Fatalf("expected one instrumented request, got %v", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"ledgerql_exports_jobs_total", "ledgerql_http_requests_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in scrape output", name)
		}
	}
}
