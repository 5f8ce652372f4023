package gqlapi

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ledgerql/internal/core"
	"ledgerql/internal/infra/persistence/sqlite"
	"ledgerql/internal/loader"

	"github.com/graphql-go/graphql"
)

const ventasID = "6f1c1f52-8d2e-4d8e-9a57-0d3c6f0a1b2c"

func newService(t *testing.T) *core.Service {
	t.Helper()
	store, err := sqlite.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return core.NewService(store)
}

func newHandler(t *testing.T, svc *core.Service, queue ExportQueue, opts ...HandlerOption) *Handler {
	t.Helper()
	schema, err := NewSchema(svc, queue)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return NewHandler(schema, svc, opts...)
}

func seedLibrary(t *testing.T, svc *core.Service) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"Ocampo", "Borges", "Cortazar"} {
		if out, err := svc.AddAuthor(ctx, name); err != nil || !out.OK() {
			t.Fatalf("add author %s: %v %v", name, out.Problem, err)
		}
	}
	for _, b := range []struct{ name, author string }{
		{"Ficciones", "Borges"},
		{"El Aleph", "Borges"},
		{"Rayuela", "Cortazar"},
	} {
		author := b.author
		if out, err := svc.AddBook(ctx, b.name, &author); err != nil || !out.OK() {
			t.Fatalf("add book %s: %v %v", b.name, out.Problem, err)
		}
	}
}

// seedLedger creates one document type with two documents (each with its
// generated accounting entry) plus the "Ventas" entry with two lines.
func seedLedger(t *testing.T, svc *core.Service) (typeID int64, documentIDs []string) {
	t.Helper()
	ctx := context.Background()
	code := "001"
	dt, err := svc.AddDocumentType(ctx, "Factura A", &code)
	if err != nil || !dt.OK() {
		t.Fatalf("add document type: %v %v", dt.Problem, err)
	}
	issued := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		doc, err := svc.AddDocument(ctx, core.DocumentInput{
			Issuance:   issued.AddDate(0, 0, i),
			Settlement: issued.AddDate(0, 1, i),
			TypeID:     dt.Value.ID,
		})
		if err != nil || !doc.OK() {
			t.Fatalf("add document: %v %v", doc.Problem, err)
		}
		documentIDs = append(documentIDs, doc.Value.ID)
	}
	id := ventasID
	if out, err := svc.AddAccountingEntry(ctx, &id, "Ventas"); err != nil || !out.OK() {
		t.Fatalf("add entry: %v %v", out.Problem, err)
	}
	for _, column := range []string{"D", "H"} {
		if out, err := svc.AddAccountingEntryDetail(ctx, ventasID, "100.50", column); err != nil || !out.OK() {
			t.Fatalf("add detail: %v %v", out.Problem, err)
		}
	}
	return dt.Value.ID, documentIDs
}

type gqlError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions"`
}

func (e gqlError) code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// decode round-trips result through JSON so assertions see what clients see.
func decode(t *testing.T, result *graphql.Result, data any) gqlResponse {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var resp gqlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if data != nil && len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatalf("unmarshal data %s: %v", resp.Data, err)
		}
	}
	return resp
}

func requireNoErrors(t *testing.T, resp gqlResponse) {
	t.Helper()
	if len(resp.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
}

type batchRecorder struct {
	mu      sync.Mutex
	batches map[string][]int
	hits    map[string]int
	failed  map[string]int
}

var _ loader.Observer = (*batchRecorder)(nil)

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{batches: map[string][]int{}, hits: map[string]int{}, failed: map[string]int{}}
}

func (r *batchRecorder) ObserveBatch(name string, keys int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[name] = append(r.batches[name], keys)
	if err != nil {
		r.failed[name]++
	}
}

func (r *batchRecorder) ObserveCacheHit(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[name]++
}

func (r *batchRecorder) batchSizes(name string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.batches[name]...)
}

func (r *batchRecorder) cacheHits(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[name]
}
