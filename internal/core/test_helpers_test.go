package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ledgerql/internal/infra/persistence/sqlite"
	"ledgerql/pkg/domain"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(level, msg string) {
	c.mu.Lock()
	c.calls = append(c.calls, level+":"+msg)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record("d", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record("i", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record("w", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record("e", msg) }

func (c *captureLogger) has(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store, err := sqlite.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	base := []Option{WithIDGenerator(sequentialIDs())}
	return NewService(store, append(base, opts...)...)
}

func strPtr(s string) *string { return &s }

func mustAuthor(t *testing.T, svc *Service, name string) domain.Author {
	t.Helper()
	out, err := svc.AddAuthor(context.Background(), name)
	if err != nil || !out.OK() {
		t.Fatalf("add author %q: %v %v", name, out.Problem, err)
	}
	return out.Value
}

// failingStore reports every session as a backend failure.
type failingStore struct{ err error }

func (f failingStore) RunInTransaction(context.Context, func(domain.Transaction) error) error {
	return &domain.StoreError{Op: "begin", Err: f.err}
}

func (f failingStore) View(context.Context, func(domain.TransactionView) error) error {
	return &domain.StoreError{Op: "begin", Err: f.err}
}

func (f failingStore) Ping(context.Context) error { return &domain.StoreError{Op: "ping", Err: f.err} }
func (failingStore) Close() error                 { return nil }
