// Package loader batches and caches keyed lookups for the lifetime of one
// request. Loads register keys and hand back thunks; the first thunk that is
// resolved fetches every key collected so far with a single call to the batch
// function.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BatchFunc fetches values for keys. It must return exactly one value per key
// in the same order as keys.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

var (
	// ErrBatchFetchFailed is matched by every error produced by a failed batch.
	ErrBatchFetchFailed = errors.New("batch fetch failed")
	// ErrResultCount reports a batch function that returned the wrong number of values.
	ErrResultCount = errors.New("result count does not match key count")
)

// BatchError is delivered to every key of a batch that failed.
type BatchError struct {
	Loader string
	Keys   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("loader %s: batch of %d keys: %v", e.Loader, e.Keys, e.Err)
}

func (e *BatchError) Unwrap() []error {
	return []error{ErrBatchFetchFailed, e.Err}
}

// Observer receives batch and cache events, e.g. for metrics.
type Observer interface {
	ObserveBatch(loader string, keys int, err error)
	ObserveCacheHit(loader string)
}

// Stats summarises the activity of a loader.
type Stats struct {
	Batches   int
	Keys      int
	CacheHits int
	Failures  int
}

type settings struct {
	name     string
	wait     time.Duration
	observer Observer
}

// Option configures a Loader.
type Option func(*settings)

// WithName labels the loader in errors and observer events.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithWait dispatches a pending batch after d even if no thunk has been
// resolved. Zero disables the timer.
func WithWait(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.wait = d
		}
	}
}

// WithObserver reports batch and cache events to o.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

type entry[K comparable, V any] struct {
	done  chan struct{}
	value V
	err   error
	batch *batch[K, V]
}

type batch[K comparable, V any] struct {
	keys       []K
	entries    []*entry[K, V]
	timer      *time.Timer
	dispatched bool
}

// Loader is a request-scoped batching cache. The zero value is not usable;
// construct with New.
type Loader[K comparable, V any] struct {
	ctx   context.Context
	fetch BatchFunc[K, V]
	cfg   settings

	mu      sync.Mutex
	cache   map[K]*entry[K, V]
	pending *batch[K, V]
	stats   Stats
}

// New builds a loader bound to ctx. Batches are fetched with ctx and never
// issued once ctx is done.
func New[K comparable, V any](ctx context.Context, fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	cfg := settings{name: "loader", observer: noopObserver{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader[K, V]{
		ctx:   ctx,
		fetch: fetch,
		cfg:   cfg,
		cache: make(map[K]*entry[K, V]),
	}
}

// Name returns the loader label.
func (l *Loader[K, V]) Name() string { return l.cfg.name }

// Load resolves a single key, dispatching the pending batch if needed.
func (l *Loader[K, V]) Load(key K) (V, error) {
	return l.LoadThunk(key)()
}

// LoadThunk registers key and returns a function that resolves it. Resolving
// any thunk of a batch fetches the whole batch.
func (l *Loader[K, V]) LoadThunk(key K) func() (V, error) {
	l.mu.Lock()
	e, ok := l.cache[key]
	if ok {
		l.stats.CacheHits++
		l.mu.Unlock()
		l.cfg.observer.ObserveCacheHit(l.cfg.name)
		return func() (V, error) { return l.await(e) }
	}
	e = &entry[K, V]{done: make(chan struct{})}
	l.cache[key] = e
	b := l.pending
	if b == nil {
		b = &batch[K, V]{}
		l.pending = b
		if l.cfg.wait > 0 {
			b.timer = time.AfterFunc(l.cfg.wait, func() { l.dispatch(b) })
		}
	}
	b.keys = append(b.keys, key)
	b.entries = append(b.entries, e)
	e.batch = b
	l.mu.Unlock()
	return func() (V, error) { return l.await(e) }
}

// LoadAll resolves keys in order. The first failing key aborts the call.
func (l *Loader[K, V]) LoadAll(keys []K) ([]V, error) {
	return l.LoadAllThunk(keys)()
}

// LoadAllThunk registers every key before returning, so they share a batch.
func (l *Loader[K, V]) LoadAllThunk(keys []K) func() ([]V, error) {
	thunks := make([]func() (V, error), len(keys))
	for i, key := range keys {
		thunks[i] = l.LoadThunk(key)
	}
	return func() ([]V, error) {
		out := make([]V, len(thunks))
		for i, thunk := range thunks {
			v, err := thunk()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

// Prime stores value for key unless the key is already known. It reports
// whether the cache changed.
func (l *Loader[K, V]) Prime(key K, value V) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[key]; ok {
		return false
	}
	e := &entry[K, V]{done: make(chan struct{}), value: value}
	close(e.done)
	l.cache[key] = e
	return true
}

// Clear forgets key so the next load fetches it again. A key still waiting
// in the pending batch is kept; that batch has not read the store yet.
func (l *Loader[K, V]) Clear(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.cache[key]; ok && e.batch != nil && !e.batch.dispatched {
		return
	}
	delete(l.cache, key)
}

// Flush fetches the pending batch, if any, and waits for it.
func (l *Loader[K, V]) Flush() {
	l.mu.Lock()
	b := l.pending
	l.mu.Unlock()
	if b != nil {
		l.dispatch(b)
	}
}

// Stats returns a snapshot of the loader counters.
func (l *Loader[K, V]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loader[K, V]) await(e *entry[K, V]) (V, error) {
	select {
	case <-e.done:
		return e.value, e.err
	default:
	}
	if e.batch != nil {
		l.dispatch(e.batch)
	}
	select {
	case <-e.done:
		return e.value, e.err
	case <-l.ctx.Done():
		var zero V
		return zero, l.ctx.Err()
	}
}

// dispatch runs b at most once, in the calling goroutine.
func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	l.mu.Lock()
	if b.dispatched {
		l.mu.Unlock()
		return
	}
	b.dispatched = true
	if l.pending == b {
		l.pending = nil
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	l.mu.Unlock()

	if err := l.ctx.Err(); err != nil {
		l.abandon(b, err)
		return
	}
	values, err := l.call(b.keys)
	if err == nil && len(values) != len(b.keys) {
		err = fmt.Errorf("%w: got %d values for %d keys", ErrResultCount, len(values), len(b.keys))
	}

	l.mu.Lock()
	l.stats.Batches++
	l.stats.Keys += len(b.keys)
	if err != nil {
		l.stats.Failures++
	}
	l.mu.Unlock()
	l.cfg.observer.ObserveBatch(l.cfg.name, len(b.keys), err)

	if err != nil {
		batchErr := &BatchError{Loader: l.cfg.name, Keys: len(b.keys), Err: err}
		for _, e := range b.entries {
			e.err = batchErr
			close(e.done)
		}
		return
	}
	for i, e := range b.entries {
		e.value = values[i]
		close(e.done)
	}
}

func (l *Loader[K, V]) call(keys []K) (values []V, err error) {
	defer func() {
		if r := recover(); r != nil {
			values, err = nil, fmt.Errorf("batch function panicked: %v", r)
		}
	}()
	return l.fetch(l.ctx, keys)
}

// abandon fails every key of b with the context error and evicts them.
func (l *Loader[K, V]) abandon(b *batch[K, V], err error) {
	l.mu.Lock()
	for i, key := range b.keys {
		if l.cache[key] == b.entries[i] {
			delete(l.cache, key)
		}
	}
	l.mu.Unlock()
	for _, e := range b.entries {
		e.err = err
		close(e.done)
	}
}

type noopObserver struct{}

func (noopObserver) ObserveBatch(string, int, error) {}
func (noopObserver) ObserveCacheHit(string)          {}
