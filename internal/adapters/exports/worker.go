// Package exports renders the ledger into downloadable artifacts on a
// background worker and serves them over HTTP.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledgerql/internal/core"
	blobcore "ledgerql/internal/infra/blob/core"
	"ledgerql/pkg/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Format is an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func (f Format) contentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Status is the lifecycle stage of an export.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// KeyPrefix is prepended to every artifact key in the blob store.
const KeyPrefix = "ledger-exports/"

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrQueueFull         = errors.New("export queue full")
	ErrStopped           = errors.New("export worker stopped")
	ErrNotFound          = errors.New("export not found")
)

// ParseFormats normalises and deduplicates the requested formats. An empty
// request exports both.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return []Format{FormatJSON, FormatCSV}, nil
	}
	seen := make(map[Format]struct{}, len(names))
	out := make([]Format, 0, len(names))
	for _, name := range names {
		f := Format(strings.ToLower(strings.TrimSpace(name)))
		if f != FormatCSV && f != FormatJSON {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// Artifact is one stored rendering of an export.
type Artifact struct {
	Format      Format    `json:"format"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks one export request.
type Record struct {
	ID          string     `json:"id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Entries     int        `json:"entries"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	r.Formats = append([]Format(nil), r.Formats...)
	r.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

// LedgerSource reads the full ledger.
type LedgerSource interface {
	Ledger(ctx context.Context) ([]core.LedgerEntry, error)
}

// Observer is told when a job reaches a terminal state.
type Observer interface {
	ObserveExport(format, state string)
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(w *Worker) { w.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(w *Worker) {
		if gen != nil {
			w.newID = gen
		}
	}
}

// WithRetention caps how many finished records Get can still return. The
// oldest finished records are dropped first; their artifacts stay in the
// blob store.
func WithRetention(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.retain = n
		}
	}
}

// WithPresignExpiry sets the lifetime of presigned artifact URLs.
func WithPresignExpiry(d time.Duration) Option {
	return func(w *Worker) { w.presignExpiry = d }
}

// WithDownloadBase sets the path used for artifact URLs when the blob store
// cannot presign. Defaults to DefaultDownloadBase.
func WithDownloadBase(base string) Option {
	return func(w *Worker) { w.downloadBase = strings.TrimSuffix(base, "/") }
}

// DefaultDownloadBase matches the route mounted by Handler.
const DefaultDownloadBase = "/api/v1/exports"

// Worker runs ledger exports one at a time off a bounded queue.
type Worker struct {
	source        LedgerSource
	store         blobcore.Store
	logger        *zap.Logger
	observer      Observer
	now           func() time.Time
	newID         func() string
	presignExpiry time.Duration
	downloadBase  string
	queueSize     int
	retain        int

	queue    chan string
	mu       sync.RWMutex
	jobs     map[string]*Record
	finished []string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  bool
}

// NewWorker builds a worker; call Start before enqueueing.
func NewWorker(source LedgerSource, store blobcore.Store, opts ...Option) *Worker {
	w := &Worker{
		source:       source,
		store:        store,
		logger:       zap.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
		downloadBase: DefaultDownloadBase,
		queueSize:    16,
		retain:       256,
		jobs:         make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan string, w.queueSize)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

// Start launches the processing goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Run starts the worker and blocks until ctx is done, then stops it with
// the given grace period. Suited to errgroup lifecycles.
func (w *Worker) Run(ctx context.Context, grace time.Duration) error {
	w.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return w.Stop(stopCtx)
}

// Stop cancels in-flight work and waits for the loop to exit. Jobs still
// queued are marked failed.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		w.cancel()
	})
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	for {
		select {
		case id := <-w.queue:
			w.fail(id, ErrStopped)
		default:
			return nil
		}
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue registers an export of the current ledger.
func (w *Worker) Enqueue(_ context.Context, formats []string) (Record, error) {
	parsed, err := ParseFormats(formats)
	if err != nil {
		return Record{}, err
	}
	now := w.now().UTC()
	record := &Record{
		ID:        w.newID(),
		Formats:   parsed,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return Record{}, ErrStopped
	}
	select {
	case w.queue <- record.ID:
	default:
		return Record{}, ErrQueueFull
	}
	w.jobs[record.ID] = record
	w.logger.Info("ledger export queued", zap.String("export_id", record.ID), zap.Int("formats", len(parsed)))
	return record.copy(), nil
}

// Get returns a snapshot of the record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Open streams a stored artifact.
func (w *Worker) Open(ctx context.Context, id string, format Format) (Artifact, io.ReadCloser, error) {
	record, ok := w.Get(id)
	if !ok {
		return Artifact{}, nil, ErrNotFound
	}
	for _, a := range record.Artifacts {
		if a.Format != format {
			continue
		}
		_, body, err := w.store.Get(ctx, a.Key)
		if err != nil {
			return Artifact{}, nil, err
		}
		return a, body, nil
	}
	return Artifact{}, nil, ErrNotFound
}

func (w *Worker) setStatus(id string, status Status) (Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	record.Status = status
	record.UpdatedAt = w.now().UTC()
	return record.copy(), true
}

func (w *Worker) process(id string) {
	record, ok := w.setStatus(id, StatusRunning)
	if !ok {
		return
	}
	ledger, err := w.source.Ledger(w.ctx)
	if err != nil {
		w.fail(id, fmt.Errorf("read ledger: %w", err))
		return
	}
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		artifact, err := w.persist(format, record.ID, ledger)
		if err != nil {
			w.fail(id, err)
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(id, len(ledger), artifacts)
}

func (w *Worker) persist(format Format, id string, ledger []core.LedgerEntry) (Artifact, error) {
	payload, err := Render(format, ledger)
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", format, err)
	}
	key := KeyPrefix + id + "." + string(format)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: format.contentType(),
		Metadata: map[string]string{
			"export-id": id,
			"format":    string(format),
			"entries":   strconv.Itoa(len(ledger)),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s artifact: %w", format, err)
	}
	url, err := w.store.PresignURL(w.ctx, key, blobcore.SignedURLOptions{Expiry: w.presignExpiry})
	if errors.Is(err, blobcore.ErrUnsupported) {
		url, err = w.downloadBase+"/"+id+"/"+string(format), nil
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact url: %w", err)
	}
	created := info.LastModified
	if created.IsZero() {
		created = w.now().UTC()
	}
	return Artifact{
		Format:      format,
		Key:         key,
		ContentType: format.contentType(),
		SizeBytes:   int64(len(payload)),
		URL:         url,
		CreatedAt:   created,
	}, nil
}

func (w *Worker) complete(id string, entries int, artifacts []Artifact) {
	now := w.now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Entries = entries
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		w.retire(id)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	for _, a := range artifacts {
		w.observe(a.Format, StatusSucceeded)
	}
	w.logger.Info("ledger export succeeded", zap.String("export_id", id), zap.Int("entries", entries), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id string, cause error) {
	now := w.now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var formats []Format
	if ok {
		record.Status = StatusFailed
		record.Error = cause.Error()
		record.UpdatedAt = now
		record.CompletedAt = &now
		formats = append(formats, record.Formats...)
		w.retire(id)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	for _, f := range formats {
		w.observe(f, StatusFailed)
	}
	w.logger.Error("ledger export failed", zap.String("export_id", id), zap.Error(cause))
}

// retire records id as finished and evicts the oldest finished records
// beyond the retention cap. Callers hold w.mu.
func (w *Worker) retire(id string) {
	w.finished = append(w.finished, id)
	for len(w.finished) > w.retain {
		delete(w.jobs, w.finished[0])
		w.finished = w.finished[1:]
	}
}

func (w *Worker) observe(format Format, status Status) {
	if w.observer != nil {
		w.observer.ObserveExport(string(format), string(status))
	}
}

type detailRow struct {
	ID      string `json:"id"`
	Amount  string `json:"amount"`
	Column  string `json:"column"`
	Created string `json:"created"`
}

type entryRow struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	DocumentID *string     `json:"document_id"`
	Created    string      `json:"created"`
	Debit      string      `json:"debit"`
	Credit     string      `json:"credit"`
	Details    []detailRow `json:"details"`
}

var csvHeader = []string{"entry_id", "entry_name", "document_id", "entry_created", "detail_id", "amount", "column", "detail_created"}

// Render encodes the ledger. JSON nests details under their entry with
// debit and credit totals; CSV emits one row per detail and a single row
// with empty detail columns for entries without lines.
func Render(format Format, ledger []core.LedgerEntry) ([]byte, error) {
	switch format {
	case FormatJSON:
		rows := make([]entryRow, 0, len(ledger))
		for _, le := range ledger {
			rows = append(rows, toEntryRow(le))
		}
		return json.MarshalIndent(rows, "", "  ")
	case FormatCSV:
		var buf bytes.Buffer
		cw := csv.NewWriter(&buf)
		if err := cw.Write(csvHeader); err != nil {
			return nil, err
		}
		for _, le := range ledger {
			row := toEntryRow(le)
			doc := ""
			if row.DocumentID != nil {
				doc = *row.DocumentID
			}
			prefix := []string{row.ID, row.Name, doc, row.Created}
			if len(row.Details) == 0 {
				if err := cw.Write(append(prefix, "", "", "", "")); err != nil {
					return nil, err
				}
				continue
			}
			for _, d := range row.Details {
				line := append(append([]string(nil), prefix...), d.ID, d.Amount, d.Column, d.Created)
				if err := cw.Write(line); err != nil {
					return nil, err
				}
			}
		}
		cw.Flush()
		return buf.Bytes(), cw.Error()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func toEntryRow(le core.LedgerEntry) entryRow {
	row := entryRow{
		ID:         le.Entry.ID,
		Name:       le.Entry.Name,
		DocumentID: le.Entry.DocumentID,
		Created:    le.Entry.Created.UTC().Format(time.RFC3339),
		Details:    make([]detailRow, 0, len(le.Details)),
	}
	details := append(le.Details[:0:0], le.Details...)
	sort.SliceStable(details, func(i, j int) bool { return details[i].Created.Before(details[j].Created) })
	var debit, credit domain.Amount
	for _, d := range details {
		switch d.Column {
		case domain.ColumnDebit:
			debit += d.Amount
		case domain.ColumnCredit:
			credit += d.Amount
		}
		row.Details = append(row.Details, detailRow{
			ID:      d.ID,
			Amount:  d.Amount.String(),
			Column:  string(d.Column),
			Created: d.Created.UTC().Format(time.RFC3339),
		})
	}
	row.Debit = debit.String()
	row.Credit = credit.String()
	return row
}
