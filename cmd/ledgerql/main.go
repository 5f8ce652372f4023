// Command ledgerql serves the accounting ledger over GraphQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledgerql/internal/adapters/exports"
	"ledgerql/internal/adapters/gqlapi"
	"ledgerql/internal/blob"
	"ledgerql/internal/config"
	"ledgerql/internal/core"
	"ledgerql/internal/loader"
	"ledgerql/internal/logging"
	"ledgerql/internal/metrics"
	"ledgerql/pkg/domain"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerql:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool)) error {
	cfg, err := config.Load(args, lookup)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Startup finishes even when a signal arrives early; serve observes ctx.
	a, err := newApp(context.WithoutCancel(ctx), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close resources", zap.Error(err))
		}
	}()
	return a.serve(ctx)
}

// app wires the service graph for one process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   domain.PersistentStore
	svc     *core.Service
	metrics *metrics.Metrics
	expvar  *core.ExpvarMetricsRecorder
	trace   *os.File
	blobs   blob.Store
	exports *exports.Worker
	handler http.Handler
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:          core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:      cfg.Storage.SQLitePath,
		PostgresDSN:     cfg.Storage.PostgresDSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, metrics: metrics.New()}
	opts, err := a.serviceOptions()
	if err != nil {
		return nil, multierror.Append(err, a.Close())
	}
	a.svc = core.NewService(store, opts...)
	if cfg.Seed {
		n, err := a.svc.SeedCatalogs(ctx)
		if err != nil {
			return nil, multierror.Append(fmt.Errorf("seed catalogs: %w", err), a.Close())
		}
		logger.Info("reference catalogs seeded", zap.Int("inserted", n))
	}

	a.blobs, err = blob.Open(ctx, cfg.Blob, "")
	if err != nil {
		return nil, multierror.Append(fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err), a.Close())
	}
	a.exports = exports.NewWorker(a.svc, a.blobs,
		exports.WithLogger(logger.Named("exports")),
		exports.WithQueueSize(cfg.Exports.QueueSize),
		exports.WithRetention(cfg.Exports.Retain),
		exports.WithObserver(a.metrics),
		exports.WithPresignExpiry(cfg.Blob.PresignExpiry.Duration()),
	)

	schema, err := gqlapi.NewSchema(a.svc, a.exports)
	if err != nil {
		return nil, multierror.Append(fmt.Errorf("build graphql schema: %w", err), a.Close())
	}
	gql := gqlapi.NewHandler(schema, a.svc,
		gqlapi.WithLogger(logger.Named("graphql")),
		gqlapi.WithTimeout(cfg.HTTP.RequestTimeout.Duration()),
		gqlapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		gqlapi.WithLoaderOptions(
			loader.WithObserver(a.metrics),
			loader.WithWait(cfg.Loader.Wait.Duration()),
		),
	)
	a.handler = a.routes(gql, exports.NewHandler(a.exports, logger.Named("exports")))
	return a, nil
}

// serviceOptions picks the operation recorder and the optional trace and
// audit sinks named by the observability config.
func (a *app) serviceOptions() ([]core.Option, error) {
	obs := a.cfg.Observability
	var recorder core.MetricsRecorder = a.metrics
	if obs.MetricsBackend == config.MetricsExpvar {
		a.expvar = core.NewExpvarMetricsRecorder("")
		recorder = a.expvar
	}
	opts := []core.Option{
		core.WithLogger(logging.NewAdapter(a.logger.Named("core"))),
		core.WithMetricsRecorder(recorder),
	}
	if obs.TraceFile != "" {
		f, err := os.OpenFile(obs.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.trace = f
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	if obs.Audit {
		opts = append(opts, core.WithAuditRecorder(logging.NewAuditRecorder(a.logger.Named("audit"))))
	}
	return opts, nil
}

func (a *app) routes(gql, exportsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/graphql", a.metrics.InstrumentHandler("/graphql", gql))
	mux.Handle("/api/v1/exports", a.metrics.InstrumentHandler("/api/v1/exports", exportsHandler))
	mux.Handle("/api/v1/exports/", a.metrics.InstrumentHandler("/api/v1/exports", exportsHandler))
	mux.Handle("GET /metrics", a.metrics.Handler())
	if a.expvar != nil {
		mux.Handle("GET /debug/vars", expvar.Handler())
	}
	mux.HandleFunc("GET /healthz", a.health)
	return logging.AccessLog(a.logger.Named("http"))(mux)
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if err := a.svc.Ping(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// serve runs the HTTP server and the export worker until ctx is done or
// one of them fails, then shuts both down.
func (a *app) serve(ctx context.Context) error {
	grace := a.cfg.HTTP.ShutdownTimeout.Duration()
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.exports.Run(gctx, grace)
	})
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", srv.Addr), zap.String("storage", a.cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the store and the trace file. It is safe to call on a partially built app.
func (a *app) Close() error {
	var result *multierror.Error
	if a.exports != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout.Duration())
		if err := a.exports.Stop(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop exports: %w", err))
		}
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	if a.trace != nil {
		if err := a.trace.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close trace file: %w", err))
		}
		a.trace = nil
	}
	return result.ErrorOrNil()
}
