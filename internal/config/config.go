// Package config resolves the server configuration.
//
// Sources are applied in order, later ones winning:
//  1. built-in defaults
//  2. YAML file (-config flag or $LEDGERQL_CONFIG)
//  3. LEDGERQL_* environment variables
//  4. command line flags that were explicitly set
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEDGERQL_"

// Config is the full server configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Log     LogConfig     `yaml:"log"`
	Loader  LoaderConfig  `yaml:"loader"`
	Exports ExportsConfig `yaml:"exports"`
	// Observability picks the service recorder and optional trace and audit sinks.
	Observability ObservabilityConfig `yaml:"observability"`
	// Seed loads the default reference catalogs on startup.
	Seed bool `yaml:"seed"`
}

type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
}

type StorageConfig struct {
	Driver          string   `yaml:"driver"`
	SQLitePath      string   `yaml:"sqlite_path"`
	PostgresDSN     string   `yaml:"postgres_dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

type BlobConfig struct {
	Driver        string   `yaml:"driver"`
	FSRoot        string   `yaml:"fs_root"`
	S3Bucket      string   `yaml:"s3_bucket"`
	S3Region      string   `yaml:"s3_region"`
	S3Endpoint    string   `yaml:"s3_endpoint"`
	S3PathStyle   bool     `yaml:"s3_path_style"`
	PresignExpiry Duration `yaml:"presign_expiry"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoaderConfig tunes the request-scoped relationship loaders. A zero Wait
// flushes on first resolution only.
type LoaderConfig struct {
	Wait Duration `yaml:"wait"`
}

type ExportsConfig struct {
	QueueSize int `yaml:"queue_size"`
	// Retain caps how many finished export records stay queryable.
	Retain int `yaml:"retain"`
}

// Metrics backends for service operation timings.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

type ObservabilityConfig struct {
	MetricsBackend string `yaml:"metrics_backend"`
	// TraceFile receives one JSON line per service operation when set.
	TraceFile string `yaml:"trace_file"`
	Audit     bool   `yaml:"audit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RequestTimeout:  Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "./ledgerql.db",
		},
		Blob: BlobConfig{
			Driver:        "fs",
			FSRoot:        "./ledgerql-blobs",
			S3Region:      "us-east-1",
			PresignExpiry: Duration(15 * time.Minute),
		},
		Log:           LogConfig{Level: "info", Format: "json"},
		Exports:       ExportsConfig{QueueSize: 16, Retain: 256},
		Observability: ObservabilityConfig{MetricsBackend: MetricsPrometheus},
	}
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load resolves the configuration for a process invocation. args excludes the
// program name; lookup is usually os.LookupEnv.
func Load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	fs := flag.NewFlagSet("ledgerql", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	overrides := bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path, _ = lookup(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply(cfg)
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindFlags registers the command line overrides. Each flag is applied only
// when set, so unset flags never mask file or env values.
func bindFlags(fs *flag.FlagSet) map[string]func(*Config) {
	addr := fs.String("addr", "", "HTTP listen address")
	driver := fs.String("storage", "", "storage driver: memory, sqlite or postgres")
	sqlitePath := fs.String("sqlite-path", "", "SQLite database file")
	dsn := fs.String("postgres-dsn", "", "Postgres connection string")
	blobDriver := fs.String("blob", "", "blob driver: fs, s3 or memory")
	level := fs.String("log-level", "", "log level")
	format := fs.String("log-format", "", "log format: json or console")
	wait := fs.Duration("loader-wait", 0, "relationship loader collection window")
	seed := fs.Bool("seed", false, "load default reference catalogs on startup")
	metricsBackend := fs.String("metrics-backend", "", "service metrics backend: prometheus or expvar")
	traceFile := fs.String("trace-file", "", "append service operation spans as JSON lines to this file")

	return map[string]func(*Config){
		"addr":            func(c *Config) { c.HTTP.Addr = *addr },
		"storage":         func(c *Config) { c.Storage.Driver = *driver },
		"sqlite-path":     func(c *Config) { c.Storage.SQLitePath = *sqlitePath },
		"postgres-dsn":    func(c *Config) { c.Storage.PostgresDSN = *dsn },
		"blob":            func(c *Config) { c.Blob.Driver = *blobDriver },
		"log-level":       func(c *Config) { c.Log.Level = *level },
		"log-format":      func(c *Config) { c.Log.Format = *format },
		"loader-wait":     func(c *Config) { c.Loader.Wait = Duration(*wait) },
		"seed":            func(c *Config) { c.Seed = *seed },
		"metrics-backend": func(c *Config) { c.Observability.MetricsBackend = *metricsBackend },
		"trace-file":      func(c *Config) { c.Observability.TraceFile = *traceFile },
	}
}

type envBinding struct {
	name string
	set  func(*Config, string) error
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func durationVar(dst func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = Duration(d)
		return nil
	}
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"HTTP_ADDR", stringVar(func(c *Config) *string { return &c.HTTP.Addr })},
	{"HTTP_REQUEST_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.HTTP.RequestTimeout })},
	{"HTTP_SHUTDOWN_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.HTTP.ShutdownTimeout })},
	{"HTTP_MAX_BODY_BYTES", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.HTTP.MaxBodyBytes = n
		return nil
	}},
	{"STORAGE_DRIVER", stringVar(func(c *Config) *string { return &c.Storage.Driver })},
	{"SQLITE_PATH", stringVar(func(c *Config) *string { return &c.Storage.SQLitePath })},
	{"POSTGRES_DSN", stringVar(func(c *Config) *string { return &c.Storage.PostgresDSN })},
	{"STORAGE_MAX_OPEN_CONNS", intVar(func(c *Config) *int { return &c.Storage.MaxOpenConns })},
	{"STORAGE_CONN_MAX_LIFETIME", durationVar(func(c *Config) *Duration { return &c.Storage.ConnMaxLifetime })},
	{"BLOB_DRIVER", stringVar(func(c *Config) *string { return &c.Blob.Driver })},
	{"BLOB_FS_ROOT", stringVar(func(c *Config) *string { return &c.Blob.FSRoot })},
	{"BLOB_S3_BUCKET", stringVar(func(c *Config) *string { return &c.Blob.S3Bucket })},
	{"BLOB_S3_REGION", stringVar(func(c *Config) *string { return &c.Blob.S3Region })},
	{"BLOB_S3_ENDPOINT", stringVar(func(c *Config) *string { return &c.Blob.S3Endpoint })},
	{"BLOB_S3_PATH_STYLE", boolVar(func(c *Config) *bool { return &c.Blob.S3PathStyle })},
	{"BLOB_PRESIGN_EXPIRY", durationVar(func(c *Config) *Duration { return &c.Blob.PresignExpiry })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Log.Format })},
	{"LOADER_WAIT", durationVar(func(c *Config) *Duration { return &c.Loader.Wait })},
	{"EXPORTS_QUEUE_SIZE", intVar(func(c *Config) *int { return &c.Exports.QueueSize })},
	{"EXPORTS_RETAIN", intVar(func(c *Config) *int { return &c.Exports.Retain })},
	{"METRICS_BACKEND", stringVar(func(c *Config) *string { return &c.Observability.MetricsBackend })},
	{"TRACE_FILE", stringVar(func(c *Config) *string { return &c.Observability.TraceFile })},
	{"AUDIT", boolVar(func(c *Config) *bool { return &c.Observability.Audit })},
	{"SEED", boolVar(func(c *Config) *bool { return &c.Seed })},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range envBindings {
		raw, ok := lookup(EnvPrefix + b.name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := b.set(cfg, strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("http.request_timeout must be positive"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "memory":
	case "fs":
		if strings.TrimSpace(c.Blob.FSRoot) == "" {
			errs = append(errs, errors.New("blob.fs_root is required for the fs driver"))
		}
	case "s3":
		if strings.TrimSpace(c.Blob.S3Bucket) == "" {
			errs = append(errs, errors.New("blob.s3_bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.Loader.Wait < 0 {
		errs = append(errs, errors.New("loader.wait must not be negative"))
	}
	if c.Exports.QueueSize <= 0 {
		errs = append(errs, errors.New("exports.queue_size must be positive"))
	}
	if c.Exports.Retain <= 0 {
		errs = append(errs, errors.New("exports.retain must be positive"))
	}
	switch c.Observability.MetricsBackend {
	case MetricsPrometheus, MetricsExpvar:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Observability.MetricsBackend))
	}
	return errors.Join(errs...)
}
