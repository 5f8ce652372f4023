// Package blob selects the object store backing ledger exports.
package blob

import (
	"context"
	"fmt"
	"net/url"

	"ledgerql/internal/config"
	"ledgerql/internal/infra/blob/core"
	"ledgerql/internal/infra/blob/fs"
	"ledgerql/internal/infra/blob/memory"
	"ledgerql/internal/infra/blob/s3"
)

type (
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Driver           = core.Driver
)

var (
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrUnsupported = core.ErrUnsupported
)

// Open builds the store named by cfg.Driver. publicBaseURL, when non-empty,
// is handed to the fs driver so it can return direct object URLs.
func Open(ctx context.Context, cfg config.BlobConfig, publicBaseURL string) (Store, error) {
	driver, err := core.ParseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	switch driver {
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		var opts []fs.Option
		if publicBaseURL != "" {
			base, err := url.Parse(publicBaseURL)
			if err != nil {
				return nil, fmt.Errorf("parse blob base url: %w", err)
			}
			opts = append(opts, fs.WithBaseURL(base))
		}
		store, err := fs.New(cfg.FSRoot, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
