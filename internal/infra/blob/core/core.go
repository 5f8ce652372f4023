// Package core defines the object store contract used for ledger export
// artifacts and the errors every backend maps its failures onto.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ParseDriver accepts the configured driver name.
func ParseDriver(name string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(name))); d {
	case DriverFilesystem, DriverS3, DriverMemory:
		return d, nil
	case "":
		return DriverFilesystem, nil
	default:
		return "", fmt.Errorf("unknown blob driver %q", name)
	}
}

// PutOptions carries the object content type and small user metadata.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// SignedURLOptions configures PresignURL. Only GET is supported.
type SignedURLOptions struct {
	Method string
	// Expiry defaults to DefaultPresignExpiry.
	Expiry time.Duration
}

// DefaultPresignExpiry applies when SignedURLOptions.Expiry is zero.
const DefaultPresignExpiry = 15 * time.Minute

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a minimal S3-like object store. Put is create-only; List is
// ordered by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns ErrUnsupported when the backend cannot hand out
	// direct URLs; callers then serve the object themselves.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	ErrUnsupported = errors.New("blob: unsupported operation")
	ErrNotFound    = errors.New("blob: not found")
	ErrExists      = errors.New("blob: already exists")
	ErrInvalidKey  = errors.New("blob: invalid key")
)

// KeyError attaches the object key to one of the sentinel errors.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.Key) }

func (e *KeyError) Unwrap() error { return e.Err }

// ValidateKey rejects empty, absolute and traversing keys.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return &KeyError{Key: key, Err: ErrInvalidKey}
	case strings.HasPrefix(key, "/"), strings.Contains(key, "\\"):
		return &KeyError{Key: key, Err: ErrInvalidKey}
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return &KeyError{Key: key, Err: ErrInvalidKey}
		}
	}
	return nil
}

// CloneMetadata copies m; nil stays nil.
func CloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
