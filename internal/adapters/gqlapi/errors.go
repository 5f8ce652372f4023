package gqlapi

import (
	"context"
	"errors"
	"fmt"

	"ledgerql/internal/adapters/exports"
	"ledgerql/internal/loader"
	"ledgerql/pkg/domain"

	"github.com/graphql-go/graphql/gqlerrors"
)

// Error codes reported under extensions.code.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeConflict         = "CONFLICT"
	CodeStoreError       = "STORE_ERROR"
	CodeBatchFetchFailed = "BATCH_FETCH_FAILED"
	CodeCancelled        = "CANCELLED"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error is a resolver failure carrying a client-facing code. It satisfies
// gqlerrors.ExtendedError.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Code}
}

var _ gqlerrors.ExtendedError = (*Error)(nil)

// Classify returns the code for err. Context errors win over batch failures
// so a cancelled request is not reported as a data problem.
func Classify(err error) string {
	var (
		nf   domain.ErrNotFound
		inv  domain.ErrInvalid
		conf domain.ErrConflict
		api  *Error
	)
	switch {
	case errors.As(err, &api):
		return api.Code
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, loader.ErrBatchFetchFailed):
		return CodeBatchFetchFailed
	case errors.As(err, &nf), errors.Is(err, exports.ErrNotFound):
		return CodeNotFound
	case errors.As(err, &inv), errors.Is(err, exports.ErrUnsupportedFormat):
		return CodeInvalidInput
	case errors.As(err, &conf):
		return CodeConflict
	case errors.Is(err, domain.ErrStore):
		return CodeStoreError
	default:
		return CodeInternal
	}
}

// wrap converts err into an *Error. Store and internal failures get a
// generic message; the cause stays reachable through Unwrap for logging.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var api *Error
	if errors.As(err, &api) {
		return api
	}
	code := Classify(err)
	msg := err.Error()
	switch code {
	case CodeStoreError:
		msg = "storage backend failure"
	case CodeInternal:
		if !errors.Is(err, exports.ErrQueueFull) && !errors.Is(err, exports.ErrStopped) && !errors.Is(err, errExportsDisabled) {
			msg = "internal error"
		}
	case CodeBatchFetchFailed:
		var be *loader.BatchError
		if errors.As(err, &be) {
			msg = fmt.Sprintf("loading %s failed", be.Loader)
		}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func invalidArg(name, reason string) error {
	return wrap(domain.ErrInvalid{Field: name, Reason: reason})
}

// origin digs the resolver error out of graphql-go's wrappers. Errors
// raised inside thunks reach the result as FormattedError{*Error{FormattedError{err}}}
// and lose their extensions on the way.
func origin(err error) error {
	for depth := 0; depth < 32 && err != nil; depth++ {
		switch e := err.(type) {
		case gqlerrors.FormattedError:
			err = e.OriginalError()
		case *gqlerrors.FormattedError:
			err = e.OriginalError()
		case *gqlerrors.Error:
			if e.OriginalError == nil {
				return e
			}
			err = e.OriginalError
		case gqlerrors.Error:
			if e.OriginalError == nil {
				return e
			}
			err = e.OriginalError
		default:
			return err
		}
	}
	return err
}

// annotate fills extensions.code on errors that lost it and returns the
// classified causes for logging.
func annotate(errs []gqlerrors.FormattedError) []error {
	var causes []error
	for i := range errs {
		cause := origin(errs[i])
		if cause == nil {
			continue
		}
		var api *Error
		ctxErr := errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
		if !errors.As(cause, &api) && !ctxErr {
			continue
		}
		code := Classify(cause)
		if errs[i].Extensions == nil {
			errs[i].Extensions = map[string]interface{}{}
		}
		errs[i].Extensions["code"] = code
		causes = append(causes, cause)
	}
	return causes
}
