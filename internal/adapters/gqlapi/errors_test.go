package gqlapi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ledgerql/internal/adapters/exports"
	"ledgerql/internal/loader"
	"ledgerql/pkg/domain"

	"github.com/graphql-go/graphql/gqlerrors"
)

func TestClassify(t *testing.T) {
	storeErr := &domain.StoreError{Op: "query", Err: errors.New("boom")}
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"not found", domain.ErrNotFound{Entity: domain.EntityAuthor, ID: "1"}, CodeNotFound},
		{"export not found", exports.ErrNotFound, CodeNotFound},
		{"invalid", fmt.Errorf("wrapped: %w", domain.ErrInvalid{Field: "id", Reason: "bad"}), CodeInvalidInput},
		{"bad format", fmt.Errorf("%w: xml", exports.ErrUnsupportedFormat), CodeInvalidInput},
		{"conflict", domain.ErrConflict{Entity: domain.EntityBook, Field: "name", Value: "x"}, CodeConflict},
		{"store", storeErr, CodeStoreError},
		{"batch", &loader.BatchError{Loader: "l", Keys: 1, Err: storeErr}, CodeBatchFetchFailed},
		{"cancelled batch", &loader.BatchError{Loader: "l", Keys: 1, Err: context.Canceled}, CodeCancelled},
		{"deadline", fmt.Errorf("view: %w", context.DeadlineExceeded), CodeDeadlineExceeded},
		{"api error", &Error{Code: CodeConflict, Message: "x"}, CodeConflict},
		{"unknown", errors.New("surprise"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestWrapHidesBackendDetails(t *testing.T) {
	if wrap(nil) != nil {
		t.Fatal("wrap(nil) != nil")
	}
	cause := &domain.StoreError{Op: "query", Err: errors.New("password=secret")}
	err := wrap(cause)
	var api *Error
	if !errors.As(err, &api) || api.Code != CodeStoreError {
		t.Fatalf("wrap = %#v", err)
	}
	if api.Error() != "storage backend failure" {
		t.Fatalf("message = %q", api.Error())
	}
	if !errors.Is(err, domain.ErrStore) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if again := wrap(err); again != err {
		t.Fatal("wrap is not idempotent")
	}
	if got := wrap(errors.New("nil pointer")).Error(); got != "internal error" {
		t.Fatalf("internal message = %q", got)
	}
	if got := wrap(exports.ErrQueueFull).Error(); got != exports.ErrQueueFull.Error() {
		t.Fatalf("queue full message = %q", got)
	}
	invalid := wrap(domain.ErrInvalid{Field: "id", Reason: "not a number"})
	if invalid.Error() != "invalid id: not a number" {
		t.Fatalf("invalid message = %q", invalid.Error())
	}
	if ext := invalid.(*Error).Extensions(); ext["code"] != CodeInvalidInput {
		t.Fatalf("extensions = %v", ext)
	}
}

func TestAnnotateRestoresThunkExtensions(t *testing.T) {
	apiErr := wrap(&loader.BatchError{Loader: "books_by_author", Keys: 2, Err: errors.New("down")})
	// The shape graphql-go produces for a failed thunk under a non-null field.
	thunkPanic := gqlerrors.FormatError(apiErr)
	located := gqlerrors.NewLocatedError(thunkPanic, nil)
	formatted := []gqlerrors.FormattedError{
		gqlerrors.FormatError(located),
		gqlerrors.NewFormattedError("Cannot query field \"salary\" on type \"Author\"."),
		gqlerrors.FormatError(context.DeadlineExceeded),
	}
	if formatted[0].Extensions != nil {
		t.Fatalf("precondition: extensions already set: %v", formatted[0].Extensions)
	}

	causes := annotate(formatted)
	if len(causes) != 2 {
		t.Fatalf("causes = %v", causes)
	}
	if formatted[0].Extensions["code"] != CodeBatchFetchFailed {
		t.Fatalf("thunk error extensions = %v", formatted[0].Extensions)
	}
	if formatted[1].Extensions != nil {
		t.Fatalf("validation error extensions = %v", formatted[1].Extensions)
	}
	if formatted[2].Extensions["code"] != CodeDeadlineExceeded {
		t.Fatalf("deadline extensions = %v", formatted[2].Extensions)
	}
}
