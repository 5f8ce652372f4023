package gqlapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"ledgerql/internal/core"
	"ledgerql/internal/loader"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"go.uber.org/zap"
)

// Request is a GraphQL-over-HTTP request body.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}

// Handler serves GraphQL over HTTP. Every request gets its own loaders and
// a deadline.
type Handler struct {
	schema     graphql.Schema
	batcher    Batcher
	logger     *zap.Logger
	timeout    time.Duration
	maxBody    int64
	loaderOpts []loader.Option
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for failed operations.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTimeout bounds the execution of one request.
func WithTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithMaxBodyBytes limits the size of POST bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithLoaderOptions applies opts to every per-request loader.
func WithLoaderOptions(opts ...loader.Option) HandlerOption {
	return func(h *Handler) {
		h.loaderOpts = append(h.loaderOpts, opts...)
	}
}

// NewHandler serves schema with loaders fetching through svc.
func NewHandler(schema graphql.Schema, svc *core.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		schema:  schema,
		batcher: svc,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
		maxBody: 1 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute runs req against the schema with a fresh loader set.
func (h *Handler) Execute(ctx context.Context, req Request) *graphql.Result {
	loaders := NewLoaders(ctx, h.batcher, h.loaderOpts...)
	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        WithLoaders(ctx, loaders),
	})
	for _, cause := range annotate(result.Errors) {
		switch Classify(cause) {
		case CodeStoreError, CodeBatchFetchFailed, CodeInternal:
			h.logger.Error("graphql operation failed",
				zap.String("operation", req.OperationName),
				zap.String("code", Classify(cause)),
				zap.Error(errors.Unwrap(cause)))
		case CodeDeadlineExceeded, CodeCancelled:
			h.logger.Warn("graphql operation interrupted",
				zap.String("operation", req.OperationName),
				zap.Error(cause))
		}
	}
	return result
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		req Request
		err error
	)
	switch r.Method {
	case http.MethodGet:
		req, err = requestFromQuery(r)
		if err == nil && isMutation(req) {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "mutations require POST")
			return
		}
	case http.MethodPost:
		req, err = h.requestFromBody(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	result := h.Execute(ctx, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Warn("write graphql response", zap.Error(err))
	}
}

func requestFromQuery(r *http.Request) (Request, error) {
	q := r.URL.Query()
	req := Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
	if raw := q.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return Request{}, errors.New("variables must be a JSON object")
		}
	}
	return req, nil
}

func (h *Handler) requestFromBody(w http.ResponseWriter, r *http.Request) (Request, error) {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	defer body.Close()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/graphql" {
		raw, err := io.ReadAll(body)
		if err != nil {
			return Request{}, err
		}
		return Request{Query: string(raw)}, nil
	}
	var req Request
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Request{}, err
		}
		return Request{}, errors.New("invalid JSON payload")
	}
	return req, nil
}

// isMutation reports whether the selected operation of req is a mutation.
// Unparseable documents report false and fail later with a syntax error.
func isMutation(req Request) bool {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return false
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if req.OperationName != "" && (op.Name == nil || op.Name.Value != req.OperationName) {
			continue
		}
		if op.Operation == ast.OperationTypeMutation {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string][]gqlerrors.FormattedError{
		"errors": {gqlerrors.NewFormattedError(message)},
	})
}
