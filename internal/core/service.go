// Package core implements the ledger operations exposed by the API. Every
// operation runs in its own store session; expected failures come back as
// Problems inside an Outcome rather than as errors.
package core

import (
	"context"
	"errors"
	"time"

	"ledgerql/pkg/domain"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// errRejected aborts a write session whose mutation produced a Problem.
var errRejected = errors.New("mutation rejected")

// Service exposes transactional ledger operations.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	newID   func() string
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		newID:   defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.run(ctx, "ping", s.store.Ping)
}

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	if err != nil {
		s.logger.Error("service operation failed", "operation", op, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Debug("service operation completed", "operation", op, "duration", elapsed)
	return nil
}

func (s *Service) view(ctx context.Context, op string, fn func(domain.TransactionView) error) error {
	return s.run(ctx, op, func(ctx context.Context) error {
		return s.store.View(ctx, fn)
	})
}

// mutate runs fn in a write session. A Problem rolls the session back and is
// returned inside the Outcome with a nil error.
func mutate[T any](ctx context.Context, s *Service, op string, fn func(domain.Transaction) (T, Problem, error), idOf func(T) string) (Outcome[T], error) {
	var (
		value   T
		problem Problem
	)
	err := s.run(ctx, op, func(ctx context.Context) error {
		err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			v, p, err := fn(tx)
			if err != nil {
				return err
			}
			if p != nil {
				problem = p
				return errRejected
			}
			value = v
			return nil
		})
		if problem != nil && errors.Is(err, errRejected) {
			return nil
		}
		return err
	})
	entry := AuditEntry{Operation: op, At: s.now()}
	switch {
	case err != nil:
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		return Outcome[T]{}, err
	case problem != nil:
		entry.Status = AuditStatusRejected
		entry.Problem = problem.Message()
		s.audit.Record(ctx, entry)
		s.logger.Info("mutation rejected", "operation", op, "problem", problem.Message())
		return Outcome[T]{Problem: problem}, nil
	default:
		entry.Status = AuditStatusSuccess
		entry.EntityID = idOf(value)
		s.audit.Record(ctx, entry)
		return Outcome[T]{Value: value}, nil
	}
}
