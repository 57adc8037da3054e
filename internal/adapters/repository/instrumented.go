package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/sift/internal/domain/model"
	"github.com/okian/sift/pkg/metrics"
)

const nanosecondsPerMillisecond = 1e6

// instrumented records latency and failures of every call on the wrapped store.
type instrumented struct {
	next    Store
	backend string
	timeout time.Duration
}

// Instrument wraps s so each call is observed under backend's label.
// A positive timeout bounds every call.
func Instrument(s Store, backend string, timeout time.Duration) Store {
	if s == nil {
		return nil
	}
	return &instrumented{next: s, backend: backend, timeout: timeout}
}

// Unwrap returns the decorated store.
func (s *instrumented) Unwrap() Store { return s.next }

func (s *instrumented) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	failed := err != nil && !errors.Is(err, ErrNotFound)
	metrics.RecordStoreOperation(s.backend, op, float64(time.Since(start).Nanoseconds())/nanosecondsPerMillisecond, failed)
	return err
}

func (s *instrumented) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.observe(ctx, "list", func(ctx context.Context) error {
		var err error
		ids, err = s.next.ListUserIDs(ctx)
		return err
	})
	return ids, err
}

func (s *instrumented) Get(ctx context.Context, userID string) (model.BlockRecord, error) {
	var rec model.BlockRecord
	err := s.observe(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = s.next.Get(ctx, userID)
		return err
	})
	return rec, err
}

func (s *instrumented) Increment(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	var out model.ReportOutcome
	err := s.observe(ctx, "increment", func(ctx context.Context) error {
		var err error
		out, err = s.next.Increment(ctx, r)
		return err
	})
	return out, err
}

func (s *instrumented) Upsert(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	var out model.ReportOutcome
	err := s.observe(ctx, "upsert", func(ctx context.Context) error {
		var err error
		out, err = s.next.Upsert(ctx, r)
		return err
	})
	return out, err
}

func (s *instrumented) Count(ctx context.Context) (int, error) {
	var n int
	err := s.observe(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = s.next.Count(ctx)
		return err
	})
	return n, err
}

func (s *instrumented) Ping(ctx context.Context) error {
	return s.observe(ctx, "ping", s.next.Ping)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
