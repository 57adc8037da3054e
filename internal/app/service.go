// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/domain/merge"
	"github.com/okian/sift/internal/domain/model"
	"github.com/okian/sift/pkg/logger"
	"github.com/okian/sift/pkg/metrics"
)

// Service implements the API dependencies for the blocklist.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	policy  merge.Policy
	backend string

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the datastore. The service owns it and closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithMergePolicy sets how repeated reports are folded into a record.
func WithMergePolicy(p merge.Policy) Option {
	return func(s *Service) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithBackendName labels the store in stats output.
func WithBackendName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.backend = name
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without WithStore it runs on an in-memory store.
func New(opts ...Option) *Service {
	s := &Service{
		policy:  merge.Default,
		backend: "memory",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	return s
}

func (s *Service) log() logger.Logger {
	if s.logger == nil {
		return logger.Get()
	}
	return s.logger
}

// Start marks the service ready. The store is already connected by then.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.started = true
	s.logger.Info(ctx, "blocklist service started",
		logger.String("backend", s.backend),
		logger.String("mergePolicy", s.policy.String()),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "blocklist service stopped")
}

// MergePolicy returns the configured policy.
func (s *Service) MergePolicy() merge.Policy { return s.policy }

// Blocklist returns every blocked user id.
func (s *Service) Blocklist(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		s.log().Error(ctx, "listing blocklist failed", logger.Error(err))
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	metrics.UpdateBlocklistUsers(len(ids))
	return ids, nil
}

// Report records a report under the configured merge policy and returns the
// resulting record together with the confirmation message for the reporter.
func (s *Service) Report(ctx context.Context, r model.Report) (model.ReportOutcome, string, error) {
	if r.UserID == "" {
		return model.ReportOutcome{}, "", ErrEmptyUserID
	}

	var (
		out model.ReportOutcome
		err error
	)
	switch s.policy {
	case merge.Upsert:
		out, err = s.store.Upsert(ctx, r)
	case merge.Increment:
		out, err = s.store.Increment(ctx, r)
	default:
		return model.ReportOutcome{}, "", fmt.Errorf("%w: %q", merge.ErrUnknownPolicy, s.policy)
	}
	if err != nil {
		s.log().Error(ctx, "storing report failed",
			logger.String("userID", r.UserID),
			logger.String("mergePolicy", s.policy.String()),
			logger.Error(err),
		)
		return model.ReportOutcome{}, "", err
	}

	metrics.RecordReport(s.policy.String(), out.Created)
	s.log().Info(ctx, "user reported",
		logger.String("userID", out.Record.UserID),
		logger.Int("blockCount", out.Record.BlockCount),
		logger.Bool("created", out.Created),
	)
	return out, s.policy.Message(out), nil
}

// Ping checks the datastore.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"mergePolicy":  s.policy.String(),
		"storeBackend": s.backend,
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		stats["storeError"] = err.Error()
		return stats
	}
	stats["totalUsers"] = n
	metrics.UpdateBlocklistUsers(n)
	return stats
}
