// Package cleanup sweeps expired records: idle and expired sessions,
// revocation tombstones past retention, and aged analytics events.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionStore exposes cleanup for expired and idle sessions.
type SessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time, idleCutoff time.Time) (int, error)
}

// RevocationStore exposes cleanup for tombstones past their retention.
type RevocationStore interface {
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}

// AnalyticsStore exposes cleanup for aged token and security events.
type AnalyticsStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Pruner drops stale in-memory rate limit windows. Counters backed by Redis
// expire on their own and don't need one.
type Pruner interface {
	Prune() int
}

// Result summarizes the deletions performed by one sweep.
type Result struct {
	DeletedSessions     int
	DeletedTombstones   int
	DeletedEvents       int
	PrunedRateLimitKeys int
}

// Service periodically removes expired vault artifacts.
type Service struct {
	sessions    SessionStore
	revocations RevocationStore
	analytics   AnalyticsStore
	pruner      Pruner

	interval  time.Duration
	idleAfter time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the cleanup Service.
type Option func(*Service)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithIdleTimeout overrides how long a session may sit inactive before it
// is swept even if not yet expired.
func WithIdleTimeout(idle time.Duration) Option {
	return func(s *Service) {
		if idle > 0 {
			s.idleAfter = idle
		}
	}
}

// WithRetention overrides how long revocation tombstones outlive the
// token's natural expiry.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithPruner attaches an in-memory rate limit counter to the sweep.
func WithPruner(pruner Pruner) Option {
	return func(s *Service) { s.pruner = pruner }
}

// WithLogger overrides the logger used for sweep errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

const (
	defaultInterval    = 5 * time.Minute
	defaultIdleTimeout = 30 * 24 * time.Hour
	defaultRetention   = 30 * 24 * time.Hour
)

// New constructs a cleanup Service with required stores and options applied.
func New(sessions SessionStore, revocations RevocationStore, analytics AnalyticsStore, opts ...Option) (*Service, error) {
	if sessions == nil || revocations == nil || analytics == nil {
		return nil, fmt.Errorf("sessions, revocations, and analytics stores are required")
	}
	svc := &Service{
		sessions:    sessions,
		revocations: revocations,
		analytics:   analytics,
		interval:    defaultInterval,
		idleAfter:   defaultIdleTimeout,
		retention:   defaultRetention,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs the sweep periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "vault cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. Failures in one store do not stop the
// others; errors are aggregated and returned alongside the partial Result.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	var res Result
	var errs []error

	deletedSessions, err := s.sessions.DeleteExpired(ctx, now, now.Add(-s.idleAfter))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired sessions: %w", err))
	} else {
		res.DeletedSessions = deletedSessions
	}

	deletedTombstones, err := s.revocations.DeleteExpired(ctx, now, s.retention)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired tombstones: %w", err))
	} else {
		res.DeletedTombstones = deletedTombstones
	}

	deletedEvents, err := s.analytics.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete aged events: %w", err))
	} else {
		res.DeletedEvents = deletedEvents
	}

	if s.pruner != nil {
		res.PrunedRateLimitKeys = s.pruner.Prune()
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	s.logger.DebugContext(ctx, "cleanup sweep complete",
		"sessions", res.DeletedSessions,
		"tombstones", res.DeletedTombstones,
		"events", res.DeletedEvents,
	)
	return res, nil
}
