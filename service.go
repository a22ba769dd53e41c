package modkit

import (
	"log/slog"
	"time"
)

// DefaultMaxWarns is the warning count at which a User is blocked automatically.
const DefaultMaxWarns = 5

// Service implements every moderation and command operation on top of a Store.
//
// Each mutation loads the accounts it concerns, decides with a Checker, applies
// one conditional update and then appends an audit entry. A conditional update
// that matches no row fails with ErrNotModified (the row changed under us) or
// with the not-found error of the entity (the row is gone); the service never
// retries on its own.
//
// Example:
//
//	store := modkit.NewBunStore(db)
//	service := modkit.NewService(store,
//	    modkit.WithMaxWarns(3),
//	    modkit.WithRolePolicy(modkit.CreatorPolicy(&creatorID)),
//	)
//	_, blocked, err := service.Warn(ctx, moderatorID, userID)
type Service struct {
	store    Store
	maxWarns int64
	policy   RolePolicy
	logger   *slog.Logger
	metrics  *Metrics
	monitor  *operationMonitor
	now      func() time.Time
}

var _ OperationMonitor = (*Service)(nil)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxWarns sets the auto-block threshold. Values below one are ignored.
func WithMaxWarns(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxWarns = n
		}
	}
}

// WithRolePolicy sets the policy that picks the role of newly registered accounts.
func WithRolePolicy(policy RolePolicy) ServiceOption {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus export.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the clock used for created_at timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		maxWarns: DefaultMaxWarns,
		policy:   CreatorPolicy(nil),
		logger:   slog.Default(),
		monitor:  newOperationMonitor(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the backing store.
func (s *Service) Store() Store {
	return s.store
}

// MaxWarns returns the configured auto-block threshold.
func (s *Service) MaxWarns() int64 {
	return s.maxWarns
}

// GetOperationMetrics returns counters for every mutation the service ran.
func (s *Service) GetOperationMetrics() OperationMetrics {
	return s.monitor.snapshot()
}

// ResetOperationMetrics clears the operation counters.
func (s *Service) ResetOperationMetrics() {
	s.monitor.reset()
}

// IsOperationHealthy reports whether the store failure rate is below MaxFailureRate.
func (s *Service) IsOperationHealthy() bool {
	return s.monitor.snapshot().FailureRate() < MaxFailureRate
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}
