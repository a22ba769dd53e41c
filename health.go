package modkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// HealthReport combines store reachability with operation statistics.
type HealthReport struct {
	Healthy    bool                `json:"healthy"`
	Error      string              `json:"error,omitempty"`
	Database   *dbkit.HealthStatus `json:"database,omitempty"`
	Pool       *dbkit.PoolStats    `json:"pool,omitempty"`
	Operations OperationMetrics    `json:"operations"`
}

// HealthService provides health monitoring functionality as an extension to Service.
type HealthService struct {
	*Service
	kit *dbkit.DBKit
}

var _ HealthMonitor = (*HealthService)(nil)

// NewHealthService creates a new health service extension. kit may be nil when
// the store is not backed by dbkit (SQLite, memory).
func NewHealthService(service *Service, kit *dbkit.DBKit) *HealthService {
	return &HealthService{Service: service, kit: kit}
}

// Health performs a comprehensive health check: database status and pool
// statistics when dbkit is available, a store ping otherwise, and the
// operation failure rate.
func (hs *HealthService) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Healthy:    true,
		Operations: hs.GetOperationMetrics(),
	}

	if hs.kit != nil {
		status := hs.kit.Health(ctx)
		pool := dbkit.PoolStatsFromSQL(hs.kit.Stats())
		report.Database = &status
		report.Pool = &pool
		if !status.Healthy {
			report.Healthy = false
			report.Error = status.Error
		}
	} else if err := hs.Ping(ctx); err != nil {
		report.Healthy = false
		report.Error = err.Error()
	}

	if report.Healthy && !hs.IsOperationHealthy() {
		report.Healthy = false
		report.Error = "operation failure rate above threshold"
	}
	return report
}

// IsHealthy reports whether the store is reachable.
func (hs *HealthService) IsHealthy(ctx context.Context) bool {
	if hs.kit != nil {
		return hs.kit.IsHealthy(ctx)
	}
	return hs.Ping(ctx) == nil
}

// Ping performs a basic connectivity test against the store.
func (hs *HealthService) Ping(ctx context.Context) error {
	return hs.store.Ping(ctx)
}
