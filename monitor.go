package modkit

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded for every service operation.
const (
	OutcomeOK       = "ok"
	OutcomeDenied   = "denied"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// outcomeOf buckets an operation result: store failures are errors, lost
// compare-and-set races are conflicts, everything else the core rejected is a denial.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNotModified):
		return OutcomeConflict
	case errors.Is(err, ErrInternal):
		return OutcomeError
	}
	var modErr *Error
	if errors.As(err, &modErr) {
		return OutcomeDenied
	}
	return OutcomeError
}

// OperationMetrics provides operation performance and failure statistics.
type OperationMetrics struct {
	TotalOperations int64         `json:"total_operations"`
	Succeeded       int64         `json:"succeeded"`
	Denied          int64         `json:"denied"`
	Conflicts       int64         `json:"conflicts"`
	Failed          int64         `json:"failed"`
	AuditFailures   int64         `json:"audit_failures"`
	AverageDuration time.Duration `json:"average_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	LastReset       time.Time     `json:"last_reset"`
}

// FailureRate returns the share of operations that failed in the store.
func (m OperationMetrics) FailureRate() float64 {
	if m.TotalOperations == 0 {
		return 0
	}
	return float64(m.Failed) / float64(m.TotalOperations)
}

// MaxFailureRate is the store failure rate above which IsOperationHealthy reports false.
const MaxFailureRate = 0.1

// operationMonitor holds the internal operation monitoring state
type operationMonitor struct {
	totalCount    int64
	okCount       int64
	deniedCount   int64
	conflictCount int64
	failureCount  int64
	auditFailures int64
	totalDuration int64 // nanoseconds
	maxDuration   int64 // nanoseconds
	minDuration   int64 // nanoseconds
	lastReset     time.Time
	mu            sync.RWMutex
}

func newOperationMonitor() *operationMonitor {
	return &operationMonitor{
		minDuration: int64(time.Hour),
		lastReset:   time.Now(),
	}
}

// record counts one finished operation.
func (om *operationMonitor) record(duration time.Duration, outcome string) {
	om.mu.RLock()
	defer om.mu.RUnlock()

	atomic.AddInt64(&om.totalCount, 1)
	atomic.AddInt64(&om.totalDuration, int64(duration))

	switch outcome {
	case OutcomeOK:
		atomic.AddInt64(&om.okCount, 1)
	case OutcomeDenied:
		atomic.AddInt64(&om.deniedCount, 1)
	case OutcomeConflict:
		atomic.AddInt64(&om.conflictCount, 1)
	default:
		atomic.AddInt64(&om.failureCount, 1)
	}

	ns := int64(duration)
	for {
		current := atomic.LoadInt64(&om.maxDuration)
		if ns <= current || atomic.CompareAndSwapInt64(&om.maxDuration, current, ns) {
			break
		}
	}
	for {
		current := atomic.LoadInt64(&om.minDuration)
		if ns >= current || atomic.CompareAndSwapInt64(&om.minDuration, current, ns) {
			break
		}
	}
}

func (om *operationMonitor) recordAuditFailure() {
	atomic.AddInt64(&om.auditFailures, 1)
}

func (om *operationMonitor) snapshot() OperationMetrics {
	om.mu.Lock()
	defer om.mu.Unlock()

	total := atomic.LoadInt64(&om.totalCount)
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(atomic.LoadInt64(&om.totalDuration) / total)
	}
	minDur := atomic.LoadInt64(&om.minDuration)
	if total == 0 {
		minDur = 0
	}

	return OperationMetrics{
		TotalOperations: total,
		Succeeded:       atomic.LoadInt64(&om.okCount),
		Denied:          atomic.LoadInt64(&om.deniedCount),
		Conflicts:       atomic.LoadInt64(&om.conflictCount),
		Failed:          atomic.LoadInt64(&om.failureCount),
		AuditFailures:   atomic.LoadInt64(&om.auditFailures),
		AverageDuration: avg,
		MaxDuration:     time.Duration(atomic.LoadInt64(&om.maxDuration)),
		MinDuration:     time.Duration(minDur),
		LastReset:       om.lastReset,
	}
}

func (om *operationMonitor) reset() {
	om.mu.Lock()
	defer om.mu.Unlock()

	atomic.StoreInt64(&om.totalCount, 0)
	atomic.StoreInt64(&om.okCount, 0)
	atomic.StoreInt64(&om.deniedCount, 0)
	atomic.StoreInt64(&om.conflictCount, 0)
	atomic.StoreInt64(&om.failureCount, 0)
	atomic.StoreInt64(&om.auditFailures, 0)
	atomic.StoreInt64(&om.totalDuration, 0)
	atomic.StoreInt64(&om.maxDuration, 0)
	atomic.StoreInt64(&om.minDuration, int64(time.Hour))
	om.lastReset = time.Now()
}

// Metrics exports service activity to Prometheus.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	AutoBlocks    prometheus.Counter
	AuditFailures prometheus.Counter
}

// NewMetrics creates the modkit collectors. Register them with Register.
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modkit_operations_total",
				Help: "Total number of moderation and command operations.",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modkit_operation_duration_seconds",
				Help:    "Operation latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		AutoBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modkit_auto_blocks_total",
			Help: "Accounts blocked by reaching the warning threshold.",
		}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modkit_audit_failures_total",
			Help: "Committed mutations whose audit entry could not be written.",
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Operations, m.Duration, m.AutoBlocks, m.AuditFailures} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) autoBlocked() {
	if m == nil {
		return
	}
	m.AutoBlocks.Inc()
}

func (m *Metrics) auditFailed() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
