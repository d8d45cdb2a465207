package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/aurum/internal/authorization"
	"gorm.io/gorm"
)

const (
	LedgerReasonDeadlineExceeded     = "deadline_exceeded"
	LedgerReasonForbidden            = "forbidden"
	LedgerReasonDBLockTimeout        = "db_lock_timeout"
	LedgerReasonSerializationFailure = "serialization_failure"
	LedgerReasonUniqueViolation      = "unique_violation"
	LedgerReasonDB                   = "db"
	LedgerReasonBusinessRule         = "business_rule"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// LedgerMetrics captures debt-ledger and rate-commit health signals.
type LedgerMetrics struct {
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	mutationErrors   *prometheus.CounterVec
	versionConflicts *prometheus.CounterVec
	lockWait         *prometheus.HistogramVec
	rateCommits      *prometheus.CounterVec
	rateCommitSize   prometheus.Histogram
	reconciled       *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics registered on the default registry.
func Ledger() *LedgerMetrics {
	return LedgerWithConfig(Config{})
}

// LedgerWithConfig returns the process-wide ledger metrics using config labels.
func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

// NewLedgerMetrics registers a fresh set of collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "aurum_ledger_mutations_total",
		Help:        "Committed ledger mutations by operation.",
		ConstLabels: labels,
	}, []string{"operation"})
	mutationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "aurum_ledger_mutation_duration_seconds",
		Help:        "Ledger mutation latency including lock wait and retries.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: labels,
	}, []string{"operation"})
	mutationErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "aurum_ledger_mutation_errors_total",
		Help:        "Ledger mutation failures by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"operation", "reason"})
	versionConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "aurum_ledger_version_conflicts_total",
		Help:        "Conditional customer updates that lost the race and retried.",
		ConstLabels: labels,
	}, []string{"operation"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "aurum_ledger_lock_wait_seconds",
		Help:        "Time spent acquiring the per-customer lock.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: labels,
	}, []string{"backend"})
	rateCommits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "aurum_rate_commits_total",
		Help:        "Committed catalog rate changes by entity type.",
		ConstLabels: labels,
	}, []string{"entity_type"})
	rateCommitSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "aurum_rate_commit_affected_products",
		Help:        "Products repriced per committed rate change.",
		Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})

	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "aurum_ledger_reconciliations_total",
		Help:        "Customer balances checked against a replay of their history.",
		ConstLabels: labels,
	}, []string{"result"})

	registerer.MustRegister(
		mutations,
		mutationDuration,
		mutationErrors,
		versionConflicts,
		lockWait,
		rateCommits,
		rateCommitSize,
		reconciled,
	)

	return &LedgerMetrics{
		mutations:        mutations,
		mutationDuration: mutationDuration,
		mutationErrors:   mutationErrors,
		versionConflicts: versionConflicts,
		lockWait:         lockWait,
		rateCommits:      rateCommits,
		rateCommitSize:   rateCommitSize,
		reconciled:       reconciled,
	}
}

// ObserveMutation records the outcome of one ledger operation.
func (m *LedgerMetrics) ObserveMutation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.mutationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.mutationErrors.WithLabelValues(operation, ClassifyLedgerReason(err)).Inc()
		return
	}
	m.mutations.WithLabelValues(operation).Inc()
}

func (m *LedgerMetrics) IncVersionConflict(operation string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(operation).Inc()
}

func (m *LedgerMetrics) ObserveLockWait(backend string, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.WithLabelValues(backend).Observe(duration.Seconds())
}

func (m *LedgerMetrics) ObserveRateCommit(entityType string, affected int) {
	if m == nil {
		return
	}
	m.rateCommits.WithLabelValues(entityType).Inc()
	m.rateCommitSize.Observe(float64(affected))
}

// ClassifyLedgerReason maps ledger errors to low-cardinality reasons.
func ClassifyLedgerReason(err error) string {
	if err == nil {
		return LedgerReasonBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return LedgerReasonDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return LedgerReasonForbidden
	}
	if hasPGCode(err, "55P03") {
		return LedgerReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return LedgerReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return LedgerReasonUniqueViolation
	}
	if isDBError(err) {
		return LedgerReasonDB
	}
	return LedgerReasonBusinessRule
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// ObserveReconcile records one reconciliation as in_sync, drift or error.
func (m *LedgerMetrics) ObserveReconcile(result string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(result).Inc()
}
