package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/clock"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/aurum/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/aurum/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobReconcileLedger = "reconcile_ledger"

const (
	reconcileInSync = "in_sync"
	reconcileDrift  = "drift"
	reconcileError  = "error"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Customers     customerdomain.Repository
	LedgerSvc     ledgerdomain.Service
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
	Config        Config                    `optional:"true"`
}

// Scheduler periodically replays every customer's payment history and
// reports balances that drifted from the cached counters.
type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	customers     customerdomain.Repository
	ledgerSvc     ledgerdomain.Service
	ledgerMetrics *obsmetrics.LedgerMetrics
}

// RunStats summarizes a single reconciliation pass.
type RunStats struct {
	Checked int
	Drifted int
	Failed  int
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Customers == nil || p.LedgerSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		customers:     p.Customers,
		ledgerSvc:     p.LedgerSvc,
		ledgerMetrics: p.LedgerMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, log *zap.Logger) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	log.Debug("job started")

	err := fn(ctx, log)
	if err == nil {
		log.Debug("job finished", zap.Duration("duration", s.clock.Now().Sub(start)))
		return nil
	}

	// deadline is a soft timeout; the next tick picks up where this one stopped
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one reconciliation pass over all live customers.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobReconcileLedger, s.cfg.JobTimeout, func(ctx context.Context, log *zap.Logger) error {
		stats, err := s.ReconcileLedger(ctx, log)
		log.Info("ledger reconciliation finished",
			zap.Int("checked", stats.Checked),
			zap.Int("drifted", stats.Drifted),
			zap.Int("failed", stats.Failed),
		)
		return err
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReconcileLedger pages through customers by id. Individual failures are
// counted and joined so one bad row does not stop the pass.
func (s *Scheduler) ReconcileLedger(ctx context.Context, log *zap.Logger) (RunStats, error) {
	var (
		stats  RunStats
		jobErr error
		after  snowflake.ID
	)

	for {
		if err := ctx.Err(); err != nil {
			return stats, errors.Join(jobErr, err)
		}

		ids, err := s.customers.ListIDs(ctx, s.db, after, s.cfg.BatchSize)
		if err != nil {
			return stats, errors.Join(jobErr, err)
		}
		if len(ids) == 0 {
			return stats, jobErr
		}

		for _, id := range ids {
			stats.Checked++
			result, err := s.ledgerSvc.Reconcile(ctx, id.String())
			switch {
			case err != nil:
				stats.Failed++
				jobErr = errors.Join(jobErr, fmt.Errorf("customer %s: %w", id, err))
				s.ledgerMetrics.ObserveReconcile(reconcileError)
				log.Warn("ledger reconcile failed", zap.String("customer_id", id.String()), zap.Error(err))
			case !result.InSync:
				stats.Drifted++
				s.ledgerMetrics.ObserveReconcile(reconcileDrift)
				log.Error("ledger drift detected",
					zap.String("customer_id", id.String()),
					zap.Float64("cached_debt", result.Cached.TotalDebt),
					zap.Float64("replayed_debt", result.Replayed.TotalDebt),
					zap.Int("entries", result.Entries),
				)
			default:
				s.ledgerMetrics.ObserveReconcile(reconcileInSync)
			}
		}

		after = ids[len(ids)-1]
		if len(ids) < s.cfg.BatchSize {
			return stats, jobErr
		}
	}
}
