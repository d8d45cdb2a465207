package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/actorcontext"
	"github.com/smallbiznis/aurum/internal/authorization"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/config"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	"github.com/smallbiznis/aurum/internal/events"
	"github.com/smallbiznis/aurum/internal/ledger/domain"
	"github.com/smallbiznis/aurum/internal/ledger/lock"
	obsmetrics "github.com/smallbiznis/aurum/internal/observability/metrics"
	"github.com/smallbiznis/aurum/pkg/apperr"
	"github.com/smallbiznis/aurum/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opSale     = "sale"
	opPayment  = "payment"
	opAdjust   = "adjustment"
	opReversal = "reversal"
	opScope    = "scope"
)

// amountEpsilon is the tolerance when comparing a request amount to a
// recorded one.
const amountEpsilon = 0.005

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	StoreConfig   *config.StoreConfigHolder
	Customers     customerdomain.Repository
	Authz         authorization.Service
	Locker        lock.Locker
	Publisher     events.Publisher          `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	storeConfig   *config.StoreConfigHolder
	customers     customerdomain.Repository
	authz         authorization.Service
	locker        lock.Locker
	publisher     events.Publisher
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ledger.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		storeConfig:   p.StoreConfig,
		customers:     p.Customers,
		authz:         p.Authz,
		locker:        p.Locker,
		publisher:     publisher,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// scope is carried on the context handed to WithCustomer callbacks. Entries
// recorded through it are published once the transaction commits.
type scope struct {
	customerID snowflake.ID
	entries    []*customerdomain.PaymentHistory
}

type scopeKey struct{}

func scopeFromContext(ctx context.Context, customerID snowflake.ID) (*scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || sc == nil || sc.customerID != customerID {
		return nil, false
	}
	return sc, true
}

func (s *Service) WithCustomer(ctx context.Context, customerID snowflake.ID, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if customerID == 0 {
		return domain.ErrInvalidCustomer
	}
	return s.run(ctx, customerID, opScope, fn)
}

func (s *Service) run(ctx context.Context, customerID snowflake.ID, op string, fn func(ctx context.Context, tx *gorm.DB) error) error {
	start := time.Now()

	lockStart := time.Now()
	release, err := s.locker.Acquire(ctx, "customer:"+customerID.String())
	s.ledgerMetrics.ObserveLockWait(s.locker.Backend(), time.Since(lockStart))
	if err != nil {
		s.ledgerMetrics.ObserveMutation(op, time.Since(start), err)
		return apperr.Transient(fmt.Errorf("acquire customer lock: %w", err))
	}
	defer release()

	maxRetries := s.storeConfig.Get().LedgerMaxRetries
	var sc *scope
	for attempt := 0; ; attempt++ {
		sc = &scope{customerID: customerID}
		scoped := context.WithValue(ctx, scopeKey{}, sc)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(scoped, tx)
		})
		if !errors.Is(err, customerdomain.ErrVersionConflict) || attempt >= maxRetries {
			break
		}
		s.ledgerMetrics.IncVersionConflict(op)
		s.log.Debug("customer version conflict, retrying",
			zap.String("customer_id", customerID.String()),
			zap.Int("attempt", attempt+1),
		)
	}
	s.ledgerMetrics.ObserveMutation(op, time.Since(start), err)

	if err != nil {
		switch {
		case errors.Is(err, customerdomain.ErrVersionConflict), db.IsTransientErr(err):
			return apperr.Transient(err)
		}
		return err
	}

	for _, entry := range sc.entries {
		s.afterCommit(ctx, entry)
	}
	return nil
}

func (s *Service) RecordSale(ctx context.Context, tx *gorm.DB, req domain.SaleRequest) (*customerdomain.PaymentHistory, error) {
	if err := s.authorize(ctx, authorization.ObjectBill, authorization.ActionCreate); err != nil {
		return nil, err
	}
	if err := validateBillAmounts(req.BillID, req.FinalAmount, req.AmountPaid); err != nil {
		return nil, err
	}
	sc, ok := scopeFromContext(ctx, req.CustomerID)
	if !ok {
		return nil, domain.ErrOutsideScope
	}

	c, err := s.load(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	unpaid := math.Max(0, req.FinalAmount-req.AmountPaid)
	before := c.TotalDebt
	c.TotalDebt = before + unpaid
	c.TotalPurchases += req.FinalAmount
	c.TotalPaid += req.AmountPaid
	c.BillCount++

	entry := s.newEntry(ctx, c, customerdomain.EntrySale, before)
	entry.BillID = &req.BillID
	entry.BillNumber = stringPtr(req.BillNumber)
	entry.BillAmount = req.FinalAmount
	entry.AmountPaid = req.AmountPaid
	entry.DebtAdded = unpaid
	entry.Note = "Bill " + req.BillNumber

	if err := s.persist(ctx, tx, c, entry); err != nil {
		return nil, err
	}
	sc.entries = append(sc.entries, entry)
	return entry, nil
}

func (s *Service) ReverseBill(ctx context.Context, tx *gorm.DB, req domain.ReversalRequest) (*customerdomain.PaymentHistory, error) {
	if err := s.authorize(ctx, authorization.ObjectBill, authorization.ActionDelete); err != nil {
		return nil, err
	}
	if err := validateBillAmounts(req.BillID, req.FinalAmount, req.AmountPaid); err != nil {
		return nil, err
	}
	sc, ok := scopeFromContext(ctx, req.CustomerID)
	if !ok {
		return nil, domain.ErrOutsideScope
	}

	c, err := s.load(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	unpaid := math.Max(0, req.FinalAmount-req.AmountPaid)
	before := c.TotalDebt
	c.TotalDebt = math.Max(0, before-unpaid)
	c.TotalPurchases = math.Max(0, c.TotalPurchases-req.FinalAmount)
	c.TotalPaid = math.Max(0, c.TotalPaid-req.AmountPaid)
	if c.BillCount > 0 {
		c.BillCount--
	}

	entry := s.newEntry(ctx, c, customerdomain.EntryReversal, before)
	entry.BillID = &req.BillID
	entry.BillNumber = stringPtr(req.BillNumber)
	entry.BillAmount = req.FinalAmount
	entry.AmountPaid = req.AmountPaid
	entry.DebtAdded = -unpaid
	entry.Note = fmt.Sprintf("Bill %s deleted, reversed %.2f unpaid", req.BillNumber, unpaid)

	if err := s.persist(ctx, tx, c, entry); err != nil {
		return nil, err
	}
	sc.entries = append(sc.entries, entry)
	return entry, nil
}

func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRequest) (*customerdomain.PaymentHistory, error) {
	if err := s.authorize(ctx, authorization.ObjectLedger, authorization.ActionPay); err != nil {
		return nil, err
	}
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if !validAmount(req.Amount) || req.Amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	var entry *customerdomain.PaymentHistory
	err = s.run(ctx, customerID, opPayment, func(ctx context.Context, tx *gorm.DB) error {
		existing, err := s.replayed(ctx, tx, customerID, key, customerdomain.EntryPayment, func(e *customerdomain.PaymentHistory) bool {
			return paymentMatches(e, req.Amount)
		})
		if err != nil || existing != nil {
			entry = existing
			return err
		}

		c, err := s.load(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if c.TotalDebt <= 0 {
			return domain.ErrNoOutstandingDebt
		}

		pay := math.Min(req.Amount, c.TotalDebt)
		before := c.TotalDebt
		c.TotalDebt = math.Max(0, before-pay)
		c.TotalPaid += pay

		entry = s.newEntry(ctx, c, customerdomain.EntryPayment, before)
		entry.AmountPaid = pay
		entry.Note = strings.TrimSpace(req.Note)
		entry.IdempotencyKey = stringPtr(key)
		if err := s.persist(ctx, tx, c, entry); err != nil {
			return err
		}
		sc, _ := scopeFromContext(ctx, customerID)
		sc.entries = append(sc.entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (*customerdomain.PaymentHistory, error) {
	if err := s.authorize(ctx, authorization.ObjectLedger, authorization.ActionAdjust); err != nil {
		return nil, err
	}
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if !validAmount(req.Amount) {
		return nil, domain.ErrInvalidAmount
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	var entry *customerdomain.PaymentHistory
	err = s.run(ctx, customerID, opAdjust, func(ctx context.Context, tx *gorm.DB) error {
		existing, err := s.replayed(ctx, tx, customerID, key, customerdomain.EntryAdjustment, func(e *customerdomain.PaymentHistory) bool {
			return sameAmount(e.DebtAfter, req.Amount)
		})
		if err != nil || existing != nil {
			entry = existing
			return err
		}

		c, err := s.load(ctx, tx, customerID)
		if err != nil {
			return err
		}

		before := c.TotalDebt
		c.TotalDebt = req.Amount

		entry = s.newEntry(ctx, c, customerdomain.EntryAdjustment, before)
		entry.DebtAdded = req.Amount - before
		entry.Note = strings.TrimSpace(req.Note)
		if entry.Note == "" {
			entry.Note = "Manual adjustment"
		}
		entry.IdempotencyKey = stringPtr(key)
		if err := s.persist(ctx, tx, c, entry); err != nil {
			return err
		}
		sc, _ := scopeFromContext(ctx, customerID)
		sc.entries = append(sc.entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Reconcile(ctx context.Context, id string) (domain.Reconciliation, error) {
	customerID, err := parseID(id)
	if err != nil {
		return domain.Reconciliation{}, err
	}

	var (
		c       *customerdomain.Customer
		entries []customerdomain.PaymentHistory
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = s.load(ctx, tx, customerID); err != nil {
			return err
		}
		entries, err = s.customers.ListEntries(ctx, tx, customerID)
		return err
	})
	if err != nil {
		return domain.Reconciliation{}, err
	}
	// Entries committed after the customer row was read are not part of its counters.
	entries = domain.UpTo(entries, c.Version)

	cached := domain.BalanceOf(c)
	replayed, err := domain.Replay(entries)
	if err != nil {
		s.log.Error("ledger history inconsistent", zap.String("customer_id", id), zap.Error(err))
		return domain.Reconciliation{}, err
	}
	out := domain.Reconciliation{
		Cached:   cached,
		Replayed: replayed,
		Entries:  len(entries),
		InSync:   cached.Equal(replayed),
	}
	if !out.InSync {
		s.log.Error("customer balance drifted from history",
			zap.String("customer_id", id),
			zap.Float64("cached_debt", cached.TotalDebt),
			zap.Float64("replayed_debt", replayed.TotalDebt),
		)
	}
	return out, nil
}

// replayed returns the entry already recorded under key, if any. The key
// counts as reused when that entry has another kind or same rejects it.
func (s *Service) replayed(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, key string, kind customerdomain.EntryKind, same func(*customerdomain.PaymentHistory) bool) (*customerdomain.PaymentHistory, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.customers.FindEntryByIdempotencyKey(ctx, tx, customerID, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.Kind != kind || !same(existing) {
		s.log.Warn("idempotency key reused for a different request",
			zap.String("customer_id", customerID.String()),
			zap.String("entry_id", existing.ID.String()),
		)
		return nil, domain.ErrIdempotencyKeyReuse
	}
	s.log.Info("idempotent ledger replay",
		zap.String("customer_id", customerID.String()),
		zap.String("entry_id", existing.ID.String()),
	)
	return existing, nil
}

// paymentMatches reports whether a payment of amount would have recorded e.
// Payments are clamped to the debt, so a full settlement matches any amount
// that covered it.
func paymentMatches(e *customerdomain.PaymentHistory, amount float64) bool {
	if sameAmount(e.AmountPaid, amount) {
		return true
	}
	return sameAmount(e.AmountPaid, e.DebtBefore) && amount > e.AmountPaid
}

func sameAmount(a, b float64) bool {
	return math.Abs(a-b) < amountEpsilon
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*customerdomain.Customer, error) {
	c, err := s.customers.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrCustomerNotFound
	}
	return c, nil
}

func (s *Service) newEntry(ctx context.Context, c *customerdomain.Customer, kind customerdomain.EntryKind, before float64) *customerdomain.PaymentHistory {
	entry := &customerdomain.PaymentHistory{
		ID:         s.genID.Generate(),
		CustomerID: c.ID,
		Kind:       kind,
		DebtBefore: before,
		DebtAfter:  c.TotalDebt,
		Date:       s.clock.Now(),
	}
	if actor, ok := actorcontext.ActorFromContext(ctx); ok {
		entry.ActorID = actor.ID
	}
	return entry
}

// persist writes the customer counters and appends entry. The customer
// version advances by one per entry.
func (s *Service) persist(ctx context.Context, tx *gorm.DB, c *customerdomain.Customer, entry *customerdomain.PaymentHistory) error {
	expected := c.Version
	c.Version = expected + 1
	c.UpdatedAt = entry.Date
	entry.Version = c.Version

	if err := s.customers.UpdateBalances(ctx, tx, c, expected); err != nil {
		return err
	}
	if err := s.customers.InsertEntry(ctx, tx, entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return customerdomain.ErrVersionConflict
		}
		return err
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, entry *customerdomain.PaymentHistory) {
	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.Kind))
	s.log.Info("ledger entry recorded",
		zap.String("customer_id", entry.CustomerID.String()),
		zap.String("kind", string(entry.Kind)),
		zap.Float64("debt_before", entry.DebtBefore),
		zap.Float64("debt_after", entry.DebtAfter),
	)

	evt, err := events.New(ctx, events.TypeLedgerRecorded, "customer:"+entry.CustomerID.String(), entry, entry.Date)
	if err != nil {
		s.log.Warn("build ledger event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("publish ledger event failed", zap.String("event_id", evt.ID), zap.Error(err))
		return
	}
	s.obsMetrics.RecordEventPublished(ctx, evt.Type)
}

func (s *Service) authorize(ctx context.Context, object, action string) error {
	if s.authz == nil {
		return nil
	}
	err := s.authz.Authorize(ctx, object, action)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrInvalidActor):
		return apperr.Unauthorized(err)
	default:
		return err
	}
}

func validateBillAmounts(billID snowflake.ID, finalAmount, amountPaid float64) error {
	if billID == 0 {
		return domain.ErrInvalidBill
	}
	if !validAmount(finalAmount) || !validAmount(amountPaid) {
		return domain.ErrInvalidAmount
	}
	return nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func stringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidCustomer
	}
	return id, nil
}
