package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/customer/domain"
	"github.com/smallbiznis/aurum/internal/events"
	"github.com/smallbiznis/aurum/pkg/db"
	"github.com/smallbiznis/aurum/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository

	Publisher events.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	publisher events.Publisher
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("customer.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: publisher,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Customer, error) {
	customer, err := s.newCustomer(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByPhone(ctx, s.db, customer.Phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}

	if err := s.repo.Insert(ctx, s.db, customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicate
		}
		return nil, err
	}

	s.log.Info("customer created", zap.String("customer_id", customer.ID.String()))
	s.publishCreated(ctx, customer)
	return customer, nil
}

// publishCreated only runs for explicit creates. Customers registered inside a
// bill transaction surface through bill.created instead.
func (s *Service) publishCreated(ctx context.Context, customer *domain.Customer) {
	evt, err := events.New(ctx, events.TypeCustomerCreated, "customer:"+customer.ID.String(), customer, s.clock.Now())
	if err != nil {
		s.log.Warn("build customer event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("publish customer event failed", zap.String("event_id", evt.ID), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Customer, error) {
	customerID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	customer, err := s.repo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.ErrNotFound
	}
	return customer, nil
}

func (s *Service) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByPhone(ctx, s.db, normalized)
}

func (s *Service) Draft(req domain.CreateRequest) (*domain.Customer, error) {
	return s.newCustomer(req)
}

func (s *Service) Register(ctx context.Context, tx *gorm.DB, customer *domain.Customer) error {
	if tx == nil {
		tx = s.db
	}
	if err := s.repo.Insert(ctx, tx, customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	s.log.Info("customer registered", zap.String("customer_id", customer.ID.String()))
	return nil
}

func (s *Service) FindOrCreateByPhone(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) (*domain.Customer, error) {
	if tx == nil {
		tx = s.db
	}
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByPhone(ctx, tx, phone)
	if err != nil || existing != nil {
		return existing, err
	}

	customer, err := s.newCustomer(req)
	if err != nil {
		return nil, err
	}
	err = s.Register(ctx, tx, customer)
	if errors.Is(err, domain.ErrDuplicate) {
		// Lost the race to a concurrent registration of the same phone.
		existing, err = s.repo.FindByPhone(ctx, tx, phone)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, domain.ErrDuplicate
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *Service) History(ctx context.Context, id string) ([]domain.PaymentHistory, error) {
	customer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, s.db, customer.ID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.PaymentHistory{}
	}
	return entries, nil
}

func (s *Service) ListHistory(ctx context.Context, id string, page pagination.Pagination) (*domain.HistoryPage, error) {
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	customer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	limit := page.Limit()
	entries, err := s.repo.ListEntriesAfter(ctx, s.db, customer.ID, cursor.Version, limit+1)
	if err != nil {
		return nil, err
	}

	entries, info, err := pagination.Trim(entries, limit, func(e domain.PaymentHistory) pagination.Cursor {
		return pagination.Cursor{Version: e.Version}
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.PaymentHistory{}
	}
	return &domain.HistoryPage{Entries: entries, PageInfo: info}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	customerID, err := parseID(id)
	if err != nil {
		return err
	}

	var unlinked int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.repo.FindByID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}
		if unlinked, err = s.repo.UnlinkBills(ctx, tx, customerID); err != nil {
			return err
		}
		return s.repo.SoftDelete(ctx, tx, customerID, s.clock.Now())
	})
	if err != nil {
		return err
	}

	s.log.Info("customer deleted",
		zap.String("customer_id", customerID.String()),
		zap.Int64("bills_unlinked", unlinked),
	)
	return nil
}

func (s *Service) newCustomer(req domain.CreateRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	return &domain.Customer{
		ID:        s.genID.Generate(),
		Name:      name,
		Phone:     phone,
		Email:     email,
		Address:   strings.TrimSpace(req.Address),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// normalizePhone keeps a leading plus and the ASCII digits; separators are
// dropped.
func normalizePhone(value string) (string, error) {
	value = strings.TrimSpace(value)
	var b strings.Builder
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", domain.ErrInvalidPhone
		}
	}
	phone := b.String()
	digits := len(strings.TrimPrefix(phone, "+"))
	if digits < 7 || digits > 15 {
		return "", domain.ErrInvalidPhone
	}
	return phone, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
