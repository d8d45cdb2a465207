package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/actorcontext"
	"github.com/smallbiznis/aurum/internal/bill/domain"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/config"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	"github.com/smallbiznis/aurum/internal/events"
	ledgerdomain "github.com/smallbiznis/aurum/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/aurum/internal/observability/metrics"
	productdomain "github.com/smallbiznis/aurum/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	StoreConfig *config.StoreConfigHolder
	Repo        domain.Repository
	Products    productdomain.Service
	Customers   customerdomain.Service
	Ledger      ledgerdomain.Service
	Publisher   events.Publisher          `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	storeConfig *config.StoreConfigHolder
	repo        domain.Repository
	products    productdomain.Service
	customers   customerdomain.Service
	ledger      ledgerdomain.Service
	publisher   events.Publisher
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("bill.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		storeConfig: p.StoreConfig,
		repo:        p.Repo,
		products:    p.Products,
		customers:   p.Customers,
		ledger:      p.Ledger,
		publisher:   publisher,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Bill, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	items, subtotal, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	finalAmount := math.Max(0, subtotal-req.Discount)
	if req.AmountPaid > finalAmount {
		return nil, domain.ErrInvalidAmountPaid
	}

	customer, draft, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}
	if customer == nil && draft == nil && req.PaymentMode == domain.PaymentCredit {
		return nil, domain.ErrCustomerRequired
	}

	now := s.clock.Now()
	bill := &domain.Bill{
		ID:          s.genID.Generate(),
		Items:       datatypes.JSONSlice[domain.Item](items),
		Subtotal:    subtotal,
		Discount:    req.Discount,
		FinalAmount: finalAmount,
		AmountPaid:  req.AmountPaid,
		PaymentMode: req.PaymentMode,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
	}
	bill.BillNumber = s.billNumber(bill)
	if actor, ok := actorcontext.ActorFromContext(ctx); ok {
		bill.GeneratedBy = actor.ID
	}

	if customer == nil && draft == nil {
		snapshot := domain.CustomerSnapshot{}
		if req.Customer != nil {
			snapshot = domain.CustomerSnapshot{
				Name:    strings.TrimSpace(req.Customer.Name),
				Phone:   strings.TrimSpace(req.Customer.Phone),
				Address: strings.TrimSpace(req.Customer.Address),
			}
		}
		bill.Customer = datatypes.NewJSONType(snapshot)
		if err := s.repo.Insert(ctx, s.db, bill); err != nil {
			return nil, err
		}
	} else {
		err = s.insertLinked(ctx, bill, customer, draft)
		if draft != nil && errors.Is(err, customerdomain.ErrDuplicate) {
			// Another bill registered the phone first; bill against that customer.
			customer, err = s.customers.FindByPhone(ctx, draft.Phone)
			if err == nil && customer == nil {
				err = customerdomain.ErrDuplicate
			}
			if err == nil {
				err = s.insertLinked(ctx, bill, customer, nil)
			}
		}
		if err != nil {
			return nil, err
		}
	}

	s.log.Info("bill created",
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
		zap.Float64("final_amount", bill.FinalAmount),
		zap.Bool("linked", bill.CustomerID != nil),
	)
	s.publish(ctx, events.TypeBillCreated, bill)
	return bill, nil
}

// insertLinked writes bill and its sale entry under the customer's ledger
// lock. A drafted customer is registered in the same transaction.
func (s *Service) insertLinked(ctx context.Context, bill *domain.Bill, customer, draft *customerdomain.Customer) error {
	if draft != nil {
		customer = draft
	}
	bill.CustomerID = &customer.ID
	bill.Customer = datatypes.NewJSONType(domain.CustomerSnapshot{
		Name:    customer.Name,
		Phone:   customer.Phone,
		Address: customer.Address,
	})
	return s.ledger.WithCustomer(ctx, customer.ID, func(ctx context.Context, tx *gorm.DB) error {
		if draft != nil {
			if err := s.customers.Register(ctx, tx, draft); err != nil {
				return err
			}
		}
		if err := s.repo.Insert(ctx, tx, bill); err != nil {
			return err
		}
		_, err := s.ledger.RecordSale(ctx, tx, ledgerdomain.SaleRequest{
			CustomerID:  customer.ID,
			BillID:      bill.ID,
			BillNumber:  bill.BillNumber,
			FinalAmount: bill.FinalAmount,
			AmountPaid:  bill.AmountPaid,
		})
		return err
	})
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Bill, error) {
	billID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	bill, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, domain.ErrNotFound
	}
	return bill, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	bill, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if bill.CustomerID == nil {
		if err := s.repo.Delete(ctx, s.db, bill.ID); err != nil {
			return err
		}
	} else {
		customerID := *bill.CustomerID
		err = s.ledger.WithCustomer(ctx, customerID, func(ctx context.Context, tx *gorm.DB) error {
			current, err := s.repo.FindByID(ctx, tx, bill.ID)
			if err != nil {
				return err
			}
			if current == nil {
				return domain.ErrNotFound
			}
			if current.CustomerID != nil && *current.CustomerID == customerID {
				if _, err := s.ledger.ReverseBill(ctx, tx, ledgerdomain.ReversalRequest{
					CustomerID:  customerID,
					BillID:      current.ID,
					BillNumber:  current.BillNumber,
					FinalAmount: current.FinalAmount,
					AmountPaid:  current.AmountPaid,
				}); err != nil {
					return err
				}
			}
			return s.repo.Delete(ctx, tx, current.ID)
		})
		if err != nil {
			return err
		}
	}

	s.log.Info("bill deleted",
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
	)
	s.publish(ctx, events.TypeBillDeleted, bill)
	return nil
}

func (s *Service) snapshotItems(ctx context.Context, inputs []domain.ItemInput) ([]domain.Item, float64, error) {
	items := make([]domain.Item, 0, len(inputs))
	var subtotal float64
	for _, in := range inputs {
		p, err := s.products.Get(ctx, in.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if !p.Active {
			return nil, 0, domain.ErrInactiveProduct
		}
		lineTotal := p.TotalPrice * float64(in.Quantity)
		items = append(items, domain.Item{
			ProductID:       p.ID,
			Name:            p.Name,
			Quantity:        in.Quantity,
			UnitPrice:       p.TotalPrice,
			LineTotal:       lineTotal,
			ProductSnapshot: domain.NewProductSnapshot(p),
		})
		subtotal += lineTotal
	}
	return items, subtotal, nil
}

// resolveCustomer returns the linked customer, or a draft to register with
// the bill when a tracked purchase comes from a new phone number.
func (s *Service) resolveCustomer(ctx context.Context, req domain.CreateRequest) (*customerdomain.Customer, *customerdomain.Customer, error) {
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		c, err := s.customers.Get(ctx, id)
		if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidID) {
			return nil, nil, domain.ErrInvalidCustomer
		}
		return c, nil, err
	}
	if !req.TrackDebt {
		return nil, nil, nil
	}
	if req.Customer == nil {
		return nil, nil, domain.ErrCustomerRequired
	}
	existing, err := s.customers.FindByPhone(ctx, req.Customer.Phone)
	if err != nil || existing != nil {
		return existing, nil, err
	}
	draft, err := s.customers.Draft(customerdomain.CreateRequest{
		Name:    req.Customer.Name,
		Phone:   req.Customer.Phone,
		Address: req.Customer.Address,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, draft, nil
}

// billNumber renders <prefix>-<yyyymmdd>-<id in base36>.
func (s *Service) billNumber(b *domain.Bill) string {
	prefix := strings.TrimSpace(s.storeConfig.Get().BillPrefix)
	return prefix + "-" + b.CreatedAt.Format("20060102") + "-" + strings.ToUpper(b.ID.Base36())
}

func (s *Service) publish(ctx context.Context, eventType string, bill *domain.Bill) {
	evt, err := events.New(ctx, eventType, "bill:"+bill.ID.String(), bill, s.clock.Now())
	if err != nil {
		s.log.Warn("build bill event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("publish bill event failed", zap.String("event_id", evt.ID), zap.Error(err))
		return
	}
	s.obsMetrics.RecordEventPublished(ctx, evt.Type)
}

func validateRequest(req domain.CreateRequest) error {
	if len(req.Items) == 0 {
		return domain.ErrInvalidItems
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return domain.ErrInvalidQuantity
		}
	}
	if !validAmount(req.Discount) {
		return domain.ErrInvalidDiscount
	}
	if !validAmount(req.AmountPaid) {
		return domain.ErrInvalidAmountPaid
	}
	if !req.PaymentMode.Valid() {
		return domain.ErrInvalidPaymentMode
	}
	return nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
