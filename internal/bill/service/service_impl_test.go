package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/aurum/internal/actorcontext"
	"github.com/smallbiznis/aurum/internal/authorization"
	"github.com/smallbiznis/aurum/internal/bill/domain"
	billrepo "github.com/smallbiznis/aurum/internal/bill/repository"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/aurum/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/aurum/internal/catalog/service"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/config"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	customerrepo "github.com/smallbiznis/aurum/internal/customer/repository"
	customerservice "github.com/smallbiznis/aurum/internal/customer/service"
	"github.com/smallbiznis/aurum/internal/ledger/lock"
	ledgerservice "github.com/smallbiznis/aurum/internal/ledger/service"
	productdomain "github.com/smallbiznis/aurum/internal/product/domain"
	productrepo "github.com/smallbiznis/aurum/internal/product/repository"
	productservice "github.com/smallbiznis/aurum/internal/product/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	catalog   catalogdomain.Service
	products  productdomain.Service
	customers customerdomain.Service
	svc       domain.Service
	params    Params
	gold      *catalogdomain.Metal
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithLocker(t, lock.NewKeyedMutex())
}

func setupWithLocker(t *testing.T, locker lock.Locker) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Metal{},
		&catalogdomain.Gemstone{},
		&catalogdomain.RateChange{},
		&productdomain.Product{},
		&productdomain.ProductComponent{},
		&customerdomain.Customer{},
		&customerdomain.PaymentHistory{},
		&domain.Bill{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	storeCfg := config.DefaultStoreConfig()
	storeCfg.DefaultGSTPercentage = 0
	holder := config.NewStaticStoreConfigHolder(storeCfg)

	catalog := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  catalogrepo.Provide(),
	})
	products := productservice.New(productservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		StoreConfig: holder,
		Repo:        productrepo.Provide(),
		Catalog:     catalog,
	})
	customerRepo := customerrepo.Provide()
	customers := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  customerRepo,
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		StoreConfig: holder,
		Customers:   customerRepo,
		Authz:       authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		Locker:      locker,
	})

	params := Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		StoreConfig: holder,
		Repo:        billrepo.Provide(),
		Products:    products,
		Customers:   customers,
		Ledger:      ledger,
	}
	svc := New(params)

	gold, err := catalog.CreateMetal(context.Background(), catalogdomain.CreateRequest{
		Name:     "Gold",
		Variants: []catalogdomain.VariantInput{{Name: "22K", Price: 5000}},
	})
	require.NoError(t, err)

	return &fixture{db: db, catalog: catalog, products: products, customers: customers, svc: svc, params: params, gold: gold}
}

func adminCtx() context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: "owner", Role: authorization.RoleAdmin})
}

func (f *fixture) chain(t *testing.T, grams float64) *productdomain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), productdomain.UpsertRequest{
		Name:   fmt.Sprintf("Chain %.0fg", grams),
		Metals: []productdomain.MetalInput{{MetalID: f.gold.ID.String(), VariantID: "22k", WeightInGrams: grams}},
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) customer(t *testing.T) *customerdomain.Customer {
	t.Helper()
	c, err := f.customers.Create(context.Background(), customerdomain.CreateRequest{Name: "Lakshmi", Phone: "9876543210"})
	require.NoError(t, err)
	return c
}

func TestCreateLinkedBillAddsDebt(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 10)
	c := f.customer(t)

	bill, err := f.svc.Create(adminCtx(), domain.CreateRequest{
		CustomerID:  c.ID.String(),
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 2}},
		Discount:    1000,
		AmountPaid:  60000,
		PaymentMode: domain.PaymentCash,
	})
	require.NoError(t, err)

	assert.Equal(t, 100000.0, bill.Subtotal)
	assert.Equal(t, 99000.0, bill.FinalAmount)
	assert.Equal(t, 39000.0, bill.Unpaid())
	assert.Equal(t, "owner", bill.GeneratedBy)
	require.NotNil(t, bill.CustomerID)
	assert.Equal(t, c.ID, *bill.CustomerID)
	assert.Equal(t, "Lakshmi", bill.Customer.Data().Name)

	got, err := f.customers.Get(context.Background(), c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 39000.0, got.TotalDebt)
	assert.Equal(t, 99000.0, got.TotalPurchases)
	assert.Equal(t, 60000.0, got.TotalPaid)
	assert.Equal(t, 1, got.BillCount)

	history, err := f.customers.History(context.Background(), c.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, customerdomain.EntrySale, history[0].Kind)
	require.NotNil(t, history[0].BillNumber)
	assert.Equal(t, bill.BillNumber, *history[0].BillNumber)
}

func TestBillNumberFormat(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)

	bill, err := f.svc.Create(adminCtx(), domain.CreateRequest{
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		AmountPaid:  5000,
		PaymentMode: domain.PaymentUPI,
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^BILL-20260314-[0-9A-Z]+$`), bill.BillNumber)
	assert.Nil(t, bill.CustomerID)
}

func TestSnapshotSurvivesProductChanges(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 10)

	bill, err := f.svc.Create(adminCtx(), domain.CreateRequest{
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		AmountPaid:  50000,
		PaymentMode: domain.PaymentCard,
	})
	require.NoError(t, err)

	_, err = f.products.Update(context.Background(), p.ID.String(), productdomain.UpsertRequest{
		Name:   "Chain renamed",
		Metals: []productdomain.MetalInput{{MetalID: f.gold.ID.String(), VariantID: "22k", WeightInGrams: 20}},
	})
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), bill.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	item := stored.Items[0]
	assert.Equal(t, "Chain 10g", item.Name)
	assert.Equal(t, 50000.0, item.UnitPrice)
	assert.Equal(t, 50000.0, item.ProductSnapshot.Pricing.TotalPrice)
	require.Len(t, item.ProductSnapshot.Metals, 1)
	assert.Equal(t, 10.0, item.ProductSnapshot.Metals[0].WeightInGrams)
}

func TestDeleteLinkedBillRestoresCounters(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 10)
	c := f.customer(t)
	ctx := adminCtx()

	bill, err := f.svc.Create(ctx, domain.CreateRequest{
		CustomerID:  c.ID.String(),
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		AmountPaid:  20000,
		PaymentMode: domain.PaymentCash,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, bill.ID.String()))

	got, err := f.customers.Get(context.Background(), c.ID.String())
	require.NoError(t, err)
	assert.Zero(t, got.TotalDebt)
	assert.Zero(t, got.TotalPurchases)
	assert.Zero(t, got.TotalPaid)
	assert.Zero(t, got.BillCount)

	history, err := f.customers.History(context.Background(), c.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, customerdomain.EntryReversal, history[1].Kind)

	_, err = f.svc.Get(context.Background(), bill.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteUnlinkedBill(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)

	bill, err := f.svc.Create(adminCtx(), domain.CreateRequest{
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		AmountPaid:  5000,
		PaymentMode: domain.PaymentCash,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(adminCtx(), bill.ID.String()))
	assert.ErrorIs(t, f.svc.Delete(adminCtx(), bill.ID.String()), domain.ErrNotFound)
}

func TestTrackDebtCreatesCustomerByPhone(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)
	ctx := adminCtx()

	req := domain.CreateRequest{
		Customer:    &domain.CustomerInput{Name: "Ravi", Phone: "+91 99887 66554"},
		TrackDebt:   true,
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMode: domain.PaymentCredit,
	}
	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	require.NotNil(t, first.CustomerID)
	require.NotNil(t, second.CustomerID)
	assert.Equal(t, *first.CustomerID, *second.CustomerID)

	got, err := f.customers.Get(context.Background(), first.CustomerID.String())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, got.TotalDebt)
	assert.Equal(t, 2, got.BillCount)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)
	item := []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}}

	cases := []struct {
		name string
		req  domain.CreateRequest
		err  error
	}{
		{"no         items", domain.CreateRequest{PaymentMode: domain.PaymentCash}, domain.ErrInvalidItems},
		{"zero       quantity", domain.CreateRequest{Items: []domain.ItemInput{{ProductID: p.ID.String()}}, PaymentMode: domain.PaymentCash}, domain.ErrInvalidQuantity},
		{"negative   discount", domain.CreateRequest{Items: item, Discount: -1, PaymentMode: domain.PaymentCash}, domain.ErrInvalidDiscount},
		{"bad        mode", domain.CreateRequest{Items: item, PaymentMode: "cheque"}, domain.ErrInvalidPaymentMode},
		{"overpaid", domain.CreateRequest{Items: item, AmountPaid: 5001, PaymentMode: domain.PaymentCash}, domain.ErrInvalidAmountPaid},
		{"credit     without customer", domain.CreateRequest{Items: item, PaymentMode: domain.PaymentCredit}, domain.ErrCustomerRequired},
		{"unknown    customer", domain.CreateRequest{CustomerID: "42", Items: item, PaymentMode: domain.PaymentCash}, domain.ErrInvalidCustomer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(adminCtx(), tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCreateRejectsInactiveProduct(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)
	inactive := false
	_, err := f.products.Update(context.Background(), p.ID.String(), productdomain.UpsertRequest{
		Name:   p.Name,
		Active: &inactive,
		Metals: []productdomain.MetalInput{{MetalID: f.gold.ID.String(), VariantID: "22k", WeightInGrams: 1}},
	})
	require.NoError(t, err)

	_, err = f.svc.Create(adminCtx(), domain.CreateRequest{
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMode: domain.PaymentCash,
	})
	assert.ErrorIs(t, err, domain.ErrInactiveProduct)
}

func TestDiscountBeyondSubtotalFloorsAtZero(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)

	bill, err := f.svc.Create(adminCtx(), domain.CreateRequest{
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		Discount:    9000,
		PaymentMode: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.Zero(t, bill.FinalAmount)
}

type downLocker struct{}

func (downLocker) Acquire(context.Context, string) (func(), error) {
	return nil, errors.New("redis down")
}

func (downLocker) Backend() string { return "redis" }

func TestFailedBillLeavesNoNewCustomer(t *testing.T) {
	f := setupWithLocker(t, downLocker{})
	p := f.chain(t, 1)

	_, err := f.svc.Create(adminCtx(), domain.CreateRequest{
		Customer:    &domain.CustomerInput{Name: "Ravi", Phone: "9988766554"},
		TrackDebt:   true,
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMode: domain.PaymentCredit,
	})
	require.Error(t, err)

	var customers, bills int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM customers`).Scan(&customers).Error)
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM bills`).Scan(&bills).Error)
	assert.Zero(t, customers)
	assert.Zero(t, bills)
}

// lateRegistration misses the first phone lookup, as when another counter
// registers the same phone between lookup and the bill transaction.
type lateRegistration struct {
	customerdomain.Service
	misses int
}

func (c *lateRegistration) FindByPhone(ctx context.Context, phone string) (*customerdomain.Customer, error) {
	if c.misses > 0 {
		c.misses--
		return nil, nil
	}
	return c.Service.FindByPhone(ctx, phone)
}

func TestTrackDebtBillsExistingCustomerAfterLostRace(t *testing.T) {
	f := setup(t)
	p := f.chain(t, 1)
	ctx := adminCtx()

	winner, err := f.customers.Create(ctx, customerdomain.CreateRequest{Name: "Ravi", Phone: "9988766555"})
	require.NoError(t, err)

	params := f.params
	params.Customers = &lateRegistration{Service: f.customers, misses: 1}
	svc := New(params)

	bill, err := svc.Create(ctx, domain.CreateRequest{
		Customer:    &domain.CustomerInput{Name: "Ravi K", Phone: "99887 66555"},
		TrackDebt:   true,
		Items:       []domain.ItemInput{{ProductID: p.ID.String(), Quantity: 1}},
		PaymentMode: domain.PaymentCredit,
	})
	require.NoError(t, err)
	require.NotNil(t, bill.CustomerID)
	assert.Equal(t, winner.ID, *bill.CustomerID)

	var customers int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM customers`).Scan(&customers).Error)
	assert.Equal(t, int64(1), customers)
	got, err := f.customers.Get(ctx, winner.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, got.BillCount)
}
