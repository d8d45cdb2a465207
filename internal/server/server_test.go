package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/aurum/internal/authorization"
	billdomain "github.com/smallbiznis/aurum/internal/bill/domain"
	"github.com/smallbiznis/aurum/internal/bill/receipt"
	billrepo "github.com/smallbiznis/aurum/internal/bill/repository"
	billservice "github.com/smallbiznis/aurum/internal/bill/service"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/aurum/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/aurum/internal/catalog/service"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/config"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	customerrepo "github.com/smallbiznis/aurum/internal/customer/repository"
	customerservice "github.com/smallbiznis/aurum/internal/customer/service"
	ledgerdomain "github.com/smallbiznis/aurum/internal/ledger/domain"
	"github.com/smallbiznis/aurum/internal/ledger/lock"
	ledgerservice "github.com/smallbiznis/aurum/internal/ledger/service"
	"github.com/smallbiznis/aurum/internal/migration"
	"github.com/smallbiznis/aurum/internal/observability"
	productdomain "github.com/smallbiznis/aurum/internal/product/domain"
	productrepo "github.com/smallbiznis/aurum/internal/product/repository"
	productservice "github.com/smallbiznis/aurum/internal/product/service"
	repricingservice "github.com/smallbiznis/aurum/internal/repricing/service"
	"github.com/smallbiznis/aurum/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	adminKey = "admin-secret"
	staffKey = "staff-secret"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Apply(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC))
	storeCfg := config.DefaultStoreConfig()
	storeCfg.DefaultGSTPercentage = 0
	holder := config.NewStaticStoreConfigHolder(storeCfg)
	log := zap.NewNop()

	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	catalog := catalogservice.New(catalogservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: catalogrepo.Provide()})
	products := productservice.New(productservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, StoreConfig: holder, Repo: productrepo.Provide(), Catalog: catalog,
	})
	repricing := repricingservice.New(repricingservice.Params{DB: db, Log: log, Clock: clk, Catalog: catalog, Products: products})
	customerRepo := customerrepo.Provide()
	customers := customerservice.New(customerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: customerRepo})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, StoreConfig: holder,
		Customers: customerRepo, Authz: authz, Locker: lock.NewKeyedMutex(),
	})
	bills := billservice.New(billservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, StoreConfig: holder, Repo: billrepo.Provide(),
		Products: products, Customers: customers, Ledger: ledger,
	})

	cfg := config.Config{AuthAPIKeys: map[string]string{
		HashAPIKey(adminKey): authorization.RoleAdmin,
		HashAPIKey(staffKey): authorization.RoleStaff,
	}}

	return NewServer(ServerParams{
		Gin:          NewEngine(observability.Config{}, nil),
		Cfg:          cfg,
		DB:           db,
		StoreConfig:  holder,
		AuthzSvc:     authz,
		CatalogSvc:   catalog,
		ProductSvc:   products,
		RepricingSvc: repricing,
		CustomerSvc:  customers,
		LedgerSvc:    ledger,
		BillSvc:      bills,
		Receipts:     receipt.New(),
	})
}

func do(t *testing.T, s *Server, method, path, key string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Data
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error.Type
}

type billResponse struct {
	ID         snowflake.ID `json:"id"`
	BillNumber string       `json:"bill_number"`
	Display    struct {
		Due string `json:"due"`
	} `json:"display"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/metals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorType(t, rec))

	rec = do(t, s, http.MethodGet, "/api/metals", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/metals", staffKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaffCannotCommitRates(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/rates/commit", staffKey, map[string]any{
		"entity_type": "metal", "entity_id": "1", "variant_id": "22k", "new_price": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorType(t, rec))
}

func TestBillAndDebtFlow(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/metals", adminKey, catalogdomain.CreateRequest{
		Name:     "Gold",
		Variants: []catalogdomain.VariantInput{{Name: "22K", Price: 5000}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gold := decodeData[catalogdomain.Metal](t, rec)

	rec = do(t, s, http.MethodPost, "/api/products", adminKey, productdomain.UpsertRequest{
		Name:   "Bangle",
		Metals: []productdomain.MetalInput{{MetalID: gold.ID.String(), VariantID: "22k", WeightInGrams: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	product := decodeData[productdomain.Product](t, rec)
	assert.Equal(t, 5000.0, product.TotalPrice)

	rec = do(t, s, http.MethodPost, "/api/customers", staffKey, customerdomain.CreateRequest{Name: "Asha", Phone: "9812345678"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decodeData[customerdomain.Customer](t, rec)

	rec = do(t, s, http.MethodPost, "/api/bills", staffKey, billdomain.CreateRequest{
		CustomerID:  customer.ID.String(),
		Items:       []billdomain.ItemInput{{ProductID: product.ID.String(), Quantity: 1}},
		AmountPaid:  2000,
		PaymentMode: billdomain.PaymentCash,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bill := decodeData[billResponse](t, rec)
	assert.Equal(t, "₹3,000.00", bill.Display.Due)

	rec = do(t, s, http.MethodGet, "/api/bills/"+bill.ID.String()+"/receipt", staffKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	path := "/api/customers/" + customer.ID.String() + "/pay-debt"
	rec = do(t, s, http.MethodPost, path, staffKey, map[string]any{"amount": 1000}, headerIdempotencyKey, "pay-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeData[customerdomain.PaymentHistory](t, rec)
	rec = do(t, s, http.MethodPost, path, staffKey, map[string]any{"amount": 1000}, headerIdempotencyKey, "pay-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decodeData[customerdomain.PaymentHistory](t, rec)
	assert.Equal(t, first.ID, replay.ID)

	rec = do(t, s, http.MethodGet, "/api/customers/"+customer.ID.String(), staffKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[customerdomain.Customer](t, rec)
	assert.Equal(t, 2000.0, got.TotalDebt)

	rec = do(t, s, http.MethodGet, "/api/customers/"+customer.ID.String()+"/history?page_size=1", staffKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeData[customerdomain.HistoryPage](t, rec)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, customerdomain.EntrySale, page.Entries[0].Kind)
	assert.True(t, page.PageInfo.HasMore)

	rec = do(t, s, http.MethodGet, "/api/customers/"+customer.ID.String()+"/history?page_token="+page.PageInfo.NextPageToken, staffKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page = decodeData[customerdomain.HistoryPage](t, rec)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, customerdomain.EntryPayment, page.Entries[0].Kind)
	assert.False(t, page.PageInfo.HasMore)

	rec = do(t, s, http.MethodGet, "/api/customers/"+customer.ID.String()+"/history?page_token=bogus", staffKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/customers/"+customer.ID.String()+"/adjust-debt", staffKey, map[string]any{"amount": 0})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/customers/"+customer.ID.String()+"/reconcile", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeData[ledgerdomain.Reconciliation](t, rec).InSync)
}

func TestPayDebtWithoutDebtIsPreconditionFailed(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/customers", staffKey, customerdomain.CreateRequest{Name: "Dev", Phone: "9800000001"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decodeData[customerdomain.Customer](t, rec)

	rec = do(t, s, http.MethodPost, "/api/customers/"+customer.ID.String()+"/pay-debt", staffKey, map[string]any{"amount": 10})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "precondition_failed", errorType(t, rec))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation sentinel", billdomain.ErrInvalidItems, http.StatusBadRequest},
		{"wrapped validation", apperr.Validation(customerdomain.ErrInvalidPhone), http.StatusBadRequest},
		{"not found", productdomain.ErrNotFound, http.StatusNotFound},
		{"precondition", ledgerdomain.ErrNoOutstandingDebt, http.StatusPreconditionFailed},
		{"conflict", customerdomain.ErrDuplicate, http.StatusConflict},
		{"idempotency reuse", ledgerdomain.ErrIdempotencyKeyReuse, http.StatusConflict},
		{"transient", apperr.Transient(errors.New("db down")), http.StatusServiceUnavailable},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden},
		{"unauthorized", apperr.Unauthorized(authorization.ErrInvalidActor), http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}

	_, payload := mapError(apperr.Validation(customerdomain.ErrInvalidPhone))
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_phone", payload.Errors[0].Code)
	assert.Equal(t, "phone", payload.Errors[0].Field)
}
