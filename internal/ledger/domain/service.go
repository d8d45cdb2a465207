package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	"gorm.io/gorm"
)

type SaleRequest struct {
	CustomerID  snowflake.ID
	BillID      snowflake.ID
	BillNumber  string
	FinalAmount float64
	AmountPaid  float64
}

type ReversalRequest struct {
	CustomerID  snowflake.ID
	BillID      snowflake.ID
	BillNumber  string
	FinalAmount float64
	AmountPaid  float64
}

type PaymentRequest struct {
	CustomerID     string  `json:"-"`
	Amount         float64 `json:"amount"`
	Note           string  `json:"note"`
	IdempotencyKey string  `json:"-"`
}

type AdjustRequest struct {
	CustomerID     string  `json:"-"`
	Amount         float64 `json:"amount"`
	Note           string  `json:"note"`
	IdempotencyKey string  `json:"-"`
}

// Reconciliation compares the cached customer balance with a replay of its history.
type Reconciliation struct {
	Cached   Balance `json:"cached"`
	Replayed Balance `json:"replayed"`
	Entries  int     `json:"entries"`
	InSync   bool    `json:"in_sync"`
}

type Service interface {
	// WithCustomer runs fn in one transaction while holding the customer's
	// lock. Version conflicts rerun fn from a fresh transaction.
	WithCustomer(ctx context.Context, customerID snowflake.ID, fn func(ctx context.Context, tx *gorm.DB) error) error

	// RecordSale and ReverseBill must run inside WithCustomer for the same customer.
	RecordSale(ctx context.Context, tx *gorm.DB, req SaleRequest) (*customerdomain.PaymentHistory, error)
	ReverseBill(ctx context.Context, tx *gorm.DB, req ReversalRequest) (*customerdomain.PaymentHistory, error)

	RecordPayment(ctx context.Context, req PaymentRequest) (*customerdomain.PaymentHistory, error)
	Adjust(ctx context.Context, req AdjustRequest) (*customerdomain.PaymentHistory, error)

	Reconcile(ctx context.Context, customerID string) (Reconciliation, error)
}

var (
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidBill         = errors.New("invalid_bill")
	ErrNoOutstandingDebt   = errors.New("no_outstanding_debt")
	ErrCustomerNotFound    = errors.New("customer_not_found")
	ErrOutsideScope        = errors.New("ledger_scope_required")
	ErrIdempotencyKeyReuse = errors.New("idempotency_key_reused")
	ErrHistoryDrift        = errors.New("ledger_history_drift")
)
