package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/aurum/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type HistoryPage struct {
	Entries  []PaymentHistory    `json:"entries"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Customer, error)
	Get(ctx context.Context, id string) (*Customer, error)
	// FindByPhone returns the live customer registered under the phone
	// number, or nil when there is none.
	FindByPhone(ctx context.Context, phone string) (*Customer, error)
	// Draft validates req and returns an unsaved customer with its id assigned.
	Draft(req CreateRequest) (*Customer, error)
	// Register inserts a drafted customer inside tx. A live customer already
	// holding the phone number yields ErrDuplicate.
	Register(ctx context.Context, tx *gorm.DB, customer *Customer) error
	// FindOrCreateByPhone returns the live customer registered under the
	// phone number, creating one inside tx when there is none.
	FindOrCreateByPhone(ctx context.Context, tx *gorm.DB, req CreateRequest) (*Customer, error)
	History(ctx context.Context, id string) ([]PaymentHistory, error)
	// ListHistory pages the ledger entries of a customer in version order.
	ListHistory(ctx context.Context, id string, page pagination.Pagination) (*HistoryPage, error)
	// Delete unlinks the customer's bills and hides the customer. Bills and
	// ledger history are kept.
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidPhone = errors.New("invalid_phone")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrDuplicate    = errors.New("duplicate_phone")
	ErrNotFound     = errors.New("not_found")
)
