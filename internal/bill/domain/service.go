package domain

import (
	"context"
	"errors"
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CustomerInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type CreateRequest struct {
	// CustomerID links an existing customer. When empty and TrackDebt is set,
	// the customer is found or created by phone.
	CustomerID  string         `json:"customer_id"`
	Customer    *CustomerInput `json:"customer"`
	TrackDebt   bool           `json:"track_debt"`
	Items       []ItemInput    `json:"items"`
	Discount    float64        `json:"discount"`
	AmountPaid  float64        `json:"amount_paid"`
	PaymentMode PaymentMode    `json:"payment_mode"`
	Notes       string         `json:"notes"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Bill, error)
	Get(ctx context.Context, id string) (*Bill, error)
	// Delete reverses the bill's effect on its customer's ledger and removes it for good.
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidItems       = errors.New("invalid_items")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrInvalidAmountPaid  = errors.New("invalid_amount_paid")
	ErrInvalidPaymentMode = errors.New("invalid_payment_mode")
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrCustomerRequired   = errors.New("customer_required")
	ErrInactiveProduct    = errors.New("inactive_product")
	ErrNotFound           = errors.New("not_found")
)
