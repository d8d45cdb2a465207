package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// VariantRef addresses one variant of a metal or gemstone.
type VariantRef struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	VariantID  string     `json:"variant_id"`
}

type VariantRate struct {
	Rate float64 `json:"rate"`
	Name string  `json:"name"`
}

type VariantInput struct {
	Name  string  `json:"name"`
	Grade string  `json:"grade"`
	Price float64 `json:"price"`
}

type CreateRequest struct {
	Name     string         `json:"name"`
	Variants []VariantInput `json:"variants"`
}

type Service interface {
	CreateMetal(ctx context.Context, req CreateRequest) (*Metal, error)
	CreateGemstone(ctx context.Context, req CreateRequest) (*Gemstone, error)
	GetMetal(ctx context.Context, id string) (*Metal, error)
	GetGemstone(ctx context.Context, id string) (*Gemstone, error)
	ListMetals(ctx context.Context) ([]Metal, error)
	ListGemstones(ctx context.Context) ([]Gemstone, error)

	// Lookup returns the current rate and display name of a variant.
	Lookup(ctx context.Context, ref VariantRef) (VariantRate, error)
	// LookupTx is Lookup against an open transaction.
	LookupTx(ctx context.Context, tx *gorm.DB, ref VariantRef) (VariantRate, error)
	// SetRate overwrites a variant's rate inside tx and returns the previous one.
	SetRate(ctx context.Context, tx *gorm.DB, ref VariantRef, price float64) (VariantRate, error)

	RecordRateChange(ctx context.Context, tx *gorm.DB, change *RateChange) error
	RateHistory(ctx context.Context, entityType EntityType, entityID string) ([]RateChange, error)
}

var (
	ErrInvalidEntityType = errors.New("invalid_entity_type")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidVariant    = errors.New("invalid_variant")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrDuplicateVariant  = errors.New("duplicate_variant")
	ErrDuplicateName     = errors.New("duplicate_name")
	ErrNotFound          = errors.New("not_found")
	ErrVariantNotFound   = errors.New("variant_not_found")
)
