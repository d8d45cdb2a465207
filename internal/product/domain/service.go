package domain

import (
	"context"
	"errors"

	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/pricing"
	"gorm.io/gorm"
)

type MetalInput struct {
	MetalID          string         `json:"metal_id"`
	VariantID        string         `json:"variant_id"`
	WeightInGrams    float64        `json:"weight_in_grams"`
	ComponentWastage pricing.Charge `json:"component_wastage"`
}

type GemstoneInput struct {
	GemstoneID       string         `json:"gemstone_id"`
	VariantID        string         `json:"variant_id"`
	WeightInCarats   float64        `json:"weight_in_carats"`
	Quantity         int            `json:"quantity"`
	ComponentWastage pricing.Charge `json:"component_wastage"`
}

// UpsertRequest carries composition and charges only. Prices are always derived.
type UpsertRequest struct {
	Name           string                `json:"name"`
	SKU            string                `json:"sku"`
	Category       string                `json:"category"`
	Description    *string               `json:"description"`
	Active         *bool                 `json:"active"`
	Metals         []MetalInput          `json:"metals"`
	Gemstones      []GemstoneInput       `json:"gemstones"`
	MakingCharges  pricing.Charge        `json:"making_charges"`
	ProductWastage pricing.Charge        `json:"product_wastage"`
	GSTPercentage  *float64              `json:"gst_percentage"`
	OtherCharges   []pricing.OtherCharge `json:"other_charges"`
}

type Service interface {
	Create(ctx context.Context, req UpsertRequest) (*Product, error)
	Update(ctx context.Context, id string, req UpsertRequest) (*Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	// FindByComponent scans products whose composition references the exact variant.
	FindByComponent(ctx context.Context, tx *gorm.DB, ref catalogdomain.VariantRef) ([]Product, error)
	// Reprice persists a freshly computed result for product inside tx.
	Reprice(ctx context.Context, tx *gorm.DB, product *Product, res pricing.Result) error
}

var (
	ErrInvalidID   = errors.New("invalid_id")
	ErrInvalidName = errors.New("invalid_name")
	ErrNotFound    = errors.New("not_found")
)
