package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
)

// RateRequest names one variant and the rate it would move to.
type RateRequest struct {
	EntityType catalogdomain.EntityType `json:"entity_type"`
	EntityID   string                   `json:"entity_id"`
	VariantID  string                   `json:"variant_id"`
	NewPrice   float64                  `json:"new_price"`
}

func (r RateRequest) Ref() catalogdomain.VariantRef {
	return catalogdomain.VariantRef{
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		VariantID:  r.VariantID,
	}
}

type ProductImpact struct {
	ProductID       snowflake.ID `json:"product_id"`
	Name            string       `json:"name"`
	OldTotalPrice   float64      `json:"old_total_price"`
	NewTotalPrice   float64      `json:"new_total_price"`
	PriceDifference float64      `json:"price_difference"`
}

type PreviewResult struct {
	EntityType    catalogdomain.EntityType `json:"entity_type"`
	EntityID      string                   `json:"entity_id"`
	VariantID     string                   `json:"variant_id"`
	VariantName   string                   `json:"variant_name"`
	OldPrice      float64                  `json:"old_price"`
	NewPrice      float64                  `json:"new_price"`
	AffectedCount int                      `json:"affected_count"`
	Products      []ProductImpact          `json:"products"`
}

type CommitResult struct {
	PreviewResult
	RateChangeID snowflake.ID `json:"rate_change_id,omitempty"`
}

type Service interface {
	// Preview reports what every affected product would cost at the new rate.
	// Nothing is persisted.
	Preview(ctx context.Context, req RateRequest) (PreviewResult, error)
	// Commit applies the rate, reprices affected products and records the change.
	Commit(ctx context.Context, req RateRequest) (CommitResult, error)
}

var (
	ErrInvalidPrice = errors.New("invalid_price")
)
