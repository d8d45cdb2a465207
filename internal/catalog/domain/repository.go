package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertMetal(ctx context.Context, db *gorm.DB, metal *Metal) error
	FindMetal(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Metal, error)
	ListMetals(ctx context.Context, db *gorm.DB) ([]Metal, error)
	UpdateMetalVariants(ctx context.Context, db *gorm.DB, metal *Metal) error

	InsertGemstone(ctx context.Context, db *gorm.DB, gemstone *Gemstone) error
	FindGemstone(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Gemstone, error)
	ListGemstones(ctx context.Context, db *gorm.DB) ([]Gemstone, error)
	UpdateGemstoneVariants(ctx context.Context, db *gorm.DB, gemstone *Gemstone) error

	InsertRateChange(ctx context.Context, db *gorm.DB, change *RateChange) error
	ListRateChanges(ctx context.Context, db *gorm.DB, entityType EntityType, entityID snowflake.ID) ([]RateChange, error)
}
