package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned when a conditional update finds the row already moved.
var ErrVersionConflict = errors.New("version_conflict")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	// Update writes product when its stored version equals expectedVersion.
	Update(ctx context.Context, db *gorm.DB, product *Product, expectedVersion int64) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	ReplaceComponents(ctx context.Context, db *gorm.DB, productID snowflake.ID, components []Component) error
	FindByComponent(ctx context.Context, db *gorm.DB, kind catalogdomain.EntityType, entityID, variantID string) ([]Product, error)
}
