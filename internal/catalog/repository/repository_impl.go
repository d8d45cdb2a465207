package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertMetal(ctx context.Context, db *gorm.DB, metal *domain.Metal) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metals (id, name, variants, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		metal.ID,
		metal.Name,
		metal.Variants,
		metal.CreatedAt,
		metal.UpdatedAt,
	).Error
}

func (r *repo) FindMetal(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Metal, error) {
	var m domain.Metal
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, variants, created_at, updated_at
		 FROM metals WHERE id = ?`,
		id,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) ListMetals(ctx context.Context, db *gorm.DB) ([]domain.Metal, error) {
	var items []domain.Metal
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, variants, created_at, updated_at
		 FROM metals ORDER BY name ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateMetalVariants(ctx context.Context, db *gorm.DB, metal *domain.Metal) error {
	return db.WithContext(ctx).Exec(
		`UPDATE metals SET variants = ?, updated_at = ? WHERE id = ?`,
		metal.Variants,
		metal.UpdatedAt,
		metal.ID,
	).Error
}

func (r *repo) InsertGemstone(ctx context.Context, db *gorm.DB, gemstone *domain.Gemstone) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO gemstones (id, name, variants, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		gemstone.ID,
		gemstone.Name,
		gemstone.Variants,
		gemstone.CreatedAt,
		gemstone.UpdatedAt,
	).Error
}

func (r *repo) FindGemstone(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Gemstone, error) {
	var g domain.Gemstone
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, variants, created_at, updated_at
		 FROM gemstones WHERE id = ?`,
		id,
	).Scan(&g).Error
	if err != nil {
		return nil, err
	}
	if g.ID == 0 {
		return nil, nil
	}
	return &g, nil
}

func (r *repo) ListGemstones(ctx context.Context, db *gorm.DB) ([]domain.Gemstone, error) {
	var items []domain.Gemstone
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, variants, created_at, updated_at
		 FROM gemstones ORDER BY name ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateGemstoneVariants(ctx context.Context, db *gorm.DB, gemstone *domain.Gemstone) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gemstones SET variants = ?, updated_at = ? WHERE id = ?`,
		gemstone.Variants,
		gemstone.UpdatedAt,
		gemstone.ID,
	).Error
}

func (r *repo) InsertRateChange(ctx context.Context, db *gorm.DB, change *domain.RateChange) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rate_changes (id, entity_type, entity_id, variant_id, variant_name, old_price, new_price, affected_count, changed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID,
		change.EntityType,
		change.EntityID,
		change.VariantID,
		change.VariantName,
		change.OldPrice,
		change.NewPrice,
		change.AffectedCount,
		change.ChangedBy,
		change.CreatedAt,
	).Error
}

func (r *repo) ListRateChanges(ctx context.Context, db *gorm.DB, entityType domain.EntityType, entityID snowflake.ID) ([]domain.RateChange, error) {
	var items []domain.RateChange
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_type, entity_id, variant_id, variant_name, old_price, new_price, affected_count, changed_by, created_at
		 FROM rate_changes
		 WHERE entity_type = ? AND entity_id = ?
		 ORDER BY created_at DESC, id DESC`,
		entityType,
		entityID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
