package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/product/domain"
	"gorm.io/gorm"
)

const productColumns = `id, name, slug, sku, category, description, active, metals, gemstones, making_charges,
	product_wastage, gst_percentage, other_charges, metal_total, gemstone_total, making_charge_amount,
	wastage_charge_amount, other_charges_total, subtotal, gst_amount, total_price, last_price_sync,
	version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (`+productColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Name,
		p.Slug,
		p.SKU,
		p.Category,
		p.Description,
		p.Active,
		p.Metals,
		p.Gemstones,
		p.MakingCharges,
		p.ProductWastage,
		p.GSTPercentage,
		p.OtherCharges,
		p.MetalTotal,
		p.GemstoneTotal,
		p.MakingChargeAmount,
		p.WastageChargeAmount,
		p.OtherChargesTotal,
		p.Subtotal,
		p.GSTAmount,
		p.TotalPrice,
		p.LastPriceSync,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Product, expectedVersion int64) error {
	if p == nil {
		return gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET name = ?, sku = ?, category = ?, description = ?, active = ?, metals = ?, gemstones = ?,
		     making_charges = ?, product_wastage = ?, gst_percentage = ?, other_charges = ?,
		     metal_total = ?, gemstone_total = ?, making_charge_amount = ?, wastage_charge_amount = ?,
		     other_charges_total = ?, subtotal = ?, gst_amount = ?, total_price = ?, last_price_sync = ?,
		     version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		p.Name,
		p.SKU,
		p.Category,
		p.Description,
		p.Active,
		p.Metals,
		p.Gemstones,
		p.MakingCharges,
		p.ProductWastage,
		p.GSTPercentage,
		p.OtherCharges,
		p.MetalTotal,
		p.GemstoneTotal,
		p.MakingChargeAmount,
		p.WastageChargeAmount,
		p.OtherChargesTotal,
		p.Subtotal,
		p.GSTAmount,
		p.TotalPrice,
		p.LastPriceSync,
		p.Version,
		p.UpdatedAt,
		p.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM products WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ReplaceComponents(ctx context.Context, db *gorm.DB, productID snowflake.ID, components []domain.Component) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM product_components WHERE product_id = ?`,
		productID,
	).Error; err != nil {
		return err
	}
	for _, c := range components {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO product_components (product_id, kind, entity_id, variant_id)
			 VALUES (?, ?, ?, ?)`,
			productID,
			c.Kind,
			c.EntityID,
			c.VariantID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByComponent(ctx context.Context, db *gorm.DB, kind catalogdomain.EntityType, entityID, variantID string) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products
		 WHERE id IN (
		   SELECT product_id FROM product_components
		   WHERE kind = ? AND entity_id = ? AND variant_id = ?
		 )
		 ORDER BY id ASC`,
		kind,
		entityID,
		variantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
