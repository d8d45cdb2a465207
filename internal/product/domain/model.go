package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/pricing"
	"gorm.io/datatypes"
)

type Product struct {
	ID             snowflake.ID                                   `json:"id" gorm:"primaryKey"`
	Name           string                                         `json:"name" gorm:"type:text;not null"`
	Slug           string                                         `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_products_slug"`
	SKU            string                                         `json:"sku,omitempty" gorm:"type:text"`
	Category       string                                         `json:"category,omitempty" gorm:"type:text"`
	Description    *string                                        `json:"description,omitempty" gorm:"type:text"`
	Active         bool                                           `json:"active" gorm:"not null;default:true"`
	Metals         datatypes.JSONSlice[pricing.MetalComponent]    `json:"metals" gorm:"not null"`
	Gemstones      datatypes.JSONSlice[pricing.GemstoneComponent] `json:"gemstones" gorm:"not null"`
	MakingCharges  datatypes.JSONType[pricing.Charge]             `json:"making_charges" gorm:"not null"`
	ProductWastage datatypes.JSONType[pricing.Charge]             `json:"product_wastage" gorm:"not null"`
	GSTPercentage  float64                                        `json:"gst_percentage" gorm:"not null;default:0"`
	OtherCharges   datatypes.JSONSlice[pricing.OtherCharge]       `json:"other_charges" gorm:"not null"`

	MetalTotal          float64   `json:"metal_total" gorm:"not null;default:0"`
	GemstoneTotal       float64   `json:"gemstone_total" gorm:"not null;default:0"`
	MakingChargeAmount  float64   `json:"making_charge_amount" gorm:"not null;default:0"`
	WastageChargeAmount float64   `json:"wastage_charge_amount" gorm:"not null;default:0"`
	OtherChargesTotal   float64   `json:"other_charges_total" gorm:"not null;default:0"`
	Subtotal            float64   `json:"subtotal" gorm:"not null;default:0"`
	GSTAmount           float64   `json:"gst_amount" gorm:"not null;default:0"`
	TotalPrice          float64   `json:"total_price" gorm:"not null;default:0"`
	LastPriceSync       time.Time `json:"last_price_sync" gorm:"not null"`

	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Snapshot is the derived pricing state frozen into bills.
type Snapshot struct {
	MetalTotal          float64   `json:"metal_total"`
	GemstoneTotal       float64   `json:"gemstone_total"`
	MakingChargeAmount  float64   `json:"making_charge_amount"`
	WastageChargeAmount float64   `json:"wastage_charge_amount"`
	OtherChargesTotal   float64   `json:"other_charges_total"`
	Subtotal            float64   `json:"subtotal"`
	GSTAmount           float64   `json:"gst_amount"`
	TotalPrice          float64   `json:"total_price"`
	LastPriceSync       time.Time `json:"last_price_sync"`
}

func (p *Product) Snapshot() Snapshot {
	return Snapshot{
		MetalTotal:          p.MetalTotal,
		GemstoneTotal:       p.GemstoneTotal,
		MakingChargeAmount:  p.MakingChargeAmount,
		WastageChargeAmount: p.WastageChargeAmount,
		OtherChargesTotal:   p.OtherChargesTotal,
		Subtotal:            p.Subtotal,
		GSTAmount:           p.GSTAmount,
		TotalPrice:          p.TotalPrice,
		LastPriceSync:       p.LastPriceSync,
	}
}

// PricingInput rebuilds the engine input from the stored composition.
func (p *Product) PricingInput() pricing.Input {
	metals := make([]pricing.MetalComponent, len(p.Metals))
	copy(metals, p.Metals)
	gemstones := make([]pricing.GemstoneComponent, len(p.Gemstones))
	copy(gemstones, p.Gemstones)
	others := make([]pricing.OtherCharge, len(p.OtherCharges))
	copy(others, p.OtherCharges)

	return pricing.Input{
		Metals:         metals,
		Gemstones:      gemstones,
		MakingCharges:  p.MakingCharges.Data(),
		ProductWastage: p.ProductWastage.Data(),
		GSTPercentage:  p.GSTPercentage,
		OtherCharges:   others,
	}
}

// ApplyPricing copies an engine result onto the product and stamps the sync time.
func (p *Product) ApplyPricing(res pricing.Result, at time.Time) {
	p.Metals = datatypes.JSONSlice[pricing.MetalComponent](res.Metals)
	p.Gemstones = datatypes.JSONSlice[pricing.GemstoneComponent](res.Gemstones)
	p.MetalTotal = res.MetalTotal
	p.GemstoneTotal = res.GemstoneTotal
	p.MakingChargeAmount = res.MakingChargeAmount
	p.WastageChargeAmount = res.WastageChargeAmount
	p.OtherChargesTotal = res.OtherChargesTotal
	p.Subtotal = res.Subtotal
	p.GSTAmount = res.GSTAmount
	p.TotalPrice = res.TotalPrice
	p.LastPriceSync = at
}

// Components lists the catalog variants this product is composed of.
func (p *Product) Components() []Component {
	out := make([]Component, 0, len(p.Metals)+len(p.Gemstones))
	seen := make(map[Component]struct{}, cap(out))
	add := func(c Component) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, m := range p.Metals {
		add(Component{Kind: catalogdomain.EntityMetal, EntityID: m.MetalID, VariantID: m.VariantID})
	}
	for _, g := range p.Gemstones {
		add(Component{Kind: catalogdomain.EntityGemstone, EntityID: g.GemstoneID, VariantID: g.VariantID})
	}
	return out
}

type Component struct {
	Kind      catalogdomain.EntityType
	EntityID  string
	VariantID string
}

// ProductComponent indexes products by the catalog variants they reference.
type ProductComponent struct {
	ProductID snowflake.ID             `gorm:"primaryKey;autoIncrement:false"`
	Kind      catalogdomain.EntityType `gorm:"primaryKey;type:text;index:ix_product_components_variant,priority:1"`
	EntityID  string                   `gorm:"primaryKey;type:text;index:ix_product_components_variant,priority:2"`
	VariantID string                   `gorm:"primaryKey;type:text;index:ix_product_components_variant,priority:3"`
}

func (ProductComponent) TableName() string { return "product_components" }
