package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EntityType string

const (
	EntityMetal    EntityType = "metal"
	EntityGemstone EntityType = "gemstone"
)

func (t EntityType) Valid() bool {
	return t == EntityMetal || t == EntityGemstone
}

type MetalVariant struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Purity       string  `json:"purity,omitempty"`
	PricePerGram float64 `json:"price_per_gram"`
}

type Metal struct {
	ID        snowflake.ID                      `gorm:"primaryKey" json:"id"`
	Name      string                            `gorm:"type:text;not null;uniqueIndex:ux_metals_name" json:"name"`
	Variants  datatypes.JSONSlice[MetalVariant] `gorm:"not null" json:"variants"`
	CreatedAt time.Time                         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time                         `gorm:"not null" json:"updated_at"`
}

func (Metal) TableName() string { return "metals" }

func (m *Metal) Variant(id string) (*MetalVariant, bool) {
	for i := range m.Variants {
		if m.Variants[i].ID == id {
			return &m.Variants[i], true
		}
	}
	return nil, false
}

type GemstoneVariant struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Grade         string  `json:"grade,omitempty"`
	PricePerCarat float64 `json:"price_per_carat"`
}

type Gemstone struct {
	ID        snowflake.ID                         `gorm:"primaryKey" json:"id"`
	Name      string                               `gorm:"type:text;not null;uniqueIndex:ux_gemstones_name" json:"name"`
	Variants  datatypes.JSONSlice[GemstoneVariant] `gorm:"not null" json:"variants"`
	CreatedAt time.Time                            `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time                            `gorm:"not null" json:"updated_at"`
}

func (Gemstone) TableName() string { return "gemstones" }

func (g *Gemstone) Variant(id string) (*GemstoneVariant, bool) {
	for i := range g.Variants {
		if g.Variants[i].ID == id {
			return &g.Variants[i], true
		}
	}
	return nil, false
}

// RateChange records one committed change of a variant's market rate.
type RateChange struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	EntityType    EntityType   `gorm:"type:text;not null;index:ix_rate_changes_entity,priority:1" json:"entity_type"`
	EntityID      snowflake.ID `gorm:"not null;index:ix_rate_changes_entity,priority:2" json:"entity_id"`
	VariantID     string       `gorm:"type:text;not null" json:"variant_id"`
	VariantName   string       `gorm:"type:text;not null" json:"variant_name"`
	OldPrice      float64      `gorm:"not null" json:"old_price"`
	NewPrice      float64      `gorm:"not null" json:"new_price"`
	AffectedCount int          `gorm:"not null" json:"affected_count"`
	ChangedBy     string       `gorm:"type:text;not null" json:"changed_by"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (RateChange) TableName() string { return "rate_changes" }
