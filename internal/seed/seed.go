package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/clock"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type metalSeed struct {
	name     string
	variants []catalogdomain.MetalVariant
}

type gemstoneSeed struct {
	name     string
	variants []catalogdomain.GemstoneVariant
}

var defaultMetals = []metalSeed{
	{name: "Gold", variants: []catalogdomain.MetalVariant{
		{Name: "24K", Purity: "99.9%", PricePerGram: 7200},
		{Name: "22K", Purity: "91.6%", PricePerGram: 6600},
		{Name: "18K", Purity: "75.0%", PricePerGram: 5400},
	}},
	{name: "Silver", variants: []catalogdomain.MetalVariant{
		{Name: "925", Purity: "92.5%", PricePerGram: 90},
	}},
	{name: "Platinum", variants: []catalogdomain.MetalVariant{
		{Name: "950", Purity: "95.0%", PricePerGram: 3200},
	}},
}

var defaultGemstones = []gemstoneSeed{
	{name: "Diamond", variants: []catalogdomain.GemstoneVariant{
		{Name: "VVS1", Grade: "VVS1", PricePerCarat: 150000},
		{Name: "VS1", Grade: "VS1", PricePerCarat: 90000},
	}},
	{name: "Ruby", variants: []catalogdomain.GemstoneVariant{
		{Name: "AAA", Grade: "AAA", PricePerCarat: 25000},
	}},
	{name: "Emerald", variants: []catalogdomain.GemstoneVariant{
		{Name: "AA", Grade: "AA", PricePerCarat: 18000},
	}},
}

// EnsureCatalog seeds the default metals and gemstones when the catalog is empty.
func EnsureCatalog(ctx context.Context, db *gorm.DB, clk clock.Clock, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var metals, gemstones int64
		if err := tx.Model(&catalogdomain.Metal{}).Count(&metals).Error; err != nil {
			return err
		}
		if err := tx.Model(&catalogdomain.Gemstone{}).Count(&gemstones).Error; err != nil {
			return err
		}
		if metals > 0 || gemstones > 0 {
			return nil
		}

		now := clk.Now()
		for _, m := range defaultMetals {
			variants := make([]catalogdomain.MetalVariant, len(m.variants))
			for i, v := range m.variants {
				v.ID = slug.Make(v.Name)
				variants[i] = v
			}
			metal := catalogdomain.Metal{
				ID:        node.Generate(),
				Name:      m.name,
				Variants:  datatypes.JSONSlice[catalogdomain.MetalVariant](variants),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&metal).Error; err != nil {
				return err
			}
		}
		for _, g := range defaultGemstones {
			variants := make([]catalogdomain.GemstoneVariant, len(g.variants))
			for i, v := range g.variants {
				v.ID = slug.Make(v.Name)
				variants[i] = v
			}
			gemstone := catalogdomain.Gemstone{
				ID:        node.Generate(),
				Name:      g.name,
				Variants:  datatypes.JSONSlice[catalogdomain.GemstoneVariant](variants),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&gemstone).Error; err != nil {
				return err
			}
		}

		if log != nil {
			log.Info("seeded default catalog",
				zap.Int("metals", len(defaultMetals)),
				zap.Int("gemstones", len(defaultGemstones)),
			)
		}
		return nil
	})
}
