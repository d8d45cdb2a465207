package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/config"
	"github.com/smallbiznis/aurum/internal/pricing"
	"github.com/smallbiznis/aurum/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	StoreConfig *config.StoreConfigHolder
	Repo        domain.Repository
	Catalog     catalogdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	storeConfig *config.StoreConfigHolder
	repo        domain.Repository
	catalog     catalogdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("product.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		storeConfig: p.StoreConfig,
		repo:        p.Repo,
		catalog:     p.Catalog,
	}
}

func (s *Service) Create(ctx context.Context, req domain.UpsertRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:        s.genID.Generate(),
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyRequest(ctx, p, req); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		productSlug, err := s.uniqueSlug(ctx, tx, name, p.ID)
		if err != nil {
			return err
		}
		p.Slug = productSlug
		if err := s.repo.Insert(ctx, tx, p); err != nil {
			return err
		}
		return s.repo.ReplaceComponents(ctx, tx, p.ID, p.Components())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", p.ID.String()),
		zap.Float64("total_price", p.TotalPrice),
	)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpsertRequest) (*domain.Product, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.ErrInvalidName
	}

	p, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}

	expected := p.Version
	if err := s.applyRequest(ctx, p, req); err != nil {
		return nil, err
	}
	p.Version = expected + 1
	p.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, p, expected); err != nil {
			return err
		}
		return s.repo.ReplaceComponents(ctx, tx, p.ID, p.Components())
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) FindByComponent(ctx context.Context, tx *gorm.DB, ref catalogdomain.VariantRef) ([]domain.Product, error) {
	if tx == nil {
		tx = s.db
	}
	return s.repo.FindByComponent(ctx, tx, ref.EntityType, ref.EntityID, ref.VariantID)
}

func (s *Service) Reprice(ctx context.Context, tx *gorm.DB, p *domain.Product, res pricing.Result) error {
	expected := p.Version
	now := s.clock.Now()
	p.ApplyPricing(res, now)
	p.Version = expected + 1
	p.UpdatedAt = now
	return s.repo.Update(ctx, tx, p, expected)
}

// applyRequest resolves current catalog rates for the submitted composition
// and overwrites every derived field of p with a fresh engine run.
func (s *Service) applyRequest(ctx context.Context, p *domain.Product, req domain.UpsertRequest) error {
	in := pricing.Input{
		Metals:         make([]pricing.MetalComponent, 0, len(req.Metals)),
		Gemstones:      make([]pricing.GemstoneComponent, 0, len(req.Gemstones)),
		MakingCharges:  req.MakingCharges,
		ProductWastage: req.ProductWastage,
		GSTPercentage:  s.storeConfig.Get().DefaultGSTPercentage,
		OtherCharges:   req.OtherCharges,
	}
	if req.GSTPercentage != nil {
		in.GSTPercentage = *req.GSTPercentage
	}

	for _, m := range req.Metals {
		component := pricing.MetalComponent{
			MetalID:          strings.TrimSpace(m.MetalID),
			VariantID:        strings.TrimSpace(m.VariantID),
			WeightInGrams:    m.WeightInGrams,
			ComponentWastage: m.ComponentWastage,
		}
		if component.MetalID != "" && component.VariantID != "" {
			rate, err := s.catalog.Lookup(ctx, catalogdomain.VariantRef{
				EntityType: catalogdomain.EntityMetal,
				EntityID:   component.MetalID,
				VariantID:  component.VariantID,
			})
			if err != nil {
				return err
			}
			component.PricePerGram = rate.Rate
			component.VariantName = rate.Name
		}
		in.Metals = append(in.Metals, component)
	}

	for _, g := range req.Gemstones {
		component := pricing.GemstoneComponent{
			GemstoneID:       strings.TrimSpace(g.GemstoneID),
			VariantID:        strings.TrimSpace(g.VariantID),
			WeightInCarats:   g.WeightInCarats,
			Quantity:         g.Quantity,
			ComponentWastage: g.ComponentWastage,
		}
		if component.GemstoneID != "" && component.VariantID != "" {
			rate, err := s.catalog.Lookup(ctx, catalogdomain.VariantRef{
				EntityType: catalogdomain.EntityGemstone,
				EntityID:   component.GemstoneID,
				VariantID:  component.VariantID,
			})
			if err != nil {
				return err
			}
			component.PricePerCarat = rate.Rate
			component.VariantName = rate.Name
		}
		in.Gemstones = append(in.Gemstones, component)
	}

	res, err := pricing.Calculate(in)
	if err != nil {
		return err
	}

	p.Name = strings.TrimSpace(req.Name)
	p.SKU = strings.TrimSpace(req.SKU)
	p.Category = strings.TrimSpace(req.Category)
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			p.Description = nil
		} else {
			p.Description = &description
		}
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	p.MakingCharges = datatypes.NewJSONType(in.MakingCharges)
	p.ProductWastage = datatypes.NewJSONType(in.ProductWastage)
	p.GSTPercentage = in.GSTPercentage
	p.OtherCharges = datatypes.JSONSlice[pricing.OtherCharge](append([]pricing.OtherCharge{}, in.OtherCharges...))
	p.ApplyPricing(res, s.clock.Now())
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "product"
	}
	exists, err := s.repo.SlugExists(ctx, tx, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	return base + "-" + strings.ToLower(id.Base36()), nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
