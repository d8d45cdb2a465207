package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateMetal(ctx context.Context, req domain.CreateRequest) (*domain.Metal, error) {
	name, variants, err := normalizeCreate(req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	metal := domain.Metal{
		ID:        s.genID.Generate(),
		Name:      name,
		Variants:  make(datatypes.JSONSlice[domain.MetalVariant], 0, len(variants)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, v := range variants {
		metal.Variants = append(metal.Variants, domain.MetalVariant{
			ID:           v.id,
			Name:         v.Name,
			Purity:       v.Grade,
			PricePerGram: v.Price,
		})
	}

	if err := s.repo.InsertMetal(ctx, s.db, &metal); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	return &metal, nil
}

func (s *Service) CreateGemstone(ctx context.Context, req domain.CreateRequest) (*domain.Gemstone, error) {
	name, variants, err := normalizeCreate(req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	gemstone := domain.Gemstone{
		ID:        s.genID.Generate(),
		Name:      name,
		Variants:  make(datatypes.JSONSlice[domain.GemstoneVariant], 0, len(variants)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, v := range variants {
		gemstone.Variants = append(gemstone.Variants, domain.GemstoneVariant{
			ID:            v.id,
			Name:          v.Name,
			Grade:         v.Grade,
			PricePerCarat: v.Price,
		})
	}

	if err := s.repo.InsertGemstone(ctx, s.db, &gemstone); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	return &gemstone, nil
}

func (s *Service) GetMetal(ctx context.Context, id string) (*domain.Metal, error) {
	metalID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	metal, err := s.repo.FindMetal(ctx, s.db, metalID)
	if err != nil {
		return nil, err
	}
	if metal == nil {
		return nil, domain.ErrNotFound
	}
	return metal, nil
}

func (s *Service) GetGemstone(ctx context.Context, id string) (*domain.Gemstone, error) {
	gemstoneID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	gemstone, err := s.repo.FindGemstone(ctx, s.db, gemstoneID)
	if err != nil {
		return nil, err
	}
	if gemstone == nil {
		return nil, domain.ErrNotFound
	}
	return gemstone, nil
}

func (s *Service) ListMetals(ctx context.Context) ([]domain.Metal, error) {
	return s.repo.ListMetals(ctx, s.db)
}

func (s *Service) ListGemstones(ctx context.Context) ([]domain.Gemstone, error) {
	return s.repo.ListGemstones(ctx, s.db)
}

func (s *Service) Lookup(ctx context.Context, ref domain.VariantRef) (domain.VariantRate, error) {
	return s.LookupTx(ctx, s.db, ref)
}

func (s *Service) LookupTx(ctx context.Context, tx *gorm.DB, ref domain.VariantRef) (domain.VariantRate, error) {
	entityID, err := validateRef(ref)
	if err != nil {
		return domain.VariantRate{}, err
	}

	switch ref.EntityType {
	case domain.EntityMetal:
		metal, err := s.repo.FindMetal(ctx, tx, entityID)
		if err != nil {
			return domain.VariantRate{}, err
		}
		if metal == nil {
			return domain.VariantRate{}, domain.ErrNotFound
		}
		variant, ok := metal.Variant(ref.VariantID)
		if !ok {
			return domain.VariantRate{}, domain.ErrVariantNotFound
		}
		return domain.VariantRate{Rate: variant.PricePerGram, Name: variant.Name}, nil
	default:
		gemstone, err := s.repo.FindGemstone(ctx, tx, entityID)
		if err != nil {
			return domain.VariantRate{}, err
		}
		if gemstone == nil {
			return domain.VariantRate{}, domain.ErrNotFound
		}
		variant, ok := gemstone.Variant(ref.VariantID)
		if !ok {
			return domain.VariantRate{}, domain.ErrVariantNotFound
		}
		return domain.VariantRate{Rate: variant.PricePerCarat, Name: variant.Name}, nil
	}
}

func (s *Service) SetRate(ctx context.Context, tx *gorm.DB, ref domain.VariantRef, price float64) (domain.VariantRate, error) {
	entityID, err := validateRef(ref)
	if err != nil {
		return domain.VariantRate{}, err
	}
	if !validPrice(price) {
		return domain.VariantRate{}, domain.ErrInvalidPrice
	}

	now := s.clock.Now()
	switch ref.EntityType {
	case domain.EntityMetal:
		metal, err := s.repo.FindMetal(ctx, tx, entityID)
		if err != nil {
			return domain.VariantRate{}, err
		}
		if metal == nil {
			return domain.VariantRate{}, domain.ErrNotFound
		}
		variant, ok := metal.Variant(ref.VariantID)
		if !ok {
			return domain.VariantRate{}, domain.ErrVariantNotFound
		}
		previous := domain.VariantRate{Rate: variant.PricePerGram, Name: variant.Name}
		variant.PricePerGram = price
		metal.UpdatedAt = now
		if err := s.repo.UpdateMetalVariants(ctx, tx, metal); err != nil {
			return domain.VariantRate{}, err
		}
		return previous, nil
	default:
		gemstone, err := s.repo.FindGemstone(ctx, tx, entityID)
		if err != nil {
			return domain.VariantRate{}, err
		}
		if gemstone == nil {
			return domain.VariantRate{}, domain.ErrNotFound
		}
		variant, ok := gemstone.Variant(ref.VariantID)
		if !ok {
			return domain.VariantRate{}, domain.ErrVariantNotFound
		}
		previous := domain.VariantRate{Rate: variant.PricePerCarat, Name: variant.Name}
		variant.PricePerCarat = price
		gemstone.UpdatedAt = now
		if err := s.repo.UpdateGemstoneVariants(ctx, tx, gemstone); err != nil {
			return domain.VariantRate{}, err
		}
		return previous, nil
	}
}

func (s *Service) RecordRateChange(ctx context.Context, tx *gorm.DB, change *domain.RateChange) error {
	if change.ID == 0 {
		change.ID = s.genID.Generate()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = s.clock.Now()
	}
	return s.repo.InsertRateChange(ctx, tx, change)
}

func (s *Service) RateHistory(ctx context.Context, entityType domain.EntityType, entityID string) ([]domain.RateChange, error) {
	if !entityType.Valid() {
		return nil, domain.ErrInvalidEntityType
	}
	id, err := parseID(entityID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRateChanges(ctx, s.db, entityType, id)
}

type normalizedVariant struct {
	domain.VariantInput
	id string
}

func normalizeCreate(req domain.CreateRequest) (string, []normalizedVariant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", nil, domain.ErrInvalidName
	}
	if len(req.Variants) == 0 {
		return "", nil, domain.ErrInvalidVariant
	}

	seen := make(map[string]struct{}, len(req.Variants))
	out := make([]normalizedVariant, 0, len(req.Variants))
	for _, v := range req.Variants {
		v.Name = strings.TrimSpace(v.Name)
		v.Grade = strings.TrimSpace(v.Grade)
		id := slug.Make(v.Name)
		if v.Name == "" || id == "" {
			return "", nil, domain.ErrInvalidVariant
		}
		if !validPrice(v.Price) {
			return "", nil, domain.ErrInvalidPrice
		}
		if _, dup := seen[id]; dup {
			return "", nil, domain.ErrDuplicateVariant
		}
		seen[id] = struct{}{}
		out = append(out, normalizedVariant{VariantInput: v, id: id})
	}
	return name, out, nil
}

func validateRef(ref domain.VariantRef) (snowflake.ID, error) {
	if !ref.EntityType.Valid() {
		return 0, domain.ErrInvalidEntityType
	}
	if strings.TrimSpace(ref.VariantID) == "" {
		return 0, domain.ErrInvalidVariant
	}
	return parseID(ref.EntityID)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func validPrice(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
