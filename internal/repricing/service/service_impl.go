package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/actorcontext"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/events"
	"github.com/smallbiznis/aurum/internal/observability/metrics"
	"github.com/smallbiznis/aurum/internal/pricing"
	productdomain "github.com/smallbiznis/aurum/internal/product/domain"
	"github.com/smallbiznis/aurum/internal/repricing/domain"
	"github.com/smallbiznis/aurum/pkg/apperr"
	"github.com/smallbiznis/aurum/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Catalog   catalogdomain.Service
	Products  productdomain.Service
	Publisher events.Publisher       `optional:"true"`
	Metrics   *metrics.Metrics       `optional:"true"`
	Ledger    *metrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	catalog   catalogdomain.Service
	products  productdomain.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
	ledger    *metrics.LedgerMetrics
	retry     db.ReadRetry
	tracer    trace.Tracer
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("repricing.service"),
		clock:     p.Clock,
		catalog:   p.Catalog,
		products:  p.Products,
		publisher: publisher,
		metrics:   p.Metrics,
		ledger:    p.Ledger,
		retry:     db.DefaultReadRetry(),
		tracer:    otel.Tracer("aurum/repricing"),
	}
}

func (s *Service) Preview(ctx context.Context, req domain.RateRequest) (domain.PreviewResult, error) {
	ctx, span := s.tracer.Start(ctx, "repricing.Preview", trace.WithAttributes(
		attribute.String("entity_type", string(req.EntityType)),
	))
	defer span.End()

	req, err := normalize(req)
	if err != nil {
		return domain.PreviewResult{}, err
	}
	ref := req.Ref()

	current, err := db.RetryRead(ctx, s.retry, func(ctx context.Context) (catalogdomain.VariantRate, error) {
		return s.catalog.Lookup(ctx, ref)
	})
	if err != nil {
		return domain.PreviewResult{}, classifyReadErr(span, err)
	}

	result := newResult(req, current)
	if current.Rate == req.NewPrice {
		s.metrics.RecordPreview(ctx, string(req.EntityType), 0)
		return result, nil
	}

	products, err := db.RetryRead(ctx, s.retry, func(ctx context.Context) ([]productdomain.Product, error) {
		return s.products.FindByComponent(ctx, nil, ref)
	})
	if err != nil {
		return domain.PreviewResult{}, classifyReadErr(span, err)
	}

	for i := range products {
		impact, _, err := substitute(&products[i], ref, req.NewPrice)
		if err != nil {
			return domain.PreviewResult{}, err
		}
		result.Products = append(result.Products, impact)
		s.metrics.RecordPricingRun(ctx, "preview")
	}
	result.AffectedCount = len(result.Products)

	s.metrics.RecordPreview(ctx, string(req.EntityType), result.AffectedCount)
	span.SetAttributes(attribute.Int("affected_count", result.AffectedCount))
	return result, nil
}

func (s *Service) Commit(ctx context.Context, req domain.RateRequest) (domain.CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "repricing.Commit", trace.WithAttributes(
		attribute.String("entity_type", string(req.EntityType)),
	))
	defer span.End()

	req, err := normalize(req)
	if err != nil {
		return domain.CommitResult{}, err
	}
	ref := req.Ref()

	var changedBy string
	if actor, ok := actorcontext.ActorFromContext(ctx); ok {
		changedBy = actor.ID
	}

	var (
		result domain.CommitResult
		change *catalogdomain.RateChange
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := s.catalog.SetRate(ctx, tx, ref, req.NewPrice)
		if err != nil {
			return err
		}
		result = domain.CommitResult{PreviewResult: newResult(req, previous)}
		if previous.Rate == req.NewPrice {
			return nil
		}

		products, err := s.products.FindByComponent(ctx, tx, ref)
		if err != nil {
			return err
		}
		for i := range products {
			impact, res, err := substitute(&products[i], ref, req.NewPrice)
			if err != nil {
				return err
			}
			if err := s.products.Reprice(ctx, tx, &products[i], res); err != nil {
				return err
			}
			result.Products = append(result.Products, impact)
		}
		result.AffectedCount = len(result.Products)

		change = &catalogdomain.RateChange{
			EntityType:    ref.EntityType,
			VariantID:     ref.VariantID,
			VariantName:   previous.Name,
			OldPrice:      previous.Rate,
			NewPrice:      req.NewPrice,
			AffectedCount: result.AffectedCount,
			ChangedBy:     changedBy,
		}
		if change.EntityID, err = snowflake.ParseString(ref.EntityID); err != nil {
			return catalogdomain.ErrInvalidID
		}
		return s.catalog.RecordRateChange(ctx, tx, change)
	})
	if err != nil {
		if errors.Is(err, productdomain.ErrVersionConflict) {
			err = apperr.Conflict(err)
		} else if db.IsTransientErr(err) {
			err = apperr.Transient(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return domain.CommitResult{}, err
	}

	if change == nil {
		return result, nil
	}
	result.RateChangeID = change.ID
	s.ledger.ObserveRateCommit(string(ref.EntityType), result.AffectedCount)
	for range result.Products {
		s.metrics.RecordPricingRun(ctx, "rate_commit")
	}

	s.log.Info("rate committed",
		zap.String("entity_type", string(ref.EntityType)),
		zap.String("entity_id", ref.EntityID),
		zap.String("variant_id", ref.VariantID),
		zap.Float64("old_price", result.OldPrice),
		zap.Float64("new_price", result.NewPrice),
		zap.Int("affected_count", result.AffectedCount),
	)
	s.publish(ctx, change)
	return result, nil
}

func (s *Service) publish(ctx context.Context, change *catalogdomain.RateChange) {
	evt, err := events.New(ctx, events.TypeRateChanged,
		string(change.EntityType)+":"+change.EntityID.String()+":"+change.VariantID,
		change, s.clock.Now())
	if err != nil {
		s.log.Warn("build rate event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("publish rate event failed", zap.String("event_id", evt.ID), zap.Error(err))
		return
	}
	s.metrics.RecordEventPublished(ctx, evt.Type)
}

// substitute re-runs the engine for product with every component of the
// referenced variant priced at newPrice.
func substitute(p *productdomain.Product, ref catalogdomain.VariantRef, newPrice float64) (domain.ProductImpact, pricing.Result, error) {
	in := p.PricingInput()
	switch ref.EntityType {
	case catalogdomain.EntityMetal:
		for i := range in.Metals {
			if in.Metals[i].MetalID == ref.EntityID && in.Metals[i].VariantID == ref.VariantID {
				in.Metals[i].PricePerGram = newPrice
			}
		}
	case catalogdomain.EntityGemstone:
		for i := range in.Gemstones {
			if in.Gemstones[i].GemstoneID == ref.EntityID && in.Gemstones[i].VariantID == ref.VariantID {
				in.Gemstones[i].PricePerCarat = newPrice
			}
		}
	}

	res, err := pricing.Calculate(in)
	if err != nil {
		return domain.ProductImpact{}, pricing.Result{}, err
	}
	return domain.ProductImpact{
		ProductID:       p.ID,
		Name:            p.Name,
		OldTotalPrice:   p.TotalPrice,
		NewTotalPrice:   res.TotalPrice,
		PriceDifference: res.TotalPrice - p.TotalPrice,
	}, res, nil
}

func newResult(req domain.RateRequest, current catalogdomain.VariantRate) domain.PreviewResult {
	return domain.PreviewResult{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		VariantID:   req.VariantID,
		VariantName: current.Name,
		OldPrice:    current.Rate,
		NewPrice:    req.NewPrice,
		Products:    []domain.ProductImpact{},
	}
}

func normalize(req domain.RateRequest) (domain.RateRequest, error) {
	req.EntityType = catalogdomain.EntityType(strings.ToLower(strings.TrimSpace(string(req.EntityType))))
	req.EntityID = strings.TrimSpace(req.EntityID)
	req.VariantID = strings.TrimSpace(req.VariantID)
	if !req.EntityType.Valid() {
		return req, catalogdomain.ErrInvalidEntityType
	}
	if req.NewPrice < 0 || math.IsNaN(req.NewPrice) || math.IsInf(req.NewPrice, 0) {
		return req, domain.ErrInvalidPrice
	}
	return req, nil
}

// classifyReadErr leaves domain errors alone and marks store failures retryable.
func classifyReadErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "read failed")
	switch {
	case errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrVariantNotFound),
		errors.Is(err, catalogdomain.ErrInvalidID),
		errors.Is(err, catalogdomain.ErrInvalidVariant),
		errors.Is(err, catalogdomain.ErrInvalidEntityType),
		errors.Is(err, context.Canceled):
		return err
	}
	return apperr.Transient(err)
}
