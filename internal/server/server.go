package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/aurum/internal/authorization"
	"github.com/smallbiznis/aurum/internal/bill"
	billdomain "github.com/smallbiznis/aurum/internal/bill/domain"
	"github.com/smallbiznis/aurum/internal/bill/receipt"
	"github.com/smallbiznis/aurum/internal/catalog"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	"github.com/smallbiznis/aurum/internal/config"
	"github.com/smallbiznis/aurum/internal/customer"
	customerdomain "github.com/smallbiznis/aurum/internal/customer/domain"
	"github.com/smallbiznis/aurum/internal/events"
	"github.com/smallbiznis/aurum/internal/ledger"
	ledgerdomain "github.com/smallbiznis/aurum/internal/ledger/domain"
	"github.com/smallbiznis/aurum/internal/observability"
	obslogger "github.com/smallbiznis/aurum/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/aurum/internal/observability/metrics"
	obstracing "github.com/smallbiznis/aurum/internal/observability/tracing"
	"github.com/smallbiznis/aurum/internal/product"
	productdomain "github.com/smallbiznis/aurum/internal/product/domain"
	"github.com/smallbiznis/aurum/internal/repricing"
	repricingdomain "github.com/smallbiznis/aurum/internal/repricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	events.Module,
	catalog.Module,
	product.Module,
	repricing.Module,
	customer.Module,
	ledger.Module,
	bill.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	storeConfig  *config.StoreConfigHolder
	authzSvc     authorization.Service
	catalogSvc   catalogdomain.Service
	productSvc   productdomain.Service
	repricingSvc repricingdomain.Service
	customerSvc  customerdomain.Service
	ledgerSvc    ledgerdomain.Service
	billSvc      billdomain.Service
	receipts     receipt.Provider
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	StoreConfig  *config.StoreConfigHolder
	AuthzSvc     authorization.Service
	CatalogSvc   catalogdomain.Service
	ProductSvc   productdomain.Service
	RepricingSvc repricingdomain.Service
	CustomerSvc  customerdomain.Service
	LedgerSvc    ledgerdomain.Service
	BillSvc      billdomain.Service
	Receipts     receipt.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		storeConfig:  p.StoreConfig,
		authzSvc:     p.AuthzSvc,
		catalogSvc:   p.CatalogSvc,
		productSvc:   p.ProductSvc,
		repricingSvc: p.RepricingSvc,
		customerSvc:  p.CustomerSvc,
		ledgerSvc:    p.LedgerSvc,
		billSvc:      p.BillSvc,
		receipts:     p.Receipts,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired())

	// -------- Catalog --------
	api.GET("/metals", s.authorize(authorization.ObjectCatalog, authorization.ActionView), s.ListMetals)
	api.POST("/metals", s.authorize(authorization.ObjectCatalog, authorization.ActionCreate), s.CreateMetal)
	api.GET("/metals/:id", s.authorize(authorization.ObjectCatalog, authorization.ActionView), s.GetMetal)
	api.GET("/gemstones", s.authorize(authorization.ObjectCatalog, authorization.ActionView), s.ListGemstones)
	api.POST("/gemstones", s.authorize(authorization.ObjectCatalog, authorization.ActionCreate), s.CreateGemstone)
	api.GET("/gemstones/:id", s.authorize(authorization.ObjectCatalog, authorization.ActionView), s.GetGemstone)

	// -------- Rates --------
	api.POST("/rates/preview", s.authorize(authorization.ObjectRate, authorization.ActionPreview), s.PreviewRate)
	api.POST("/rates/commit", s.authorize(authorization.ObjectRate, authorization.ActionCommit), s.CommitRate)
	api.GET("/rates/history", s.authorize(authorization.ObjectRate, authorization.ActionPreview), s.RateHistory)

	// -------- Products --------
	api.POST("/products", s.authorize(authorization.ObjectProduct, authorization.ActionCreate), s.CreateProduct)
	api.GET("/products/:id", s.authorize(authorization.ObjectProduct, authorization.ActionView), s.GetProduct)
	api.PUT("/products/:id", s.authorize(authorization.ObjectProduct, authorization.ActionUpdate), s.UpdateProduct)

	// -------- Customers --------
	api.POST("/customers", s.authorize(authorization.ObjectCustomer, authorization.ActionCreate), s.CreateCustomer)
	api.GET("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionView), s.GetCustomer)
	api.DELETE("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionDelete), s.DeleteCustomer)
	api.GET("/customers/:id/history", s.authorize(authorization.ObjectCustomer, authorization.ActionView), s.GetCustomerHistory)
	api.GET("/customers/:id/reconcile", s.authorize(authorization.ObjectLedger, authorization.ActionAdjust), s.ReconcileCustomer)
	// Ledger mutations authorize inside the ledger service.
	api.POST("/customers/:id/pay-debt", s.PayDebt)
	api.POST("/customers/:id/adjust-debt", s.AdjustDebt)

	// -------- Bills --------
	api.POST("/bills", s.authorize(authorization.ObjectBill, authorization.ActionCreate), s.CreateBill)
	api.GET("/bills/:id", s.authorize(authorization.ObjectBill, authorization.ActionView), s.GetBill)
	api.GET("/bills/:id/receipt", s.authorize(authorization.ObjectBill, authorization.ActionView), s.GetBillReceipt)
	api.DELETE("/bills/:id", s.authorize(authorization.ObjectBill, authorization.ActionDelete), s.DeleteBill)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
