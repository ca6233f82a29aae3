// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"offerengine/internal/core/security"
	"offerengine/internal/infrastructure/http/v1/handlers"
	"offerengine/internal/infrastructure/http/v1/middleware"
	"offerengine/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger       *logger.Logger
	JWTValidator middleware.JWTValidator
	DB           handlers.Pinger
	Version      string

	Pricing    handlers.PricingService
	OfferCodes handlers.OfferCodeService
	Orders     handlers.OrderLoader
	Reprice    handlers.RepriceEnqueuer
	History    handlers.PricingHistory
	Switches   handlers.PromotionSwitch
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Recovery runs innermost so a recovered panic still reaches ErrorHandler and Logger.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	health := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	router.GET("/health", health.Ready)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))

	base := handlers.NewBaseHandler()
	registerOrderRoutes(api, base, cfg)
	registerOfferCodeRoutes(api, base, cfg)

	return router
}

func registerOrderRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewPricingHandler(base, cfg.Pricing, cfg.Orders, cfg.Reprice, cfg.History, cfg.Switches)

	orders := rg.Group("/orders")
	orders.Use(middleware.RequireRole(security.RolePricing, security.RolePromoAdmin))
	{
		orders.POST("/:id/price", h.Price)
		orders.POST("/:id/offer-usage", h.RecordUsage)
		orders.POST("/:id/reprice", h.Reprice)
		orders.GET("/:id/pricing-runs", h.History)
	}
}

func registerOfferCodeRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewOfferCodeHandler(base, cfg.OfferCodes)

	codes := rg.Group("/offer-codes")
	{
		codes.GET("/:code", middleware.RequireRole(security.RolePricing, security.RolePromoAdmin), h.Get)
		codes.GET("/:code/offers", middleware.RequireRole(security.RolePromoAdmin), h.ListOffers)
		codes.DELETE("/:id", middleware.RequireRole(security.RolePromoAdmin), h.Delete)
	}
}
