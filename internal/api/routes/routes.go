package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyvault-service/keyvault_service/internal/api/handlers"
	"github.com/keyvault-service/keyvault_service/internal/api/middleware"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/config"
)

// SetupRoutes configures the bot's HTTP surface: ops endpoints plus the
// gateway-facing webhook and lookup routes.
func SetupRoutes(
	cfg *config.Config,
	registry *prometheus.Registry,
	offerHandler *handlers.OfferHandler,
	customerHandler *handlers.CustomerHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	gateway := router.Group("/v1", middleware.GatewayAuth(cfg.TradeNet.WebhookToken))
	{
		gateway.POST("/events/offers", offerHandler.HandleOfferEvent)
		gateway.GET("/customers/:identity/deposit-address", customerHandler.DepositAddress)
	}

	return router
}
