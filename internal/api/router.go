package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/api/handlers"
	"github.com/jafarshop/easyorders/internal/api/middleware"
	"github.com/jafarshop/easyorders/internal/config"
)

// Services are the application services exposed over HTTP
type Services struct {
	Webhook    handlers.WebhookIntake
	Stores     handlers.StoreAdmin
	TempOrders handlers.TempOrderAdmin
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, services Services, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// ClientIP feeds the webhook allowlist, so only listed proxies may set X-Forwarded-For
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// EasyOrders webhook, authenticated by the per-store secret header
	router.POST("/integrations/easyorders/webhook", handlers.HandleEasyOrdersWebhook(services.Webhook, logger))

	v1 := router.Group("/v1")
	{
		admin := v1.Group("/dashboard/admin/easyorders")
		admin.Use(middleware.AdminAuthMiddleware(cfg.Admin.APIKeyHash, logger))
		{
			admin.GET("/stores", handlers.HandleListStores(services.Stores, logger))
			admin.POST("/stores", handlers.HandleCreateStore(services.Stores, logger))
			admin.GET("/stores/:id", handlers.HandleGetStore(services.Stores, logger))
			admin.PUT("/stores/:id", handlers.HandleUpdateStore(services.Stores, logger))
			admin.POST("/stores/:id/rotate-secret", handlers.HandleRotateStoreSecret(services.Stores, logger))
			admin.POST("/stores/:id/test-connection", handlers.HandleTestStoreConnection(services.Stores, logger))

			admin.GET("/temp-orders", handlers.HandleListTempOrders(services.TempOrders, logger))
			admin.POST("/temp-orders/bulk-approve", handlers.HandleBulkApproveTempOrders(services.TempOrders, logger))
			admin.GET("/temp-orders/:id", handlers.HandleGetTempOrder(services.TempOrders, logger))
			admin.POST("/temp-orders/:id/approve", handlers.HandleApproveTempOrder(services.TempOrders, logger))
			admin.POST("/temp-orders/:id/revalidate", handlers.HandleRevalidateTempOrder(services.TempOrders, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
