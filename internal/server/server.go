package server

import (
	"fmt"
	"os"

	"github.com/franmendez/ticketera/config"
	"github.com/franmendez/ticketera/internal/gateway"
	"github.com/franmendez/ticketera/internal/handlers"
	"github.com/franmendez/ticketera/internal/middleware"
	"github.com/franmendez/ticketera/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mpClient, err := gateway.Default(cfg.MPAccessToken)
	if err != nil {
		return fmt.Errorf("failed to initialize Mercado Pago client: %v", err)
	}

	issuance := services.NewIssuance(db, logger)
	reconciler := services.NewReconciler(db, mpClient, issuance, services.ReconcilerOptions{
		Retry:               gateway.NewRetryPolicy(cfg.WebhookRetries, cfg.WebhookRetryDelay),
		ExpectedCollectorID: cfg.ExpectedCollectorID,
		RequireLiveMode:     cfg.RequireLiveMode,
	}, logger)
	settlements := services.NewSettlements(db, cfg.CommissionRate, logger)

	r := gin.Default()

	setupRoutes(r, db, cfg, logger, mpClient, reconciler, settlements)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func setupRoutes(
	r *gin.Engine,
	db *gorm.DB,
	cfg *config.Config,
	logger *zap.Logger,
	mpClient *gateway.Client,
	reconciler *services.Reconciler,
	settlements *services.Settlements,
) {
	r.Use(middleware.DatabaseMiddleware(db))

	webhookHandler := handlers.NewWebhookHandler(reconciler)
	paymentHandler := handlers.NewPaymentHandler(mpClient, cfg)
	settlementHandler := handlers.NewSettlementHandler(settlements)
	adminHandler := handlers.NewAdminHandler(cfg.StalePaymentTTL, logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The gateway posts here; any method must be acknowledged with a 200.
	r.Any("/v1/payments/webhook", webhookHandler.HandleNotification)

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
			eventPublic.GET("/:id/products", handlers.ListProducts)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", handlers.CreateEvent)
			eventProtected.PUT("/:id", handlers.UpdateEvent)
			eventProtected.DELETE("/:id", handlers.DeleteEvent)
		}

		productProtected := protected.Group("/products")
		{
			productProtected.POST("", handlers.CreateProduct)
			productProtected.DELETE("/:id", handlers.DeactivateProduct)
		}

		paymentProtected := protected.Group("/payments")
		{
			paymentProtected.POST("", paymentHandler.CreatePayment)
			paymentProtected.GET("/:id", paymentHandler.GetPayment)
		}

		ticketProtected := protected.Group("/tickets")
		{
			ticketProtected.GET("", handlers.ListMyTickets)
			ticketProtected.GET("/:id/qr", handlers.GetTicketQR)
			ticketProtected.POST("/validate", handlers.ValidateTicket)
		}

		protected.GET("/profile", handlers.GetProfile)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminSecretMiddleware(cfg.AdminSecret))
	{
		admin.GET("/payments/reconcile", webhookHandler.ManualReconcile)
		admin.POST("/payments/cleanup", adminHandler.CleanupStalePayments)
		admin.POST("/settlements", settlementHandler.CreateSettlement)
		admin.GET("/settlements", settlementHandler.ListSettlements)
	}
}
