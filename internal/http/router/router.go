package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/errand-backend/internal/config"
	"github.com/ignatzorin/errand-backend/internal/http/handlers"
	"github.com/ignatzorin/errand-backend/internal/http/middleware"
)

// Handlers набор HTTP обработчиков приложения. Sandbox задаётся только
// при работе с тестовым провайдером.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Errand  *handlers.ErrandHandler
	Payment *handlers.PaymentHandler
	Webhook *handlers.WebhookHandler
	Review  *handlers.ReviewHandler
	Profile *handlers.ProfileHandler
	WS      *handlers.WSHandler
	Health  *handlers.HealthHandler
	Sandbox *handlers.SandboxHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokens middleware.AccessTokenParser, limiterStore limiter.Store) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if !cfg.IsProduction() {
		r.Use(gin.Logger())
	}
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(limiterStore, "auth", cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
	}

	// Публичные маршруты
	api.GET("/errands", h.Errand.List)
	api.GET("/errands/:id", middleware.UUIDValidator("id"), h.Errand.Get)
	api.GET("/errands/:id/reviews", middleware.UUIDValidator("id"), h.Review.ListByErrand)
	api.GET("/users/:id/reviews", middleware.UUIDValidator("id"), h.Review.ListByRunner)
	api.GET("/ws", h.WS.Handle)

	// Провайдер повторяет доставку, поэтому лимит мягче, чем для auth
	api.POST("/payments/webhook",
		middleware.RateLimitMiddleware(limiterStore, "webhook", cfg.RateLimitLimit*30, cfg.RateLimitPeriod),
		h.Webhook.Handle,
	)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))
	{
		protected.GET("/auth/me", h.Auth.Me)

		protected.POST("/errands", h.Errand.Create)
		protected.POST("/errands/:id/accept", middleware.UUIDValidator("id"), h.Errand.Accept)
		protected.POST("/errands/:id/complete", middleware.UUIDValidator("id"), h.Errand.Complete)
		protected.POST("/errands/:id/approve", middleware.UUIDValidator("id"), h.Errand.Approve)
		protected.POST("/errands/:id/cancel", middleware.UUIDValidator("id"), h.Errand.Cancel)
		protected.DELETE("/errands/:id", middleware.UUIDValidator("id"), h.Errand.Delete)
		protected.POST("/errands/:id/reviews", middleware.UUIDValidator("id"), h.Review.Create)

		protected.POST("/payments/initialize", h.Payment.Initialize)
		protected.GET("/payments/verify/:reference", h.Payment.Verify)
		protected.GET("/payments", h.Payment.List)
		protected.GET("/payments/:reference", h.Payment.Get)

		protected.GET("/profile/payout", h.Profile.GetPayout)
		protected.PUT("/profile/payout", h.Profile.UpdatePayout)
		protected.POST("/profile/payout/vda", h.Profile.CreateVirtualAccount)

		if h.Sandbox != nil {
			sandbox := protected.Group("/sandbox")
			sandbox.POST("/payments/:id/deposit", middleware.UUIDValidator("id"), h.Sandbox.Deposit)
			sandbox.POST("/payments/:id/payout", middleware.UUIDValidator("id"), h.Sandbox.Payout)
			sandbox.POST("/payments/:id/refund", middleware.UUIDValidator("id"), h.Sandbox.Refund)
			sandbox.POST("/errands/:id/pay", middleware.UUIDValidator("id"), h.Sandbox.PayErrand)
		}
	}

	return r
}
