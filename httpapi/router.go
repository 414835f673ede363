package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fundflow/middleware"
)

// Handlers bundles the route handlers wired into the router.
type Handlers struct {
	Auth     *AuthHandler
	Timeline *TimelineHandler
	Wallet   *WalletHandler
	Account  *AccountHandler
}

// NewRouter assembles the gin engine with the shared middleware chain and
// all API routes. Authentication is enforced on everything except
// registration, login and the health check.
func NewRouter(h Handlers, verifier middleware.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(100, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.Auth(verifier))
	{
		protected.GET("/auth/me", h.Auth.Me)

		protected.GET("/timeline", h.Timeline.Current)
		protected.POST("/timeline", h.Timeline.Propose)
		protected.GET("/timeline/:id", h.Timeline.Get)
		protected.POST("/timeline/:id/accept", h.Timeline.Accept)
		protected.POST("/timeline/:id/reject", h.Timeline.Reject)
		protected.POST("/timeline/:id/pay", h.Timeline.Pay)
		protected.GET("/timeline/:id/events", h.Timeline.Events)
		protected.POST("/timeline/:id/forms", h.Timeline.FileForm)
		protected.POST("/timeline/:id/forms/:formID/accept", h.Timeline.AcceptForm)
		protected.POST("/timeline/:id/forms/:formID/reject", h.Timeline.RejectForm)

		protected.POST("/wallet/transfer", h.Wallet.Transfer)
		protected.GET("/wallet/balance", h.Wallet.Balance)
		protected.GET("/wallet/receipts", h.Wallet.Receipts)

		protected.GET("/accounts", h.Account.List)
		protected.GET("/accounts/:id", h.Account.Get)
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
