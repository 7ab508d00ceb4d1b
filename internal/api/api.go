package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-server/internal/bootstrap"
)

type API struct {
	router *gin.RouterGroup
	deps   *bootstrap.Dependencies
}

func New(router *gin.RouterGroup, deps *bootstrap.Dependencies) API {
	return API{
		router: router,
		deps:   deps,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/login", a.deps.AuthHandler.HandleLogin)
	}

	// OAuth callbacks are hit by the browser mid-consent flow, so they sit
	// outside the JWT middleware.
	oauthGroup := apiGroup.Group("/oauth")
	{
		oauthGroup.GET("/:platform/callback", a.deps.OAuthHandler.HandleCallback)
	}

	protected := apiGroup.Group("", a.deps.AuthHandler.HandleJWTMiddleware, a.deps.RateLimiter.Middleware())
	{
		protected.GET("/auth/me", a.deps.AuthHandler.HandleGetMe)
		protected.GET("/oauth/:platform/connect", a.deps.OAuthHandler.HandleConnect)

		clients := protected.Group("/clients")
		{
			clients.POST("", a.deps.TenantHandler.HandleCreateClient)
			clients.GET("", a.deps.TenantHandler.HandleListClients)
			clients.GET("/:slug", a.deps.TenantHandler.HandleGetClient)
			clients.PUT("/:slug", a.deps.TenantHandler.HandleUpdateClient)
			clients.DELETE("/:slug", a.deps.AuthHandler.RequireAdmin, a.deps.TenantHandler.HandleDeleteClient)

			clients.POST("/:slug/credentials", a.deps.CredentialHandler.HandleSaveCredentials)
			clients.GET("/:slug/credentials", a.deps.CredentialHandler.HandleGetConnections)
			clients.DELETE("/:slug/credentials", a.deps.AuthHandler.RequireAdmin, a.deps.CredentialHandler.HandleDeleteCredentials)
		}

		metricsGroup := protected.Group("/metrics/:platform/:slug")
		{
			metricsGroup.GET("/summary", a.deps.InsightsHandler.HandleGetSummary)
			metricsGroup.GET("/campaigns", a.deps.InsightsHandler.HandleGetCampaigns)
			metricsGroup.POST("/test-connection", a.deps.InsightsHandler.HandleTestConnection)
		}

		reports := protected.Group("/reports")
		{
			reports.GET("/:slug", a.deps.ReportsHandler.HandleGetReport)
			reports.POST("/:slug/send", a.deps.ReportsHandler.HandleSendReport)
		}
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
