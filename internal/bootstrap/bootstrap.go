package bootstrap

import (
	"context"
	"fmt"
	"time"

	"agency-server/internal/cache"
	"agency-server/internal/config"
	"agency-server/internal/crypto"
	"agency-server/internal/observability"
	"agency-server/internal/ratelimit"
	"agency-server/internal/store"

	authHandler "agency-server/internal/auth/handler"
	authProcessor "agency-server/internal/auth/processor"
	"agency-server/internal/clients/googleads"
	"agency-server/internal/clients/googleanalytics"
	"agency-server/internal/clients/mail"
	"agency-server/internal/clients/meta"
	redisClient "agency-server/internal/clients/redis"
	credentialHandler "agency-server/internal/credentials/handler"
	credentialProcessor "agency-server/internal/credentials/processor"
	insightsHandler "agency-server/internal/insights/handler"
	insightsProcessor "agency-server/internal/insights/processor"
	oauthHandler "agency-server/internal/oauth/handler"
	oauthProcessor "agency-server/internal/oauth/processor"
	reportsHandler "agency-server/internal/reports/handler"
	reportsProcessor "agency-server/internal/reports/processor"
	tenantHandler "agency-server/internal/tenants/handler"
	tenantProcessor "agency-server/internal/tenants/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store        store.Store
	CacheService *cache.Service
	Logger       *observability.Logger

	// Handlers
	AuthHandler       authHandler.Handler
	TenantHandler     *tenantHandler.Handler
	CredentialHandler *credentialHandler.Handler
	OAuthHandler      *oauthHandler.Handler
	InsightsHandler   *insightsHandler.Handler
	ReportsHandler    *reportsHandler.Handler

	// Middleware services
	RateLimiter *ratelimit.Service

	// Clients needing cleanup
	Redis *redisClient.Client
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Credential encryption and the metrics cache
	encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential encryption: %w", err)
	}
	deps.CacheService = cache.New(time.Now)

	// Optional Redis, used only for rate limiting
	deps.Redis, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	deps.RateLimiter = ratelimit.NewService(deps.Redis, cfg.Server.RateLimitRPM, logger)

	mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resend client: %w", err)
	}

	// Initialize auth processor and handler
	authProc := authProcessor.New(&deps.Store, cfg.Auth.JWTSecret, logger)
	deps.AuthHandler = authHandler.New(authProc, logger)

	// Initialize credential processor and handler
	credProc := credentialProcessor.New(&deps.Store, encryptor, deps.CacheService, logger)
	deps.CredentialHandler = credentialHandler.New(credProc, logger)

	// Initialize tenant processor and handler
	tenantProc := tenantProcessor.New(&deps.Store, deps.CacheService, logger)
	deps.TenantHandler = tenantHandler.New(tenantProc, logger)

	// Initialize oauth processor and handler
	oauthProc := oauthProcessor.New(credProc, cfg.Platforms, logger)
	deps.OAuthHandler = oauthHandler.New(oauthProc, cfg.Services.WebAppURI, logger)

	// Platform adapters, keyed on the platform path segment
	adapters := map[string]insightsProcessor.Adapter{
		store.PlatformGoogleAds:       googleads.NewClient(cfg.Platforms.GoogleAdsDevToken, logger),
		store.PlatformMeta:            meta.NewClient(logger),
		store.PlatformGoogleAnalytics: googleanalytics.NewClient(logger),
	}

	// Initialize insights processor and handler
	insightsProc := insightsProcessor.New(credProc, oauthProc, deps.CacheService, adapters, time.Now, logger)
	deps.InsightsHandler = insightsHandler.New(insightsProc, logger)

	// Initialize reports processor and handler
	reportsProc := reportsProcessor.New(insightsProc, credProc, mailClient, cfg.Services.DefaultReportSender, time.Now, logger)
	deps.ReportsHandler = reportsHandler.New(reportsProc, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error(context.Background(), "failed to close redis client", err)
		}
	}
}
