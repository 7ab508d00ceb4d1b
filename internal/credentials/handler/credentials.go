package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agency-server/internal/apiresponse"
	"agency-server/internal/credentials/processor"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

type Handler struct {
	credentialProcessor *processor.CredentialProcessor
	logger              *observability.Logger
}

func New(credentialProcessor *processor.CredentialProcessor, logger *observability.Logger) *Handler {
	return &Handler{
		credentialProcessor: credentialProcessor,
		logger:              logger,
	}
}

// SaveCredentialsRequest is a tagged union keyed on Platform. The
// platform-specific fields are validated in validate() rather than with
// binding tags, since required-ness depends on the platform.
type SaveCredentialsRequest struct {
	Platform string `json:"platform" binding:"required"`

	// Google Ads
	CustomerID string `json:"customer_id"`
	// Meta
	AdAccountID string `json:"ad_account_id"`
	// Google Analytics
	PropertyID string `json:"property_id"`

	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// validate returns the account reference and bundle for the platform, or a
// human-readable reason the request is malformed.
func (r SaveCredentialsRequest) validate() (accountRef string, bundle processor.Bundle, reason string) {
	bundle = processor.Bundle{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
	}
	switch r.Platform {
	case store.PlatformGoogleAds:
		if r.CustomerID == "" {
			return "", bundle, "customer_id is required for googleads"
		}
		if r.AccessToken == "" || r.RefreshToken == "" {
			return "", bundle, "access_token and refresh_token are required for googleads"
		}
		return r.CustomerID, bundle, ""
	case store.PlatformMeta:
		if r.AdAccountID == "" {
			return "", bundle, "ad_account_id is required for meta"
		}
		if r.AccessToken == "" {
			return "", bundle, "access_token is required for meta"
		}
		// Meta long-lived tokens have no refresh flow.
		bundle.RefreshToken = ""
		return r.AdAccountID, bundle, ""
	case store.PlatformGoogleAnalytics:
		if r.PropertyID == "" {
			return "", bundle, "property_id is required for googleanalytics"
		}
		if r.AccessToken == "" || r.RefreshToken == "" {
			return "", bundle, "access_token and refresh_token are required for googleanalytics"
		}
		return r.PropertyID, bundle, ""
	default:
		return "", bundle, "unsupported platform"
	}
}

// HandleSaveCredentials stores platform credentials for a client.
// POST /api/clients/:slug/credentials
func (h *Handler) HandleSaveCredentials(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")

	var req SaveCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponse.ValidationError(c, err)
		return
	}
	accountRef, bundle, reason := req.validate()
	if reason != "" {
		apiresponse.BadRequest(c, "INVALID_CREDENTIALS_PAYLOAD", reason)
		return
	}

	status, err := h.credentialProcessor.SaveCredentials(ctx, slug, req.Platform, accountRef, bundle)
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.SuccessWithMessage(c, http.StatusOK, status, "credentials stored")
}

// HandleGetConnections returns the connection summary for a client. Secrets
// are never included.
// GET /api/clients/:slug/credentials
func (h *Handler) HandleGetConnections(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")

	statuses, err := h.credentialProcessor.GetConnectionSummary(ctx, slug)
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, gin.H{"connections": statuses})
}

// HandleDeleteCredentials removes credentials for one platform
// (?platform=...) or for all platforms when the query param is absent.
// DELETE /api/clients/:slug/credentials
func (h *Handler) HandleDeleteCredentials(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")
	platform := c.Query("platform")

	if err := h.credentialProcessor.DeleteCredentials(ctx, slug, platform); err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.SuccessWithMessage(c, http.StatusOK, nil, "credentials deleted")
}

func (h *Handler) handleError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, processor.ErrClientNotFound):
		apiresponse.NotFound(c, "CLIENT_NOT_FOUND", "client not found")
	case errors.Is(err, processor.ErrNotConfigured):
		apiresponse.NotFound(c, "NOT_CONFIGURED", "no credentials stored for this platform")
	case errors.Is(err, processor.ErrUnsupportedPlatform):
		apiresponse.BadRequest(c, "UNSUPPORTED_PLATFORM", "unsupported platform")
	default:
		h.logger.Error(ctx, "credential operation failed", err)
		apiresponse.InternalError(c, err)
	}
}
