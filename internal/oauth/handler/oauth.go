package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"agency-server/internal/apiresponse"
	credentials "agency-server/internal/credentials/processor"
	"agency-server/internal/oauth/processor"
	"agency-server/internal/observability"
)

type Handler struct {
	oauthProcessor *processor.OAuthProcessor
	webAppURI      string
	logger         *observability.Logger
}

func New(oauthProcessor *processor.OAuthProcessor, webAppURI string, logger *observability.Logger) *Handler {
	return &Handler{
		oauthProcessor: oauthProcessor,
		webAppURI:      webAppURI,
		logger:         logger,
	}
}

// HandleConnect returns the Google consent URL for connecting a client.
// GET /api/oauth/:platform/connect?client=slug
func (h *Handler) HandleConnect(c *gin.Context) {
	ctx := c.Request.Context()
	platform := c.Param("platform")
	slug := c.Query("client")
	if slug == "" {
		apiresponse.BadRequest(c, "MISSING_CLIENT", "client query parameter is required")
		return
	}

	authURL, err := h.oauthProcessor.AuthURL(ctx, platform, slug)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrUnsupportedPlatform):
			apiresponse.BadRequest(c, "UNSUPPORTED_PLATFORM", "platform has no oauth flow")
		case errors.Is(err, credentials.ErrClientNotFound):
			apiresponse.NotFound(c, "CLIENT_NOT_FOUND", "client not found")
		default:
			h.logger.Error(ctx, "failed to build auth url", err)
			apiresponse.InternalError(c, err)
		}
		return
	}
	apiresponse.Success(c, http.StatusOK, gin.H{"auth_url": authURL})
}

// HandleCallback is the redirect target of the Google consent screen. The
// browser lands here, so outcomes are communicated by redirecting back to
// the web app rather than with a JSON body.
// GET /api/oauth/:platform/callback
func (h *Handler) HandleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	platform := c.Param("platform")
	state := c.Query("state")
	code := c.Query("code")

	if errParam := c.Query("error"); errParam != "" {
		h.logger.Warn(ctx, fmt.Sprintf("oauth consent denied for %s: %s", platform, errParam))
		h.redirectToEdit(c, state, "error", "oauth_denied")
		return
	}
	if state == "" || code == "" {
		h.redirectToEdit(c, state, "error", "invalid_callback")
		return
	}

	slug, err := h.oauthProcessor.HandleCallback(ctx, platform, state, code)
	if err != nil {
		h.logger.InfoWithError(ctx, "oauth callback failed", err)
		h.redirectToEdit(c, slug, "error", "oauth_callback_failed")
		return
	}
	h.redirectToEdit(c, slug, "connected", platform)
}

// redirectToEdit sends the browser back to the client edit page in the web
// app, carrying the outcome as a query parameter.
func (h *Handler) redirectToEdit(c *gin.Context, slug, key, value string) {
	target := fmt.Sprintf("%s/clients/%s/edit?%s=%s",
		h.webAppURI, url.PathEscape(slug), key, url.QueryEscape(value))
	c.Redirect(http.StatusFound, target)
}
