package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-server/internal/apiresponse"
	credentials "agency-server/internal/credentials/processor"
	"agency-server/internal/insights/processor"
	"agency-server/internal/metrics"
	"agency-server/internal/observability"
)

type Handler struct {
	insightsProcessor *processor.InsightsProcessor
	logger            *observability.Logger
}

func New(insightsProcessor *processor.InsightsProcessor, logger *observability.Logger) *Handler {
	return &Handler{
		insightsProcessor: insightsProcessor,
		logger:            logger,
	}
}

// HandleGetSummary returns account-level totals for a client on one
// platform. ?period= selects the lookback window, ?cache=false forces a
// fresh provider read.
// GET /api/metrics/:platform/:slug/summary
func (h *Handler) HandleGetSummary(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := h.insightsProcessor.GetSummary(ctx,
		c.Param("slug"), c.Param("platform"), c.Query("period"), bypassCache(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, summary)
}

// HandleGetCampaigns returns per-campaign metrics for a client on one
// platform.
// GET /api/metrics/:platform/:slug/campaigns
func (h *Handler) HandleGetCampaigns(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := h.insightsProcessor.GetCampaigns(ctx,
		c.Param("slug"), c.Param("platform"), c.Query("period"), bypassCache(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, report)
}

// HandleTestConnection checks the stored credentials against the live
// provider and records the outcome.
// POST /api/metrics/:platform/:slug/test-connection
func (h *Handler) HandleTestConnection(c *gin.Context) {
	ctx := c.Request.Context()

	result, err := h.insightsProcessor.TestConnection(ctx, c.Param("slug"), c.Param("platform"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, result)
}

func bypassCache(c *gin.Context) bool {
	return c.Query("cache") == "false"
}

func (h *Handler) handleError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	var provErr *metrics.ProviderError
	switch {
	case errors.Is(err, credentials.ErrClientNotFound):
		apiresponse.NotFound(c, "CLIENT_NOT_FOUND", "client not found")
	case errors.Is(err, credentials.ErrNotConfigured):
		apiresponse.BadRequest(c, "NOT_CONFIGURED", "no credentials stored for this platform")
	case errors.Is(err, processor.ErrUnsupportedPlatform):
		apiresponse.BadRequest(c, "UNSUPPORTED_PLATFORM", "unsupported platform")
	case errors.Is(err, metrics.ErrInvalidPeriod):
		apiresponse.BadRequest(c, "INVALID_PERIOD", "period must be one of 7d, 30d, 90d")
	case errors.Is(err, processor.ErrReauthRequired):
		apiresponse.Unauthorized(c, "platform credentials rejected, reconnect required")
	case errors.As(err, &provErr):
		apiresponse.ProviderError(c, provErr)
	default:
		h.logger.Error(ctx, "insights operation failed", err)
		apiresponse.InternalError(c, err)
	}
}
