package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-server/internal/apiresponse"
	credentials "agency-server/internal/credentials/processor"
	"agency-server/internal/metrics"
	"agency-server/internal/observability"
	"agency-server/internal/reports/processor"
)

type Handler struct {
	reportsProcessor *processor.ReportsProcessor
	logger           *observability.Logger
}

func New(reportsProcessor *processor.ReportsProcessor, logger *observability.Logger) *Handler {
	return &Handler{
		reportsProcessor: reportsProcessor,
		logger:           logger,
	}
}

type SendReportRequest struct {
	Period    string   `json:"period"`
	Recipient string   `json:"recipient" binding:"omitempty,email"`
	Platforms []string `json:"platforms" binding:"omitempty,dive,oneof=googleads meta googleanalytics"`
}

// HandleGetReport builds the cross-platform digest without sending it.
// GET /api/reports/:slug?period=&platform=
func (h *Handler) HandleGetReport(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := h.reportsProcessor.BuildReport(ctx, c.Param("slug"), c.Query("period"), c.QueryArray("platform"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, report)
}

// HandleSendReport builds the digest and emails it to the recipient, or the
// client's contact address when none is given.
// POST /api/reports/:slug/send
func (h *Handler) HandleSendReport(c *gin.Context) {
	ctx := c.Request.Context()

	// The body is optional; an empty POST sends to the contact address.
	var req SendReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.ValidationError(c, err)
			return
		}
	}

	report, err := h.reportsProcessor.SendReport(ctx, c.Param("slug"), req.Period, req.Recipient, req.Platforms)
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.SuccessWithMessage(c, http.StatusOK, report, "report sent")
}

func (h *Handler) handleError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, credentials.ErrClientNotFound):
		apiresponse.NotFound(c, "CLIENT_NOT_FOUND", "client not found")
	case errors.Is(err, metrics.ErrInvalidPeriod):
		apiresponse.BadRequest(c, "INVALID_PERIOD", "period must be one of 7d, 30d, 90d")
	case errors.Is(err, processor.ErrNoConnectedPlatforms):
		apiresponse.BadRequest(c, "NO_CONNECTED_PLATFORMS", "client has no connected platforms to report on")
	default:
		h.logger.Error(ctx, "report operation failed", err)
		apiresponse.InternalError(c, err)
	}
}
