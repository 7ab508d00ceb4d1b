package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-server/internal/apiresponse"
	"agency-server/internal/observability"
	"agency-server/internal/tenants/processor"
)

type Handler struct {
	tenantProcessor *processor.TenantProcessor
	logger          *observability.Logger
}

func New(tenantProcessor *processor.TenantProcessor, logger *observability.Logger) *Handler {
	return &Handler{
		tenantProcessor: tenantProcessor,
		logger:          logger,
	}
}

type CreateClientRequest struct {
	Slug          string   `json:"slug" binding:"required"`
	Name          string   `json:"name" binding:"required"`
	ContactEmail  string   `json:"contact_email" binding:"required,email"`
	MonthlyBudget float64  `json:"monthly_budget" binding:"omitempty,gte=0"`
	Status        string   `json:"status"`
	Tags          []string `json:"tags"`
}

type UpdateClientRequest struct {
	Name          *string  `json:"name"`
	ContactEmail  *string  `json:"contact_email" binding:"omitempty,email"`
	MonthlyBudget *float64 `json:"monthly_budget" binding:"omitempty,gte=0"`
	Status        *string  `json:"status"`
	Tags          []string `json:"tags"`
}

// HandleCreateClient creates a new client tenant.
// POST /api/clients
func (h *Handler) HandleCreateClient(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponse.ValidationError(c, err)
		return
	}

	client, err := h.tenantProcessor.CreateClient(ctx, processor.CreateClientInput{
		Slug:          req.Slug,
		Name:          req.Name,
		ContactEmail:  req.ContactEmail,
		MonthlyBudget: req.MonthlyBudget,
		Status:        req.Status,
		Tags:          req.Tags,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusCreated, client)
}

// HandleGetClient returns a single client by slug.
// GET /api/clients/:slug
func (h *Handler) HandleGetClient(c *gin.Context) {
	ctx := c.Request.Context()

	client, err := h.tenantProcessor.GetClient(ctx, c.Param("slug"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, client)
}

// HandleListClients lists clients, optionally filtered with ?status=.
// GET /api/clients
func (h *Handler) HandleListClients(c *gin.Context) {
	ctx := c.Request.Context()

	clients, err := h.tenantProcessor.ListClients(ctx, c.Query("status"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, gin.H{"clients": clients})
}

// HandleUpdateClient applies a partial update to a client.
// PUT /api/clients/:slug
func (h *Handler) HandleUpdateClient(c *gin.Context) {
	ctx := c.Request.Context()

	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponse.ValidationError(c, err)
		return
	}

	client, err := h.tenantProcessor.UpdateClient(ctx, c.Param("slug"), processor.UpdateClientInput{
		Name:          req.Name,
		ContactEmail:  req.ContactEmail,
		MonthlyBudget: req.MonthlyBudget,
		Status:        req.Status,
		Tags:          req.Tags,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, client)
}

// HandleDeleteClient soft-deletes a client and its stored credentials.
// DELETE /api/clients/:slug
func (h *Handler) HandleDeleteClient(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.tenantProcessor.DeleteClient(ctx, c.Param("slug")); err != nil {
		h.handleError(c, err)
		return
	}
	apiresponse.SuccessWithMessage(c, http.StatusOK, nil, "client deleted")
}

func (h *Handler) handleError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, processor.ErrClientNotFound):
		apiresponse.NotFound(c, "CLIENT_NOT_FOUND", "client not found")
	case errors.Is(err, processor.ErrSlugExists):
		apiresponse.Conflict(c, "SLUG_EXISTS", "a client with this slug already exists")
	case errors.Is(err, processor.ErrInvalidSlug):
		apiresponse.BadRequest(c, "INVALID_SLUG", "slug must be lowercase alphanumerics and hyphens")
	case errors.Is(err, processor.ErrInvalidStatus):
		apiresponse.BadRequest(c, "INVALID_STATUS", "status must be one of active, inactive, pending")
	default:
		h.logger.Error(ctx, "tenant operation failed", err)
		apiresponse.InternalError(c, err)
	}
}
