package handler

import (
	"errors"
	"net/http"
	"strings"

	"agency-server/internal/apiresponse"
	"agency-server/internal/auth/processor"
	"agency-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	authProcessor processor.AuthProcessor
	logger        *observability.Logger
}

func New(authProcessor processor.AuthProcessor, logger *observability.Logger) Handler {
	return Handler{
		authProcessor: authProcessor,
		logger:        logger,
	}
}

// LoginRequest represents the HTTP request for staff login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// HandleLogin authenticates a staff user and returns a session token
func (h *Handler) HandleLogin(c *gin.Context) {
	ctx := c.Request.Context()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponse.ValidationError(c, err)
		return
	}

	token, user, err := h.authProcessor.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, processor.ErrInvalidCredentials) {
			apiresponse.Unauthorized(c, "Invalid email or password")
			return
		}
		apiresponse.InternalError(c, err)
		return
	}

	apiresponse.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// HandleGetMe returns the authenticated user's profile
func (h *Handler) HandleGetMe(c *gin.Context) {
	ctx := c.Request.Context()

	userIDStr, exists := c.Get("User-ID")
	if !exists {
		apiresponse.Unauthorized(c, "User ID not found in context")
		return
	}
	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		apiresponse.Unauthorized(c, "Invalid user ID in session")
		return
	}

	user, err := h.authProcessor.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, processor.ErrUserNotFound) {
			apiresponse.NotFound(c, "USER_NOT_FOUND", "User not found")
			return
		}
		apiresponse.InternalError(c, err)
		return
	}
	apiresponse.Success(c, http.StatusOK, user)
}

// HandleJWTMiddleware validates the bearer token and stores the user identity
// in the gin context for downstream handlers.
func (h *Handler) HandleJWTMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	tokenHeader := c.GetHeader("Authorization")

	if tokenHeader == "" || !strings.HasPrefix(tokenHeader, "Bearer ") {
		apiresponse.Unauthorized(c, "Authorization token is missing or invalid")
		c.Abort()
		return
	}

	tokenString := strings.TrimPrefix(tokenHeader, "Bearer ")

	claims, err := h.authProcessor.ValidateJWTToken(ctx, tokenString)
	if err != nil {
		apiresponse.Unauthorized(c, "Authorization token is missing or invalid")
		c.Abort()
		return
	}

	c.Set("User-ID", claims.Subject)
	c.Set("User-Role", claims.Role)
	c.Next()
}

// RequireAdmin aborts with 403 unless the session carries the admin role.
// Mutating tenant and credential routes sit behind this guard.
func (h *Handler) RequireAdmin(c *gin.Context) {
	role, exists := c.Get("User-Role")
	if !exists || role != "admin" {
		apiresponse.Forbidden(c, "FORBIDDEN", "Administrator access required")
		c.Abort()
		return
	}
	c.Next()
}
