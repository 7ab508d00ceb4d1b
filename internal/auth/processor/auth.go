package processor

import (
	"agency-server/internal/observability"
	"agency-server/internal/store"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidJWTToken    = errors.New("invalid jwt token")
	ErrParseJWTToken      = errors.New("failed to parse jwt token")
	ErrUserNotFound       = errors.New("user not found")
)

// AuthStore defines the database operations required by AuthProcessor
type AuthStore interface {
	GetStaffUserByEmail(ctx context.Context, email string) (store.StaffUser, error)
	GetStaffUserByID(ctx context.Context, id uuid.UUID) (store.StaffUser, error)
}

type AuthProcessor struct {
	store     AuthStore
	jwtSecret string
	logger    *observability.Logger
}

func New(store AuthStore, jwtSecret string, logger *observability.Logger) AuthProcessor {
	return AuthProcessor{
		store:     store,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// SessionUser is the authenticated-user shape returned to the dashboard.
type SessionUser struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// SessionClaims are the JWT claims carried by a staff session token.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Login verifies a staff user's password and returns a signed session token.
func (p *AuthProcessor) Login(ctx context.Context, email, password string) (string, SessionUser, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "email", Value: email})

	user, err := p.store.GetStaffUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", SessionUser{}, ErrInvalidCredentials
		}
		p.logger.Error(ctx, "failed to get staff user by email", err)
		return "", SessionUser{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return "", SessionUser{}, ErrInvalidCredentials
	}

	token, err := p.generateJWTToken(user)
	if err != nil {
		p.logger.Error(ctx, "failed to generate jwt token", err)
		return "", SessionUser{}, err
	}

	return token, SessionUser{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}, nil
}

func (p *AuthProcessor) generateJWTToken(user store.StaffUser) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    "agency-server",
			Audience:  jwt.ClaimStrings{"agency-server"},
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(p.jwtSecret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ValidateJWTToken parses and verifies a session token.
func (p *AuthProcessor) ValidateJWTToken(ctx context.Context, token string) (SessionClaims, error) {
	var claims SessionClaims
	t, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.jwtSecret), nil
	})
	if err != nil {
		return SessionClaims{}, ErrParseJWTToken
	}
	if !t.Valid {
		return SessionClaims{}, ErrInvalidJWTToken
	}
	return claims, nil
}

// GetUserByID fetches the session user for the /me surface.
func (p *AuthProcessor) GetUserByID(ctx context.Context, id uuid.UUID) (SessionUser, error) {
	user, err := p.store.GetStaffUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SessionUser{}, ErrUserNotFound
		}
		p.logger.Error(ctx, "failed to get staff user by id", err)
		return SessionUser{}, err
	}
	return SessionUser{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}, nil
}
