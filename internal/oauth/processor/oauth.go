package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"agency-server/internal/config"
	credentials "agency-server/internal/credentials/processor"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

var (
	// ErrUnsupportedPlatform indicates a platform without an OAuth flow.
	// Meta is connected with a manually supplied long-lived token.
	ErrUnsupportedPlatform = errors.New("platform has no oauth flow")
	// ErrReauthRequired indicates the refresh token was rejected. The stored
	// credentials have been invalidated and the client must reconnect.
	ErrReauthRequired = errors.New("reauthorization required")
	// ErrNoRefreshToken indicates the stored bundle cannot be refreshed.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)

const (
	scopeAdWords   = "https://www.googleapis.com/auth/adwords"
	scopeAnalytics = "https://www.googleapis.com/auth/analytics.readonly"
)

// OAuthProcessor drives the Google authorization-code flow for the ad
// platforms and the refresh lifecycle of stored tokens.
type OAuthProcessor struct {
	credentials *credentials.CredentialProcessor
	configs     map[string]*oauth2.Config
	logger      *observability.Logger
}

func New(creds *credentials.CredentialProcessor, platforms config.PlatformsConfig, logger *observability.Logger) *OAuthProcessor {
	return &OAuthProcessor{
		credentials: creds,
		configs: map[string]*oauth2.Config{
			store.PlatformGoogleAds: {
				ClientID:     platforms.GoogleAds.ClientID,
				ClientSecret: platforms.GoogleAds.ClientSecret,
				RedirectURL:  platforms.GoogleAds.RedirectURI,
				Scopes:       []string{scopeAdWords},
				Endpoint:     google.Endpoint,
			},
			store.PlatformGoogleAnalytics: {
				ClientID:     platforms.GoogleAnalytics.ClientID,
				ClientSecret: platforms.GoogleAnalytics.ClientSecret,
				RedirectURL:  platforms.GoogleAnalytics.RedirectURI,
				Scopes:       []string{scopeAnalytics},
				Endpoint:     google.Endpoint,
			},
		},
		logger: logger,
	}
}

// AuthURL returns the Google consent URL for connecting a client to a
// platform. The client slug travels as the state parameter and is matched
// against the tenant table on callback. offline access and forced consent
// guarantee a refresh token on every connect.
func (p *OAuthProcessor) AuthURL(ctx context.Context, platform, slug string) (string, error) {
	cfg, ok := p.configs[platform]
	if !ok {
		return "", ErrUnsupportedPlatform
	}
	if _, err := p.credentials.ResolveClient(ctx, slug); err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(slug,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// HandleCallback exchanges the authorization code, encrypts the resulting
// token bundle and stores it for the client named by the state parameter.
// Returns the client slug so the handler can redirect back to its edit page.
func (p *OAuthProcessor) HandleCallback(ctx context.Context, platform, state, code string) (string, error) {
	cfg, ok := p.configs[platform]
	if !ok {
		return "", ErrUnsupportedPlatform
	}
	slug := state
	client, err := p.credentials.ResolveClient(ctx, slug)
	if err != nil {
		return slug, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		p.logger.Error(ctx, fmt.Sprintf("oauth exchange failed for %s/%s", platform, slug), err)
		return slug, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	// A re-connect keeps whatever account reference was entered before.
	accountRef, err := p.credentials.AccountRef(ctx, client.ID, platform)
	if err != nil {
		return slug, err
	}

	if _, err := p.credentials.SaveCredentials(ctx, slug, platform, accountRef, bundleFromToken(token)); err != nil {
		return slug, err
	}
	p.logger.Info(ctx, fmt.Sprintf("connected %s for client %s via oauth", platform, slug))
	return slug, nil
}

// Refresh exchanges the stored refresh token for a fresh access token and
// persists the updated bundle. A rejected refresh token invalidates the
// stored credentials and returns ErrReauthRequired, so broken connections
// fail closed instead of being retried forever.
func (p *OAuthProcessor) Refresh(ctx context.Context, client store.Client, platform string, bundle credentials.Bundle) (credentials.Bundle, error) {
	cfg, ok := p.configs[platform]
	if !ok {
		return credentials.Bundle{}, ErrUnsupportedPlatform
	}
	if bundle.RefreshToken == "" {
		return credentials.Bundle{}, ErrNoRefreshToken
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: bundle.RefreshToken})
	token, err := src.Token()
	if err != nil {
		if isAuthRejection(err) {
			p.logger.Warn(ctx, fmt.Sprintf("refresh token rejected for %s/%s, invalidating", platform, client.Slug))
			if invErr := p.credentials.Invalidate(ctx, client.ID, platform); invErr != nil {
				p.logger.Error(ctx, "failed to invalidate credentials after rejected refresh", invErr)
			}
			return credentials.Bundle{}, ErrReauthRequired
		}
		return credentials.Bundle{}, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshed := bundleFromToken(token)
	if refreshed.RefreshToken == "" {
		// Google often omits the refresh token on renewal.
		refreshed.RefreshToken = bundle.RefreshToken
	}
	if err := p.credentials.UpdateBundle(ctx, client.ID, platform, refreshed); err != nil {
		return credentials.Bundle{}, err
	}
	return refreshed, nil
}

// EnsureFresh returns a bundle with a usable access token, refreshing it
// first when it has expired.
func (p *OAuthProcessor) EnsureFresh(ctx context.Context, client store.Client, platform string, bundle credentials.Bundle, now time.Time) (credentials.Bundle, error) {
	if !bundle.Expired(now) {
		return bundle, nil
	}
	return p.Refresh(ctx, client, platform, bundle)
}

func bundleFromToken(token *oauth2.Token) credentials.Bundle {
	bundle := credentials.Bundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		bundle.ExpiresAt = &expiry
	}
	if scope, ok := token.Extra("scope").(string); ok {
		bundle.Scope = scope
	}
	return bundle
}

// isAuthRejection reports whether the token endpoint refused the grant
// itself, as opposed to a transient failure.
func isAuthRejection(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.Response != nil &&
		(retrieveErr.Response.StatusCode == http.StatusUnauthorized || retrieveErr.Response.StatusCode == http.StatusForbidden) {
		return true
	}
	return strings.Contains(string(retrieveErr.Body), "invalid_grant")
}
