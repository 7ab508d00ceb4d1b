package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"agency-server/internal/cache"
	"agency-server/internal/config"
	"agency-server/internal/crypto"
	credentials "agency-server/internal/credentials/processor"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

// stubStore is an in-memory CredentialStore keyed on clientID/platform.
type stubStore struct {
	clients     map[string]store.Client
	credentials map[string]store.PlatformCredential
}

func newStubStore() *stubStore {
	return &stubStore{
		clients:     make(map[string]store.Client),
		credentials: make(map[string]store.PlatformCredential),
	}
}

func credKey(clientID uuid.UUID, platform string) string {
	return clientID.String() + "/" + platform
}

func (s *stubStore) GetClientBySlug(_ context.Context, slug string) (store.Client, error) {
	client, ok := s.clients[slug]
	if !ok {
		return store.Client{}, store.ErrNotFound
	}
	return client, nil
}

func (s *stubStore) UpsertCredential(_ context.Context, params store.UpsertCredentialParams) (store.PlatformCredential, error) {
	cred := store.PlatformCredential{
		ID:              uuid.New(),
		ClientID:        params.ClientID,
		Platform:        params.Platform,
		AccountRef:      params.AccountRef,
		EncryptedBundle: params.EncryptedBundle,
		Connected:       params.Connected,
	}
	s.credentials[credKey(params.ClientID, params.Platform)] = cred
	return cred, nil
}

func (s *stubStore) GetCredential(_ context.Context, clientID uuid.UUID, platform string) (store.PlatformCredential, error) {
	cred, ok := s.credentials[credKey(clientID, platform)]
	if !ok {
		return store.PlatformCredential{}, store.ErrNotFound
	}
	return cred, nil
}

func (s *stubStore) ListCredentials(_ context.Context, clientID uuid.UUID) ([]store.PlatformCredential, error) {
	var creds []store.PlatformCredential
	for _, cred := range s.credentials {
		if cred.ClientID == clientID {
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

func (s *stubStore) DeleteCredential(_ context.Context, clientID uuid.UUID, platform string) error {
	delete(s.credentials, credKey(clientID, platform))
	return nil
}

func (s *stubStore) DeleteAllCredentials(_ context.Context, clientID uuid.UUID) error {
	for key, cred := range s.credentials {
		if cred.ClientID == clientID {
			delete(s.credentials, key)
		}
	}
	return nil
}

func (s *stubStore) SetConnectionState(_ context.Context, clientID uuid.UUID, platform string, connected bool) error {
	cred, ok := s.credentials[credKey(clientID, platform)]
	if !ok {
		return store.ErrNotFound
	}
	cred.Connected = connected
	s.credentials[credKey(clientID, platform)] = cred
	return nil
}

func (s *stubStore) UpdateCredentialBundle(_ context.Context, clientID uuid.UUID, platform, encryptedBundle string) error {
	cred, ok := s.credentials[credKey(clientID, platform)]
	if !ok {
		return store.ErrNotFound
	}
	cred.EncryptedBundle = encryptedBundle
	cred.Connected = true
	s.credentials[credKey(clientID, platform)] = cred
	return nil
}

func (s *stubStore) ClearCredentialBundle(_ context.Context, clientID uuid.UUID, platform string) error {
	cred, ok := s.credentials[credKey(clientID, platform)]
	if !ok {
		return store.ErrNotFound
	}
	cred.EncryptedBundle = ""
	cred.Connected = false
	s.credentials[credKey(clientID, platform)] = cred
	return nil
}

type testSetup struct {
	processor *OAuthProcessor
	creds     *credentials.CredentialProcessor
	store     *stubStore
	client    store.Client
}

func newTestSetup(t *testing.T) *testSetup {
	t.Helper()
	encryptor, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	stub := newStubStore()
	client := store.Client{ID: uuid.New(), Slug: "acme-co", Name: "Acme Co"}
	stub.clients[client.Slug] = client
	creds := credentials.New(stub, encryptor, cache.New(nil), observability.NewLogger())

	platforms := config.PlatformsConfig{
		GoogleAds: config.OAuthAppConfig{
			ClientID:     "ads-client-id",
			ClientSecret: "ads-client-secret",
			RedirectURI:  "https://api.agency.example/api/oauth/googleads/callback",
		},
		GoogleAnalytics: config.OAuthAppConfig{
			ClientID:     "ga-client-id",
			ClientSecret: "ga-client-secret",
			RedirectURI:  "https://api.agency.example/api/oauth/googleanalytics/callback",
		},
	}
	return &testSetup{
		processor: New(creds, platforms, observability.NewLogger()),
		creds:     creds,
		store:     stub,
		client:    client,
	}
}

// pointTokenEndpointAt redirects every platform config at a local token
// endpoint so exchange and refresh never leave the test process.
func (s *testSetup) pointTokenEndpointAt(serverURL string) {
	for _, cfg := range s.processor.configs {
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:  serverURL + "/auth",
			TokenURL: serverURL + "/token",
		}
	}
}

// tokenEndpoint is a scriptable stand-in for Google's token endpoint.
type tokenEndpoint struct {
	hits     int
	lastForm url.Values
	respond  func(w http.ResponseWriter)
}

func newTokenEndpoint(t *testing.T, setup *testSetup) *tokenEndpoint {
	t.Helper()
	ep := &tokenEndpoint{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep.hits++
		require.NoError(t, r.ParseForm())
		ep.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		ep.respond(w)
	}))
	t.Cleanup(srv.Close)
	setup.pointTokenEndpointAt(srv.URL)
	return ep
}

func grantToken(accessToken, refreshToken string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		body := `{"access_token":"` + accessToken + `","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/adwords"`
		if refreshToken != "" {
			body += `,"refresh_token":"` + refreshToken + `"`
		}
		body += `}`
		w.Write([]byte(body))
	}
}

func rejectGrant(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestAuthURL(t *testing.T) {
	ctx := context.Background()

	t.Run("builds an offline-access consent URL with the slug as state", func(t *testing.T) {
		setup := newTestSetup(t)

		raw, err := setup.processor.AuthURL(ctx, store.PlatformGoogleAds, "acme-co")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "ads-client-id", q.Get("client_id"))
		assert.Equal(t, "acme-co", q.Get("state"))
		assert.Equal(t, "offline", q.Get("access_type"))
		assert.Equal(t, "consent", q.Get("prompt"))
		assert.Contains(t, q.Get("scope"), "adwords")
		assert.Contains(t, q.Get("redirect_uri"), "/oauth/googleads/callback")
	})

	t.Run("analytics flow uses the readonly scope", func(t *testing.T) {
		setup := newTestSetup(t)

		raw, err := setup.processor.AuthURL(ctx, store.PlatformGoogleAnalytics, "acme-co")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Contains(t, u.Query().Get("scope"), "analytics.readonly")
	})

	t.Run("meta has no oauth flow", func(t *testing.T) {
		setup := newTestSetup(t)

		_, err := setup.processor.AuthURL(ctx, store.PlatformMeta, "acme-co")
		assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	})

	t.Run("unknown client", func(t *testing.T) {
		setup := newTestSetup(t)

		_, err := setup.processor.AuthURL(ctx, store.PlatformGoogleAds, "nonexistent-co")
		assert.ErrorIs(t, err, credentials.ErrClientNotFound)
	})
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges the code and persists an encrypted connected bundle", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = grantToken("exchanged-access-token", "exchanged-refresh-token")

		slug, err := setup.processor.HandleCallback(ctx, store.PlatformGoogleAds, "acme-co", "auth-code")
		require.NoError(t, err)
		assert.Equal(t, "acme-co", slug)
		assert.Equal(t, 1, ep.hits)
		assert.Equal(t, "auth-code", ep.lastForm.Get("code"))
		assert.Equal(t, "authorization_code", ep.lastForm.Get("grant_type"))

		cred, err := setup.store.GetCredential(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.True(t, cred.Connected)
		assert.NotEmpty(t, cred.EncryptedBundle)
		assert.NotContains(t, cred.EncryptedBundle, "exchanged-access-token")

		_, bundle, err := setup.creds.GetBundle(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.Equal(t, "exchanged-access-token", bundle.AccessToken)
		assert.Equal(t, "exchanged-refresh-token", bundle.RefreshToken)
		require.NotNil(t, bundle.ExpiresAt)
		assert.True(t, bundle.ExpiresAt.After(time.Now()))
	})

	t.Run("reconnect keeps the stored account reference", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = grantToken("fresh-token", "fresh-refresh")
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123-456-7890", credentials.Bundle{AccessToken: "stale"})
		require.NoError(t, err)

		_, err = setup.processor.HandleCallback(ctx, store.PlatformGoogleAds, "acme-co", "auth-code")
		require.NoError(t, err)

		cred, err := setup.store.GetCredential(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.Equal(t, "123-456-7890", cred.AccountRef)
	})

	t.Run("unknown state never reaches the token endpoint", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = grantToken("unused", "")

		_, err := setup.processor.HandleCallback(ctx, store.PlatformGoogleAds, "nonexistent-co", "auth-code")
		assert.ErrorIs(t, err, credentials.ErrClientNotFound)
		assert.Equal(t, 0, ep.hits)
	})

	t.Run("failed exchange stores nothing", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = rejectGrant(http.StatusBadRequest, `{"error":"invalid_request"}`)

		_, err := setup.processor.HandleCallback(ctx, store.PlatformGoogleAds, "acme-co", "bad-code")
		require.Error(t, err)
		_, getErr := setup.store.GetCredential(ctx, setup.client.ID, store.PlatformGoogleAds)
		assert.ErrorIs(t, getErr, store.ErrNotFound)
	})

	t.Run("meta has no callback", func(t *testing.T) {
		setup := newTestSetup(t)

		_, err := setup.processor.HandleCallback(ctx, store.PlatformMeta, "acme-co", "auth-code")
		assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the renewed bundle and keeps the old refresh token", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		// Google omits the refresh token on renewal.
		ep.respond = grantToken("renewed-access-token", "")
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123", credentials.Bundle{
			AccessToken:  "expired-access-token",
			RefreshToken: "original-refresh-token",
		})
		require.NoError(t, err)

		refreshed, err := setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, credentials.Bundle{
			AccessToken:  "expired-access-token",
			RefreshToken: "original-refresh-token",
		})
		require.NoError(t, err)
		assert.Equal(t, "refresh_token", ep.lastForm.Get("grant_type"))
		assert.Equal(t, "original-refresh-token", ep.lastForm.Get("refresh_token"))
		assert.Equal(t, "renewed-access-token", refreshed.AccessToken)
		assert.Equal(t, "original-refresh-token", refreshed.RefreshToken)

		_, stored, err := setup.creds.GetBundle(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.Equal(t, "renewed-access-token", stored.AccessToken)
		assert.Equal(t, "original-refresh-token", stored.RefreshToken)
	})

	t.Run("back-to-back refreshes both hit the endpoint and last write wins", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		bundle := credentials.Bundle{AccessToken: "expired", RefreshToken: "refresh-token"}
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123", bundle)
		require.NoError(t, err)

		ep.respond = grantToken("first-renewal", "")
		_, err = setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, bundle)
		require.NoError(t, err)
		ep.respond = grantToken("second-renewal", "")
		_, err = setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, bundle)
		require.NoError(t, err)
		assert.Equal(t, 2, ep.hits)

		_, stored, err := setup.creds.GetBundle(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.Equal(t, "second-renewal", stored.AccessToken)
	})

	t.Run("rejected refresh token invalidates the stored bundle", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = rejectGrant(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123", credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "revoked-refresh-token",
		})
		require.NoError(t, err)

		_, err = setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "revoked-refresh-token",
		})
		assert.ErrorIs(t, err, ErrReauthRequired)

		cred, err := setup.store.GetCredential(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.False(t, cred.Connected)
		assert.Empty(t, cred.EncryptedBundle)
		_, _, err = setup.creds.GetBundle(ctx, setup.client.ID, store.PlatformGoogleAds)
		assert.ErrorIs(t, err, credentials.ErrNotConfigured)
	})

	t.Run("unauthorized token endpoint also fails closed", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = rejectGrant(http.StatusUnauthorized, `{"error":"unauthorized_client"}`)
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123", credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "refresh-token",
		})
		require.NoError(t, err)

		_, err = setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "refresh-token",
		})
		assert.ErrorIs(t, err, ErrReauthRequired)
	})

	t.Run("transient endpoint failure is not a rejection", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = rejectGrant(http.StatusInternalServerError, `backend error`)
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123", credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "refresh-token",
		})
		require.NoError(t, err)

		_, err = setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "refresh-token",
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrReauthRequired)

		// The bundle survives a transient failure.
		_, stored, err := setup.creds.GetBundle(ctx, setup.client.ID, store.PlatformGoogleAds)
		require.NoError(t, err)
		assert.Equal(t, "refresh-token", stored.RefreshToken)
	})

	t.Run("no refresh token stored", func(t *testing.T) {
		setup := newTestSetup(t)

		_, err := setup.processor.Refresh(ctx, setup.client, store.PlatformGoogleAds, credentials.Bundle{AccessToken: "expired"})
		assert.ErrorIs(t, err, ErrNoRefreshToken)
	})
}

func TestEnsureFresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("unexpired bundle is returned untouched", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = grantToken("unused", "")
		expires := now.Add(time.Hour)
		bundle := credentials.Bundle{AccessToken: "still-good", RefreshToken: "refresh-token", ExpiresAt: &expires}

		fresh, err := setup.processor.EnsureFresh(ctx, setup.client, store.PlatformGoogleAds, bundle, now)
		require.NoError(t, err)
		assert.Equal(t, "still-good", fresh.AccessToken)
		assert.Equal(t, 0, ep.hits)
	})

	t.Run("expired bundle is refreshed", func(t *testing.T) {
		setup := newTestSetup(t)
		ep := newTokenEndpoint(t, setup)
		ep.respond = grantToken("renewed-access-token", "")
		_, err := setup.creds.SaveCredentials(ctx, "acme-co", store.PlatformGoogleAds, "123", credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "refresh-token",
		})
		require.NoError(t, err)

		expires := now.Add(-time.Minute)
		fresh, err := setup.processor.EnsureFresh(ctx, setup.client, store.PlatformGoogleAds, credentials.Bundle{
			AccessToken:  "expired",
			RefreshToken: "refresh-token",
			ExpiresAt:    &expires,
		}, now)
		require.NoError(t, err)
		assert.Equal(t, "renewed-access-token", fresh.AccessToken)
		assert.Equal(t, 1, ep.hits)
	})
}
