package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agency-server/internal/cache"
	"agency-server/internal/crypto"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

var (
	// ErrClientNotFound indicates that no active client matched the slug.
	ErrClientNotFound = errors.New("client not found")
	// ErrNotConfigured indicates that the client has no stored credentials
	// for the requested platform.
	ErrNotConfigured = errors.New("platform credentials not configured")
	// ErrUnsupportedPlatform indicates an unknown platform identifier.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Bundle is the decrypted credential payload stored for a client/platform
// pair. Field presence varies by platform: Meta carries only a long-lived
// access token, while the Google platforms carry the full OAuth set.
type Bundle struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
}

// Expired reports whether the access token is past its expiry. Bundles
// without an expiry (manual Meta tokens) never expire here.
func (b Bundle) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// ConnectionStatus is the secret-free view of a stored credential. This is
// the only shape credential reads ever expose over the API.
type ConnectionStatus struct {
	Platform   string     `json:"platform"`
	Connected  bool       `json:"connected"`
	AccountRef string     `json:"account_ref,omitempty"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
}

// CredentialStore is the persistence surface the processor depends on.
type CredentialStore interface {
	GetClientBySlug(ctx context.Context, slug string) (store.Client, error)
	UpsertCredential(ctx context.Context, params store.UpsertCredentialParams) (store.PlatformCredential, error)
	GetCredential(ctx context.Context, clientID uuid.UUID, platform string) (store.PlatformCredential, error)
	ListCredentials(ctx context.Context, clientID uuid.UUID) ([]store.PlatformCredential, error)
	DeleteCredential(ctx context.Context, clientID uuid.UUID, platform string) error
	DeleteAllCredentials(ctx context.Context, clientID uuid.UUID) error
	SetConnectionState(ctx context.Context, clientID uuid.UUID, platform string, connected bool) error
	UpdateCredentialBundle(ctx context.Context, clientID uuid.UUID, platform string, encryptedBundle string) error
	ClearCredentialBundle(ctx context.Context, clientID uuid.UUID, platform string) error
}

// CredentialProcessor handles encryption, storage and retrieval of platform
// credentials. Decrypted bundles never leave this package except to the
// OAuth and insights processors, which hold them in memory only.
type CredentialProcessor struct {
	store     CredentialStore
	encryptor *crypto.Encryptor
	cache     *cache.Service
	logger    *observability.Logger
}

func New(credStore CredentialStore, encryptor *crypto.Encryptor, cacheSvc *cache.Service, logger *observability.Logger) *CredentialProcessor {
	return &CredentialProcessor{
		store:     credStore,
		encryptor: encryptor,
		cache:     cacheSvc,
		logger:    logger,
	}
}

// ResolveClient looks up an active client by slug.
func (p *CredentialProcessor) ResolveClient(ctx context.Context, slug string) (store.Client, error) {
	client, err := p.store.GetClientBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Client{}, ErrClientNotFound
		}
		return store.Client{}, fmt.Errorf("failed to resolve client %q: %w", slug, err)
	}
	return client, nil
}

// SaveCredentials encrypts the bundle and upserts it for the client/platform
// pair, marking the connection active. Cached metrics for the client are
// dropped so the next read reflects the new credentials.
func (p *CredentialProcessor) SaveCredentials(ctx context.Context, slug, platform, accountRef string, bundle Bundle) (ConnectionStatus, error) {
	if !store.ValidPlatform(platform) {
		return ConnectionStatus{}, ErrUnsupportedPlatform
	}
	client, err := p.ResolveClient(ctx, slug)
	if err != nil {
		return ConnectionStatus{}, err
	}

	blob, err := p.encryptor.EncryptCredentials(bundle)
	if err != nil {
		p.logger.Error(ctx, "failed to encrypt credential bundle", err)
		return ConnectionStatus{}, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	cred, err := p.store.UpsertCredential(ctx, store.UpsertCredentialParams{
		ClientID:        client.ID,
		Platform:        platform,
		AccountRef:      accountRef,
		EncryptedBundle: blob,
		Connected:       true,
	})
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("failed to store credentials: %w", err)
	}

	p.cache.ClearClient(slug)
	p.logger.Info(ctx, fmt.Sprintf("stored %s credentials for client %s", platform, slug))
	return statusOf(cred), nil
}

// GetConnectionSummary returns the secret-free connection state for every
// platform the client has credentials for.
func (p *CredentialProcessor) GetConnectionSummary(ctx context.Context, slug string) ([]ConnectionStatus, error) {
	client, err := p.ResolveClient(ctx, slug)
	if err != nil {
		return nil, err
	}
	creds, err := p.store.ListCredentials(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	statuses := make([]ConnectionStatus, 0, len(creds))
	for _, cred := range creds {
		statuses = append(statuses, statusOf(cred))
	}
	return statuses, nil
}

// DeleteCredentials removes stored credentials for one platform, or all
// platforms when platform is empty. Client caches are cleared either way.
func (p *CredentialProcessor) DeleteCredentials(ctx context.Context, slug, platform string) error {
	client, err := p.ResolveClient(ctx, slug)
	if err != nil {
		return err
	}
	if platform == "" {
		if err := p.store.DeleteAllCredentials(ctx, client.ID); err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
	} else {
		if !store.ValidPlatform(platform) {
			return ErrUnsupportedPlatform
		}
		if err := p.store.DeleteCredential(ctx, client.ID, platform); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotConfigured
			}
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
	}
	p.cache.ClearClient(slug)
	p.logger.Info(ctx, fmt.Sprintf("deleted credentials for client %s platform=%q", slug, platform))
	return nil
}

// GetBundle loads and decrypts the stored bundle for a client/platform pair.
// The credential row is returned alongside so callers can read account_ref
// and connection state without a second query.
func (p *CredentialProcessor) GetBundle(ctx context.Context, clientID uuid.UUID, platform string) (store.PlatformCredential, Bundle, error) {
	cred, err := p.store.GetCredential(ctx, clientID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.PlatformCredential{}, Bundle{}, ErrNotConfigured
		}
		return store.PlatformCredential{}, Bundle{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if cred.EncryptedBundle == "" {
		return store.PlatformCredential{}, Bundle{}, ErrNotConfigured
	}
	var bundle Bundle
	if err := p.encryptor.DecryptCredentials(cred.EncryptedBundle, &bundle); err != nil {
		p.logger.Error(ctx, "failed to decrypt credential bundle", err)
		return store.PlatformCredential{}, Bundle{}, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return cred, bundle, nil
}

// AccountRef returns the stored account reference for a client/platform
// pair, or empty when no credential row exists yet. OAuth callbacks use this
// to avoid clobbering a previously entered account ID.
func (p *CredentialProcessor) AccountRef(ctx context.Context, clientID uuid.UUID, platform string) (string, error) {
	cred, err := p.store.GetCredential(ctx, clientID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	return cred.AccountRef, nil
}

// UpdateBundle re-encrypts and stores a refreshed bundle, marking the
// connection active and bumping last_sync.
func (p *CredentialProcessor) UpdateBundle(ctx context.Context, clientID uuid.UUID, platform string, bundle Bundle) error {
	blob, err := p.encryptor.EncryptCredentials(bundle)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	if err := p.store.UpdateCredentialBundle(ctx, clientID, platform, blob); err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return nil
}

// Invalidate wipes the stored bundle and marks the connection broken. Called
// when a provider rejects the credentials unrecoverably; the client must
// reconnect before the platform can be queried again.
func (p *CredentialProcessor) Invalidate(ctx context.Context, clientID uuid.UUID, platform string) error {
	if err := p.store.ClearCredentialBundle(ctx, clientID, platform); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to invalidate credentials: %w", err)
	}
	p.logger.Warn(ctx, fmt.Sprintf("invalidated %s credentials for client %s", platform, clientID))
	return nil
}

// SetConnectionState records the outcome of a connection test.
func (p *CredentialProcessor) SetConnectionState(ctx context.Context, clientID uuid.UUID, platform string, connected bool) error {
	if err := p.store.SetConnectionState(ctx, clientID, platform, connected); err != nil {
		return fmt.Errorf("failed to update connection state: %w", err)
	}
	return nil
}

func statusOf(cred store.PlatformCredential) ConnectionStatus {
	return ConnectionStatus{
		Platform:   cred.Platform,
		Connected:  cred.Connected,
		AccountRef: cred.AccountRef,
		LastSync:   cred.LastSync,
	}
}
