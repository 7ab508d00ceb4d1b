package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlatformCredential is one client's stored connection to one platform. The
// bundle column only ever holds ciphertext produced by the encryption module.
type PlatformCredential struct {
	ID              uuid.UUID  `db:"id"`
	ClientID        uuid.UUID  `db:"client_id"`
	Platform        string     `db:"platform"`
	AccountRef      string     `db:"account_ref"`
	EncryptedBundle string     `db:"encrypted_bundle"`
	Connected       bool       `db:"connected"`
	LastSync        *time.Time `db:"last_sync"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// UpsertCredentialParams represents parameters for storing a credential
type UpsertCredentialParams struct {
	ClientID        uuid.UUID
	Platform        string
	AccountRef      string
	EncryptedBundle string
	Connected       bool
}

const sqlUpsertCredential = `
INSERT INTO platform_credentials (client_id, platform, account_ref, encrypted_bundle, connected, last_sync)
VALUES ($1, $2, $3, $4, $5, CASE WHEN $5 THEN NOW() ELSE NULL END)
ON CONFLICT (client_id, platform) DO UPDATE SET
    account_ref = EXCLUDED.account_ref,
    encrypted_bundle = EXCLUDED.encrypted_bundle,
    connected = EXCLUDED.connected,
    last_sync = CASE WHEN EXCLUDED.connected THEN NOW() ELSE platform_credentials.last_sync END,
    updated_at = NOW()
RETURNING id, client_id, platform, account_ref, encrypted_bundle, connected, last_sync, created_at, updated_at
`

// UpsertCredential creates or replaces the credential for a client×platform
func (s *Store) UpsertCredential(ctx context.Context, params UpsertCredentialParams) (PlatformCredential, error) {
	var cred PlatformCredential
	err := s.db.GetContext(ctx, &cred, sqlUpsertCredential,
		params.ClientID,
		params.Platform,
		params.AccountRef,
		params.EncryptedBundle,
		params.Connected)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert credential", err)
		return PlatformCredential{}, fmt.Errorf("failed to upsert credential: %w", err)
	}
	return cred, nil
}

const sqlGetCredential = `
SELECT id, client_id, platform, account_ref, encrypted_bundle, connected, last_sync, created_at, updated_at
FROM platform_credentials
WHERE client_id = $1 AND platform = $2
`

// GetCredential fetches the stored credential for a client×platform
func (s *Store) GetCredential(ctx context.Context, clientID uuid.UUID, platform string) (PlatformCredential, error) {
	var cred PlatformCredential
	err := s.db.GetContext(ctx, &cred, sqlGetCredential, clientID, platform)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PlatformCredential{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get credential", err)
		return PlatformCredential{}, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

const sqlListCredentials = `
SELECT id, client_id, platform, account_ref, encrypted_bundle, connected, last_sync, created_at, updated_at
FROM platform_credentials
WHERE client_id = $1
ORDER BY platform
`

// ListCredentials fetches all stored credentials for a client
func (s *Store) ListCredentials(ctx context.Context, clientID uuid.UUID) ([]PlatformCredential, error) {
	creds := []PlatformCredential{}
	err := s.db.SelectContext(ctx, &creds, sqlListCredentials, clientID)
	if err != nil {
		s.logger.Error(ctx, "failed to list credentials", err)
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

const sqlDeleteCredential = `
DELETE FROM platform_credentials WHERE client_id = $1 AND platform = $2
`

// DeleteCredential removes the stored credential for one platform
func (s *Store) DeleteCredential(ctx context.Context, clientID uuid.UUID, platform string) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteCredential, clientID, platform)
	if err != nil {
		s.logger.Error(ctx, "failed to delete credential", err)
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlDeleteAllCredentials = `
DELETE FROM platform_credentials WHERE client_id = $1
`

// DeleteAllCredentials removes every stored credential for a client
func (s *Store) DeleteAllCredentials(ctx context.Context, clientID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteAllCredentials, clientID); err != nil {
		s.logger.Error(ctx, "failed to delete credentials", err)
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

const sqlSetConnectionState = `
UPDATE platform_credentials SET
    connected = $3,
    last_sync = CASE WHEN $3 THEN NOW() ELSE last_sync END,
    updated_at = NOW()
WHERE client_id = $1 AND platform = $2
`

// SetConnectionState updates the connected flag after a live check or a
// provider auth failure. Connecting also bumps last_sync.
func (s *Store) SetConnectionState(ctx context.Context, clientID uuid.UUID, platform string, connected bool) error {
	res, err := s.db.ExecContext(ctx, sqlSetConnectionState, clientID, platform, connected)
	if err != nil {
		s.logger.Error(ctx, "failed to set connection state", err)
		return fmt.Errorf("failed to set connection state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlClearCredentialBundle = `
UPDATE platform_credentials SET
    encrypted_bundle = '',
    connected = FALSE,
    updated_at = NOW()
WHERE client_id = $1 AND platform = $2
`

// ClearCredentialBundle deletes the stored token bundle and clears the
// connected flag. Used when a refresh fails unrecoverably, so stale
// credentials are never silently retried.
func (s *Store) ClearCredentialBundle(ctx context.Context, clientID uuid.UUID, platform string) error {
	res, err := s.db.ExecContext(ctx, sqlClearCredentialBundle, clientID, platform)
	if err != nil {
		s.logger.Error(ctx, "failed to clear credential bundle", err)
		return fmt.Errorf("failed to clear credential bundle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlUpdateCredentialBundle = `
UPDATE platform_credentials SET
    encrypted_bundle = $3,
    connected = TRUE,
    last_sync = NOW(),
    updated_at = NOW()
WHERE client_id = $1 AND platform = $2
`

// UpdateCredentialBundle replaces the encrypted bundle after a token refresh
func (s *Store) UpdateCredentialBundle(ctx context.Context, clientID uuid.UUID, platform, encryptedBundle string) error {
	res, err := s.db.ExecContext(ctx, sqlUpdateCredentialBundle, clientID, platform, encryptedBundle)
	if err != nil {
		s.logger.Error(ctx, "failed to update credential bundle", err)
		return fmt.Errorf("failed to update credential bundle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
