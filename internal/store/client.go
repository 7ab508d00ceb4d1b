package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// Client represents one agency tenant.
type Client struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Slug          string         `db:"slug" json:"slug"`
	Name          string         `db:"name" json:"name"`
	ContactEmail  string         `db:"contact_email" json:"contact_email"`
	MonthlyBudget float64        `db:"monthly_budget" json:"monthly_budget"`
	Status        string         `db:"status" json:"status"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time     `db:"deleted_at" json:"-"`
}

// CreateClientParams represents parameters for creating a client
type CreateClientParams struct {
	Slug          string
	Name          string
	ContactEmail  string
	MonthlyBudget float64
	Status        string
	Tags          []string
}

// UpdateClientParams represents parameters for updating a client. The slug is
// immutable and therefore absent.
type UpdateClientParams struct {
	Name          *string
	ContactEmail  *string
	MonthlyBudget *float64
	Status        *string
	Tags          []string
}

const sqlCreateClient = `
INSERT INTO clients (slug, name, contact_email, monthly_budget, status, tags)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, slug, name, contact_email, monthly_budget, status, tags, created_at, updated_at, deleted_at
`

// CreateClient creates a new client tenant
func (s *Store) CreateClient(ctx context.Context, params CreateClientParams) (Client, error) {
	var client Client
	err := s.db.GetContext(ctx, &client, sqlCreateClient,
		params.Slug,
		params.Name,
		params.ContactEmail,
		params.MonthlyBudget,
		params.Status,
		pq.StringArray(params.Tags))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Client{}, ErrDuplicate
		}
		s.logger.Error(ctx, "failed to create client", err)
		return Client{}, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

const sqlGetClientBySlug = `
SELECT id, slug, name, contact_email, monthly_budget, status, tags, created_at, updated_at, deleted_at
FROM clients
WHERE slug = $1 AND deleted_at IS NULL
`

// GetClientBySlug fetches a client by its slug
func (s *Store) GetClientBySlug(ctx context.Context, slug string) (Client, error) {
	var client Client
	err := s.db.GetContext(ctx, &client, sqlGetClientBySlug, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get client by slug", err)
		return Client{}, fmt.Errorf("failed to get client by slug: %w", err)
	}
	return client, nil
}

const sqlListClients = `
SELECT id, slug, name, contact_email, monthly_budget, status, tags, created_at, updated_at, deleted_at
FROM clients
WHERE deleted_at IS NULL AND ($1::text IS NULL OR status = $1)
ORDER BY name
`

// ListClients lists all non-deleted clients, optionally filtered by status
func (s *Store) ListClients(ctx context.Context, status *string) ([]Client, error) {
	clients := []Client{}
	err := s.db.SelectContext(ctx, &clients, sqlListClients, status)
	if err != nil {
		s.logger.Error(ctx, "failed to list clients", err)
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

const sqlUpdateClient = `
UPDATE clients SET
    name = COALESCE($2, name),
    contact_email = COALESCE($3, contact_email),
    monthly_budget = COALESCE($4, monthly_budget),
    status = COALESCE($5, status),
    tags = COALESCE($6, tags),
    updated_at = NOW()
WHERE slug = $1 AND deleted_at IS NULL
RETURNING id, slug, name, contact_email, monthly_budget, status, tags, created_at, updated_at, deleted_at
`

// UpdateClient applies a partial update to a client
func (s *Store) UpdateClient(ctx context.Context, slug string, params UpdateClientParams) (Client, error) {
	var tags interface{}
	if params.Tags != nil {
		tags = pq.StringArray(params.Tags)
	}

	var client Client
	err := s.db.GetContext(ctx, &client, sqlUpdateClient,
		slug,
		params.Name,
		params.ContactEmail,
		params.MonthlyBudget,
		params.Status,
		tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to update client", err)
		return Client{}, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

const sqlSoftDeleteClient = `
UPDATE clients SET deleted_at = NOW(), updated_at = NOW()
WHERE slug = $1 AND deleted_at IS NULL
RETURNING id
`

const sqlDeleteClientCredentials = `
DELETE FROM platform_credentials WHERE client_id = $1
`

// DeleteClient soft-deletes a client and removes all of its stored platform
// credentials in one transaction.
func (s *Store) DeleteClient(ctx context.Context, slug string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error(ctx, "failed to rollback transaction", err)
		}
	}()

	var clientID uuid.UUID
	err = tx.GetContext(ctx, &clientID, sqlSoftDeleteClient, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		s.logger.Error(ctx, "failed to delete client", err)
		return fmt.Errorf("failed to delete client: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteClientCredentials, clientID); err != nil {
		s.logger.Error(ctx, "failed to delete client credentials", err)
		return fmt.Errorf("failed to delete client credentials: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit transaction", err)
		return err
	}
	return nil
}
