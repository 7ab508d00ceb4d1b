package processor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"agency-server/internal/cache"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

var (
	// ErrClientNotFound indicates that no active client matched the slug.
	ErrClientNotFound = errors.New("client not found")
	// ErrSlugExists indicates a create with a slug already in use.
	ErrSlugExists = errors.New("slug already exists")
	// ErrInvalidSlug indicates a slug that is not URL-safe.
	ErrInvalidSlug = errors.New("invalid slug")
	// ErrInvalidStatus indicates an unknown client status value.
	ErrInvalidStatus = errors.New("invalid status")
)

// Slugs are lowercase alphanumerics and hyphens, must not start or end with
// a hyphen, and are capped at 64 characters so they stay usable in URLs.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const maxSlugLength = 64

// TenantStore is the persistence surface the processor depends on.
type TenantStore interface {
	CreateClient(ctx context.Context, params store.CreateClientParams) (store.Client, error)
	GetClientBySlug(ctx context.Context, slug string) (store.Client, error)
	ListClients(ctx context.Context, status *string) ([]store.Client, error)
	UpdateClient(ctx context.Context, slug string, params store.UpdateClientParams) (store.Client, error)
	DeleteClient(ctx context.Context, slug string) error
}

// TenantProcessor owns the client (tenant) lifecycle: creation, listing,
// updates and deletion with its cascade into credentials and caches.
type TenantProcessor struct {
	store  TenantStore
	cache  *cache.Service
	logger *observability.Logger
}

func New(tenantStore TenantStore, cacheSvc *cache.Service, logger *observability.Logger) *TenantProcessor {
	return &TenantProcessor{
		store:  tenantStore,
		cache:  cacheSvc,
		logger: logger,
	}
}

// CreateClientInput carries validated-at-the-handler fields for creation.
type CreateClientInput struct {
	Slug          string
	Name          string
	ContactEmail  string
	MonthlyBudget float64
	Status        string
	Tags          []string
}

// UpdateClientInput carries partial-update fields. Nil means "leave as is".
// Slug is immutable and therefore absent.
type UpdateClientInput struct {
	Name          *string
	ContactEmail  *string
	MonthlyBudget *float64
	Status        *string
	Tags          []string
}

// CreateClient validates the slug and status, dedupes tags, and persists a
// new client. A duplicate slug surfaces as ErrSlugExists.
func (p *TenantProcessor) CreateClient(ctx context.Context, input CreateClientInput) (store.Client, error) {
	if !ValidSlug(input.Slug) {
		return store.Client{}, ErrInvalidSlug
	}
	status := input.Status
	if status == "" {
		status = store.ClientStatusActive
	}
	if !store.ValidClientStatus(status) {
		return store.Client{}, ErrInvalidStatus
	}

	client, err := p.store.CreateClient(ctx, store.CreateClientParams{
		Slug:          input.Slug,
		Name:          input.Name,
		ContactEmail:  input.ContactEmail,
		MonthlyBudget: input.MonthlyBudget,
		Status:        status,
		Tags:          dedupeTags(input.Tags),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Client{}, ErrSlugExists
		}
		return store.Client{}, fmt.Errorf("failed to create client: %w", err)
	}
	p.logger.Info(ctx, fmt.Sprintf("created client %s", client.Slug))
	return client, nil
}

// GetClient returns a single active client by slug.
func (p *TenantProcessor) GetClient(ctx context.Context, slug string) (store.Client, error) {
	client, err := p.store.GetClientBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Client{}, ErrClientNotFound
		}
		return store.Client{}, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// ListClients returns all active clients, optionally filtered by status.
func (p *TenantProcessor) ListClients(ctx context.Context, status string) ([]store.Client, error) {
	var filter *string
	if status != "" {
		if !store.ValidClientStatus(status) {
			return nil, ErrInvalidStatus
		}
		filter = &status
	}
	clients, err := p.store.ListClients(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// UpdateClient applies a partial update. The slug itself cannot change.
func (p *TenantProcessor) UpdateClient(ctx context.Context, slug string, input UpdateClientInput) (store.Client, error) {
	if input.Status != nil && !store.ValidClientStatus(*input.Status) {
		return store.Client{}, ErrInvalidStatus
	}
	client, err := p.store.UpdateClient(ctx, slug, store.UpdateClientParams{
		Name:          input.Name,
		ContactEmail:  input.ContactEmail,
		MonthlyBudget: input.MonthlyBudget,
		Status:        input.Status,
		Tags:          dedupeTags(input.Tags),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Client{}, ErrClientNotFound
		}
		return store.Client{}, fmt.Errorf("failed to update client: %w", err)
	}
	p.cache.ClearClient(slug)
	return client, nil
}

// DeleteClient soft-deletes the client. Stored platform credentials are
// removed in the same transaction and cached metrics are dropped, so a
// deleted tenant leaves no secrets or stale data behind.
func (p *TenantProcessor) DeleteClient(ctx context.Context, slug string) error {
	if err := p.store.DeleteClient(ctx, slug); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("failed to delete client: %w", err)
	}
	p.cache.ClearClient(slug)
	p.logger.Info(ctx, fmt.Sprintf("deleted client %s", slug))
	return nil
}

// ValidSlug reports whether the slug is URL-safe.
func ValidSlug(slug string) bool {
	return len(slug) > 0 && len(slug) <= maxSlugLength && slugPattern.MatchString(slug)
}

// dedupeTags trims, lowercases and dedupes tags, preserving first-seen
// order. Nil stays nil so partial updates can distinguish "unset".
func dedupeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
