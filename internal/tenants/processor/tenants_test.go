package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"agency-server/internal/cache"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

func newTestProcessor(t *testing.T) (*TenantProcessor, *MockTenantStore, *cache.Service) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockStore := NewMockTenantStore(ctrl)
	cacheSvc := cache.New(nil)
	p := New(mockStore, cacheSvc, observability.NewLogger())
	return p, mockStore, cacheSvc
}

func TestCreateClient(t *testing.T) {
	ctx := context.Background()

	t.Run("creates with defaulted status and deduped tags", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		mockStore.EXPECT().
			CreateClient(ctx, store.CreateClientParams{
				Slug:          "acme-co",
				Name:          "Acme Co",
				ContactEmail:  "ops@acme.example",
				MonthlyBudget: 5000,
				Status:        store.ClientStatusActive,
				Tags:          []string{"retail", "priority"},
			}).
			Return(store.Client{ID: uuid.New(), Slug: "acme-co"}, nil)

		client, err := p.CreateClient(ctx, CreateClientInput{
			Slug:          "acme-co",
			Name:          "Acme Co",
			ContactEmail:  "ops@acme.example",
			MonthlyBudget: 5000,
			Tags:          []string{"Retail", "priority", " retail "},
		})
		require.NoError(t, err)
		assert.Equal(t, "acme-co", client.Slug)
	})

	t.Run("rejects invalid slugs", func(t *testing.T) {
		p, _, _ := newTestProcessor(t)

		for _, slug := range []string{"", "Acme", "acme co", "-acme", "acme-", "acme_co", "acme--"} {
			_, err := p.CreateClient(ctx, CreateClientInput{Slug: slug, Name: "x"})
			assert.ErrorIs(t, err, ErrInvalidSlug, "slug %q", slug)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		p, _, _ := newTestProcessor(t)

		_, err := p.CreateClient(ctx, CreateClientInput{Slug: "acme-co", Status: "archived"})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("maps duplicate slug to ErrSlugExists", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		mockStore.EXPECT().
			CreateClient(ctx, gomock.Any()).
			Return(store.Client{}, store.ErrDuplicate)

		_, err := p.CreateClient(ctx, CreateClientInput{Slug: "acme-co", Name: "Acme"})
		assert.ErrorIs(t, err, ErrSlugExists)
	})
}

func TestGetClient(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the client", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		want := store.Client{ID: uuid.New(), Slug: "acme-co", Name: "Acme Co"}
		mockStore.EXPECT().GetClientBySlug(ctx, "acme-co").Return(want, nil)

		got, err := p.GetClient(ctx, "acme-co")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("maps missing slug to ErrClientNotFound", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		mockStore.EXPECT().GetClientBySlug(ctx, "nonexistent-co").Return(store.Client{}, store.ErrNotFound)

		_, err := p.GetClient(ctx, "nonexistent-co")
		assert.ErrorIs(t, err, ErrClientNotFound)
	})
}

func TestListClients(t *testing.T) {
	ctx := context.Background()

	t.Run("passes nil filter when status empty", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		mockStore.EXPECT().ListClients(ctx, gomock.Nil()).Return([]store.Client{{Slug: "a"}, {Slug: "b"}}, nil)

		clients, err := p.ListClients(ctx, "")
		require.NoError(t, err)
		assert.Len(t, clients, 2)
	})

	t.Run("filters by status", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		status := store.ClientStatusInactive
		mockStore.EXPECT().ListClients(ctx, &status).Return([]store.Client{}, nil)

		clients, err := p.ListClients(ctx, "inactive")
		require.NoError(t, err)
		assert.Empty(t, clients)
	})

	t.Run("rejects unknown status filter", func(t *testing.T) {
		p, _, _ := newTestProcessor(t)

		_, err := p.ListClients(ctx, "archived")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestUpdateClient(t *testing.T) {
	ctx := context.Background()

	t.Run("applies partial update and clears cached metrics", func(t *testing.T) {
		p, mockStore, cacheSvc := newTestProcessor(t)

		key := cache.Key(cache.KindSummary, "acme-co", map[string]string{"period": "7d"})
		_, err := cacheSvc.WithCache(ctx, cache.KindSummary, "acme-co", key, func(context.Context) (interface{}, error) {
			return "cached", nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, cacheSvc.Len())

		name := "Acme Holdings"
		mockStore.EXPECT().
			UpdateClient(ctx, "acme-co", store.UpdateClientParams{Name: &name}).
			Return(store.Client{Slug: "acme-co", Name: name}, nil)

		client, err := p.UpdateClient(ctx, "acme-co", UpdateClientInput{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, client.Name)
		assert.Equal(t, 0, cacheSvc.Len())
	})

	t.Run("maps missing slug to ErrClientNotFound", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		mockStore.EXPECT().
			UpdateClient(ctx, "nonexistent-co", gomock.Any()).
			Return(store.Client{}, store.ErrNotFound)

		_, err := p.UpdateClient(ctx, "nonexistent-co", UpdateClientInput{})
		assert.ErrorIs(t, err, ErrClientNotFound)
	})
}

func TestDeleteClient(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes and clears only that client's cache", func(t *testing.T) {
		p, mockStore, cacheSvc := newTestProcessor(t)

		for _, slug := range []string{"acme-co", "other-co"} {
			key := cache.Key(cache.KindSummary, slug, nil)
			_, err := cacheSvc.WithCache(ctx, cache.KindSummary, slug, key, func(context.Context) (interface{}, error) {
				return slug, nil
			})
			require.NoError(t, err)
		}
		require.Equal(t, 2, cacheSvc.Len())

		mockStore.EXPECT().DeleteClient(ctx, "acme-co").Return(nil)

		require.NoError(t, p.DeleteClient(ctx, "acme-co"))
		assert.Equal(t, 1, cacheSvc.Len())
	})

	t.Run("maps missing slug to ErrClientNotFound", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		mockStore.EXPECT().DeleteClient(ctx, "nonexistent-co").Return(store.ErrNotFound)

		assert.ErrorIs(t, p.DeleteClient(ctx, "nonexistent-co"), ErrClientNotFound)
	})

	t.Run("wraps other store errors", func(t *testing.T) {
		p, mockStore, _ := newTestProcessor(t)

		boom := errors.New("connection reset")
		mockStore.EXPECT().DeleteClient(ctx, "acme-co").Return(boom)

		assert.ErrorIs(t, p.DeleteClient(ctx, "acme-co"), boom)
	})
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("acme-co"))
	assert.True(t, ValidSlug("a"))
	assert.True(t, ValidSlug("client-42"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug("UPPER"))
	assert.False(t, ValidSlug("has space"))
	assert.False(t, ValidSlug("trailing-"))
}

func TestDedupeTags(t *testing.T) {
	assert.Nil(t, dedupeTags(nil))
	assert.Equal(t, []string{}, dedupeTags([]string{"", "  "}))
	assert.Equal(t, []string{"a", "b"}, dedupeTags([]string{"A", "b", "a", " B "}))
}
