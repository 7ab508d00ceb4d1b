package meta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-server/internal/metrics"
	"agency-server/internal/observability"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(observability.NewLogger())
	c.baseURL = srv.URL
	return c
}

func TestGetSummaryMetrics(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/act_987654/insights", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
		assert.Contains(t, r.URL.Query().Get("time_range"), `"since":"2026-03-08"`)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"impressions": "2000", "clicks": "100", "spend": "55.25",
			 "actions": [{"action_type": "link_click", "value": "90"}, {"action_type": "purchase", "value": "8"}],
			 "action_values": [{"action_type": "omni_purchase", "value": "400.50"}]}
		]}`))
	})

	summary, err := c.GetSummaryMetrics(ctx, "user-token", "987654", start, end)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), summary.Impressions)
	assert.Equal(t, int64(100), summary.Clicks)
	assert.InDelta(t, 55.25, summary.Cost, 1e-9)
	assert.InDelta(t, 8.0, summary.Conversions, 1e-9)
	require.NotNil(t, summary.Revenue)
	assert.InDelta(t, 400.50, *summary.Revenue, 1e-9)
}

func TestMalformedNumericFieldsDegradeToZero(t *testing.T) {
	ctx := context.Background()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"impressions": "garbage", "clicks": "100", "spend": "",
			 "actions": [{"action_type": "purchase", "value": "not-a-number"}]}
		]}`))
	})

	summary, err := c.GetSummaryMetrics(ctx, "user-token", "987654", time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Impressions)
	assert.Equal(t, int64(100), summary.Clicks)
	assert.Zero(t, summary.Cost)
	assert.Zero(t, summary.Conversions)
}

func TestGetCampaignData(t *testing.T) {
	ctx := context.Background()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "campaign", r.URL.Query().Get("level"))
		// A stored act_ prefix must not be doubled.
		assert.Equal(t, "/act_987654/insights", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"campaign_id": "c1", "campaign_name": "Retargeting",
			 "impressions": "500", "clicks": "25", "spend": "10.00",
			 "actions": [{"action_type": "purchase", "value": "2"}]}
		]}`))
	})

	campaigns, err := c.GetCampaignData(ctx, "user-token", "act_987654", time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "c1", campaigns[0].ID)
	assert.Equal(t, "Retargeting", campaigns[0].Name)
	assert.Equal(t, "active", campaigns[0].Status)
	assert.Nil(t, campaigns[0].Metrics.Revenue)
}

func TestProviderErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("expired token 400 is normalized to auth failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "Error validating access token: Session has expired", "type": "OAuthException", "code": 190}}`))
		})

		err := c.TestConnection(ctx, "stale-token", "987654")
		var provErr *metrics.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.True(t, provErr.IsAuthError())
		assert.Contains(t, provErr.Message, "Session has expired")
	})

	t.Run("rate limit error keeps its status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "User request limit reached", "type": "ApplicationRequestLimitReached", "code": 17}}`))
		})

		err := c.TestConnection(ctx, "user-token", "987654")
		var provErr *metrics.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.False(t, provErr.IsAuthError())
		assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	})
}
