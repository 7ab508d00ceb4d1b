package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agency-server/internal/metrics"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

const apiBaseURL = "https://googleads.googleapis.com/v17"

const (
	gaqlConnectionCheck = `SELECT customer.id FROM customer LIMIT 1`

	gaqlSummary = `
SELECT metrics.impressions, metrics.clicks, metrics.cost_micros,
       metrics.conversions, metrics.conversions_value
FROM customer
WHERE segments.date BETWEEN '%s' AND '%s'`

	gaqlCampaigns = `
SELECT campaign.id, campaign.name, campaign.status,
       metrics.impressions, metrics.clicks, metrics.cost_micros,
       metrics.conversions, metrics.conversions_value
FROM campaign
WHERE segments.date BETWEEN '%s' AND '%s'
ORDER BY metrics.cost_micros DESC`
)

// Client talks to the Google Ads REST API via searchStream. The official
// gRPC client library is deliberately avoided: the three GAQL queries here
// do not justify its generated surface.
type Client struct {
	developerToken string
	baseURL        string
	httpClient     *http.Client
	logger         *observability.Logger
}

func NewClient(developerToken string, logger *observability.Logger) *Client {
	return &Client{
		developerToken: developerToken,
		baseURL:        apiBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// searchResult mirrors one row of a searchStream response. Proto int64
// fields arrive as JSON strings.
type searchResult struct {
	Campaign struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"campaign"`
	Metrics struct {
		Impressions      string  `json:"impressions"`
		Clicks           string  `json:"clicks"`
		CostMicros       string  `json:"costMicros"`
		Conversions      float64 `json:"conversions"`
		ConversionsValue float64 `json:"conversionsValue"`
	} `json:"metrics"`
}

type searchBatch struct {
	Results []searchResult `json:"results"`
}

// TestConnection runs a minimal query to verify the stored credentials and
// customer ID are accepted.
func (c *Client) TestConnection(ctx context.Context, accessToken, customerID string) error {
	_, err := c.searchStream(ctx, accessToken, customerID, gaqlConnectionCheck)
	return err
}

// GetSummaryMetrics returns account-level totals for the date range.
func (c *Client) GetSummaryMetrics(ctx context.Context, accessToken, customerID string, start, end time.Time) (metrics.NormalizedMetrics, error) {
	query := fmt.Sprintf(gaqlSummary, start.Format("2006-01-02"), end.Format("2006-01-02"))
	results, err := c.searchStream(ctx, accessToken, customerID, query)
	if err != nil {
		return metrics.NormalizedMetrics{}, err
	}

	var total metrics.NormalizedMetrics
	for _, r := range results {
		total.Add(c.normalize(ctx, r))
	}
	total.DeriveRatios()
	return total, nil
}

// GetCampaignData returns per-campaign metrics for the date range, ordered
// by spend.
func (c *Client) GetCampaignData(ctx context.Context, accessToken, customerID string, start, end time.Time) ([]metrics.NormalizedCampaign, error) {
	query := fmt.Sprintf(gaqlCampaigns, start.Format("2006-01-02"), end.Format("2006-01-02"))
	results, err := c.searchStream(ctx, accessToken, customerID, query)
	if err != nil {
		return nil, err
	}

	campaigns := make([]metrics.NormalizedCampaign, 0, len(results))
	for _, r := range results {
		m := c.normalize(ctx, r)
		m.DeriveRatios()
		campaigns = append(campaigns, metrics.NormalizedCampaign{
			ID:      r.Campaign.ID,
			Name:    r.Campaign.Name,
			Status:  strings.ToLower(r.Campaign.Status),
			Metrics: m,
		})
	}
	return campaigns, nil
}

func (c *Client) normalize(ctx context.Context, r searchResult) metrics.NormalizedMetrics {
	revenue := r.Metrics.ConversionsValue
	return metrics.NormalizedMetrics{
		Impressions: c.parseInt(ctx, "impressions", r.Metrics.Impressions),
		Clicks:      c.parseInt(ctx, "clicks", r.Metrics.Clicks),
		Cost:        float64(c.parseInt(ctx, "cost_micros", r.Metrics.CostMicros)) / 1e6,
		Conversions: r.Metrics.Conversions,
		Revenue:     &revenue,
	}
}

// parseInt treats a malformed numeric field as zero. Platform data is
// inconsistent enough that one bad row should not sink the whole response.
func (c *Client) parseInt(ctx context.Context, field, value string) int64 {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		c.logger.Debug(ctx, fmt.Sprintf("unparseable %s value %q in google ads response", field, value))
		return 0
	}
	return n
}

func (c *Client) searchStream(ctx context.Context, accessToken, customerID, query string) ([]searchResult, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	// Customer IDs are often entered with dashes (123-456-7890).
	customerID = strings.ReplaceAll(customerID, "-", "")
	url := fmt.Sprintf("%s/customers/%s/googleAds:searchStream", c.baseURL, customerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("developer-token", c.developerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "google ads request failed", err)
		return nil, &metrics.ProviderError{
			Platform: store.PlatformGoogleAds,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError(ctx, resp)
	}

	var batches []searchBatch
	if err := json.NewDecoder(resp.Body).Decode(&batches); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	var results []searchResult
	for _, batch := range batches {
		results = append(results, batch.Results...)
	}
	return results, nil
}

func (c *Client) providerError(ctx context.Context, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	// searchStream wraps errors in a one-element array.
	message := ""
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		message = apiErr.Error.Message
	} else {
		var wrapped []struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped) > 0 {
			message = wrapped[0].Error.Message
		}
	}

	c.logger.Info(ctx, fmt.Sprintf("google ads API error: status=%d %s", resp.StatusCode, message))
	return &metrics.ProviderError{
		Platform:   store.PlatformGoogleAds,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
