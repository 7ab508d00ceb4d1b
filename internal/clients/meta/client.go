package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agency-server/internal/metrics"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

const apiBaseURL = "https://graph.facebook.com/v19.0"

// Action types counted as conversions or revenue in insights responses.
const (
	actionPurchase      = "purchase"
	actionPurchaseValue = "omni_purchase"
)

// Client talks to the Meta Marketing API (Graph API insights edge). Every
// numeric field arrives as a string.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *observability.Logger
}

func NewClient(logger *observability.Logger) *Client {
	return &Client{
		baseURL: apiBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type insightsRow struct {
	CampaignID   string   `json:"campaign_id"`
	CampaignName string   `json:"campaign_name"`
	Impressions  string   `json:"impressions"`
	Clicks       string   `json:"clicks"`
	Spend        string   `json:"spend"`
	Actions      []action `json:"actions"`
	ActionValues []action `json:"action_values"`
}

type insightsResponse struct {
	Data []insightsRow `json:"data"`
}

// TestConnection fetches the ad account's name to verify the token and
// account ID are accepted.
func (c *Client) TestConnection(ctx context.Context, accessToken, adAccountID string) error {
	query := url.Values{"fields": {"name"}}
	var out struct {
		Name string `json:"name"`
	}
	return c.get(ctx, accessToken, accountPath(adAccountID), query, &out)
}

// GetSummaryMetrics returns account-level totals for the date range.
func (c *Client) GetSummaryMetrics(ctx context.Context, accessToken, adAccountID string, start, end time.Time) (metrics.NormalizedMetrics, error) {
	query := insightsQuery(start, end)
	query.Set("fields", "impressions,clicks,spend,actions,action_values")

	var resp insightsResponse
	if err := c.get(ctx, accessToken, accountPath(adAccountID)+"/insights", query, &resp); err != nil {
		return metrics.NormalizedMetrics{}, err
	}

	var total metrics.NormalizedMetrics
	for _, row := range resp.Data {
		total.Add(c.normalize(ctx, row))
	}
	total.DeriveRatios()
	return total, nil
}

// GetCampaignData returns per-campaign metrics for the date range.
func (c *Client) GetCampaignData(ctx context.Context, accessToken, adAccountID string, start, end time.Time) ([]metrics.NormalizedCampaign, error) {
	query := insightsQuery(start, end)
	query.Set("fields", "campaign_id,campaign_name,impressions,clicks,spend,actions,action_values")
	query.Set("level", "campaign")

	var resp insightsResponse
	if err := c.get(ctx, accessToken, accountPath(adAccountID)+"/insights", query, &resp); err != nil {
		return nil, err
	}

	campaigns := make([]metrics.NormalizedCampaign, 0, len(resp.Data))
	for _, row := range resp.Data {
		m := c.normalize(ctx, row)
		m.DeriveRatios()
		campaigns = append(campaigns, metrics.NormalizedCampaign{
			ID:      row.CampaignID,
			Name:    row.CampaignName,
			// The insights edge only returns campaigns that delivered.
			Status:  "active",
			Metrics: m,
		})
	}
	return campaigns, nil
}

func insightsQuery(start, end time.Time) url.Values {
	timeRange := fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	return url.Values{"time_range": {timeRange}}
}

// accountPath prefixes the numeric account ID with act_ unless the caller
// already stored it that way.
func accountPath(adAccountID string) string {
	if strings.HasPrefix(adAccountID, "act_") {
		return "/" + adAccountID
	}
	return "/act_" + adAccountID
}

func (c *Client) normalize(ctx context.Context, row insightsRow) metrics.NormalizedMetrics {
	m := metrics.NormalizedMetrics{
		Impressions: int64(c.parseFloat(ctx, "impressions", row.Impressions)),
		Clicks:      int64(c.parseFloat(ctx, "clicks", row.Clicks)),
		Cost:        c.parseFloat(ctx, "spend", row.Spend),
		Conversions: c.actionValue(ctx, row.Actions, actionPurchase),
	}
	if revenue := c.actionValue(ctx, row.ActionValues, actionPurchaseValue); revenue > 0 {
		m.Revenue = &revenue
	}
	return m
}

func (c *Client) actionValue(ctx context.Context, actions []action, actionType string) float64 {
	for _, a := range actions {
		if a.ActionType == actionType {
			return c.parseFloat(ctx, a.ActionType, a.Value)
		}
	}
	return 0
}

// parseFloat treats a malformed numeric field as zero. Graph API rows carry
// every number as a string and one bad row should not sink the response.
func (c *Client) parseFloat(ctx context.Context, field, value string) float64 {
	if value == "" {
		return 0
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		c.logger.Debug(ctx, fmt.Sprintf("unparseable %s value %q in meta response", field, value))
		return 0
	}
	return v
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values, out interface{}) error {
	query.Set("access_token", accessToken)
	reqURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create insights request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "meta request failed", err)
		return &metrics.ProviderError{
			Platform: store.PlatformMeta,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.providerError(ctx, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode insights response: %w", err)
	}
	return nil
}

func (c *Client) providerError(ctx context.Context, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &apiErr)

	statusCode := resp.StatusCode
	// The Graph API reports expired tokens as a 400 with an OAuthException
	// body. Normalize that to an auth failure.
	if apiErr.Error.Type == "OAuthException" || apiErr.Error.Code == 190 {
		statusCode = http.StatusUnauthorized
	}

	c.logger.Info(ctx, fmt.Sprintf("meta API error: status=%d type=%s %s",
		resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message))
	return &metrics.ProviderError{
		Platform:   store.PlatformMeta,
		StatusCode: statusCode,
		Message:    apiErr.Error.Message,
	}
}
