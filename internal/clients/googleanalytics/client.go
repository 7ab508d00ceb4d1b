package googleanalytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"agency-server/internal/metrics"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

// Metric names in the GA4 Data API.
const (
	metricAdImpressions = "advertiserAdImpressions"
	metricAdClicks      = "advertiserAdClicks"
	metricAdCost        = "advertiserAdCost"
	metricConversions   = "conversions"
	metricTotalRevenue  = "totalRevenue"
)

// Client reads advertising metrics from the GA4 Data API. A service is
// built per call because each tenant brings its own OAuth token.
type Client struct {
	logger *observability.Logger
}

func NewClient(logger *observability.Logger) *Client {
	return &Client{logger: logger}
}

// TestConnection runs a one-day, one-metric report to verify the token has
// access to the property.
func (c *Client) TestConnection(ctx context.Context, accessToken, propertyID string) error {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}
	_, err = svc.Properties.RunReport(propertyPath(propertyID), &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: "yesterday", EndDate: "today"}},
		Metrics:    []*analyticsdata.Metric{{Name: metricConversions}},
		Limit:      1,
	}).Context(ctx).Do()
	if err != nil {
		return c.providerError(ctx, err)
	}
	return nil
}

// GetSummaryMetrics returns property-level advertising totals for the date
// range.
func (c *Client) GetSummaryMetrics(ctx context.Context, accessToken, propertyID string, start, end time.Time) (metrics.NormalizedMetrics, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return metrics.NormalizedMetrics{}, err
	}

	resp, err := svc.Properties.RunReport(propertyPath(propertyID), &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{dateRange(start, end)},
		Metrics:    reportMetrics(),
	}).Context(ctx).Do()
	if err != nil {
		return metrics.NormalizedMetrics{}, c.providerError(ctx, err)
	}

	var total metrics.NormalizedMetrics
	for _, row := range resp.Rows {
		total.Add(normalizeRow(row.MetricValues))
	}
	total.DeriveRatios()
	return total, nil
}

// GetCampaignData returns per-campaign advertising metrics, keyed on the
// session campaign dimension.
func (c *Client) GetCampaignData(ctx context.Context, accessToken, propertyID string, start, end time.Time) ([]metrics.NormalizedCampaign, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Properties.RunReport(propertyPath(propertyID), &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{dateRange(start, end)},
		Dimensions: []*analyticsdata.Dimension{{Name: "sessionCampaignName"}},
		Metrics:    reportMetrics(),
	}).Context(ctx).Do()
	if err != nil {
		return nil, c.providerError(ctx, err)
	}

	campaigns := make([]metrics.NormalizedCampaign, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		name := "(not set)"
		if len(row.DimensionValues) > 0 && row.DimensionValues[0].Value != "" {
			name = row.DimensionValues[0].Value
		}
		m := normalizeRow(row.MetricValues)
		m.DeriveRatios()
		campaigns = append(campaigns, metrics.NormalizedCampaign{
			ID:      name,
			Name:    name,
			Status:  "active",
			Metrics: m,
		})
	}
	return campaigns, nil
}

func (c *Client) service(ctx context.Context, accessToken string) (*analyticsdata.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := analyticsdata.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics service: %w", err)
	}
	return svc, nil
}

func reportMetrics() []*analyticsdata.Metric {
	return []*analyticsdata.Metric{
		{Name: metricAdImpressions},
		{Name: metricAdClicks},
		{Name: metricAdCost},
		{Name: metricConversions},
		{Name: metricTotalRevenue},
	}
}

func dateRange(start, end time.Time) *analyticsdata.DateRange {
	return &analyticsdata.DateRange{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}
}

// normalizeRow maps metric values by position in reportMetrics order.
func normalizeRow(values []*analyticsdata.MetricValue) metrics.NormalizedMetrics {
	get := func(i int) float64 {
		if i >= len(values) {
			return 0
		}
		v, _ := strconv.ParseFloat(values[i].Value, 64)
		return v
	}

	revenue := get(4)
	return metrics.NormalizedMetrics{
		Impressions: int64(get(0)),
		Clicks:      int64(get(1)),
		Cost:        get(2),
		Conversions: get(3),
		Revenue:     &revenue,
	}
}

func propertyPath(propertyID string) string {
	if strings.HasPrefix(propertyID, "properties/") {
		return propertyID
	}
	return "properties/" + propertyID
}

func (c *Client) providerError(ctx context.Context, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		c.logger.Info(ctx, fmt.Sprintf("analytics API error: status=%d %s", apiErr.Code, apiErr.Message))
		return &metrics.ProviderError{
			Platform:   store.PlatformGoogleAnalytics,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	c.logger.Error(ctx, "analytics request failed", err)
	return &metrics.ProviderError{
		Platform: store.PlatformGoogleAnalytics,
		Message:  "request failed",
		Err:      err,
	}
}
