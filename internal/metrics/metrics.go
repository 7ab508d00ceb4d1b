package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidPeriod indicates an unsupported reporting period string.
var ErrInvalidPeriod = errors.New("invalid period")

// NormalizedMetrics is the platform-independent metric set every adapter
// reduces its provider response to. Revenue is a pointer because not every
// platform reports it; derived ratios are zero when their denominator is.
type NormalizedMetrics struct {
	Impressions int64    `json:"impressions"`
	Clicks      int64    `json:"clicks"`
	Cost        float64  `json:"cost"`
	Conversions float64  `json:"conversions"`
	Revenue     *float64 `json:"revenue,omitempty"`

	CTR            float64 `json:"ctr"`
	CPC            float64 `json:"cpc"`
	CPM            float64 `json:"cpm"`
	ConversionRate float64 `json:"conversion_rate"`
	ROAS           float64 `json:"roas"`
}

// NormalizedCampaign is one campaign row in a platform-independent shape.
type NormalizedCampaign struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Status  string            `json:"status"`
	Metrics NormalizedMetrics `json:"metrics"`
}

// DeriveRatios recomputes CTR, CPC, CPM, conversion rate and ROAS from the
// base counters. Call after the counters are final; zero denominators yield
// zero, never NaN or Inf.
func (m *NormalizedMetrics) DeriveRatios() {
	impressions := float64(m.Impressions)
	clicks := float64(m.Clicks)
	m.CTR = safeDiv(clicks, impressions) * 100
	m.CPC = safeDiv(m.Cost, clicks)
	m.CPM = safeDiv(m.Cost, impressions) * 1000
	m.ConversionRate = safeDiv(m.Conversions, clicks) * 100
	if m.Revenue != nil {
		m.ROAS = safeDiv(*m.Revenue, m.Cost)
	}
}

// Add accumulates another metric set's base counters into m. Ratios are not
// touched; call DeriveRatios once the sum is complete.
func (m *NormalizedMetrics) Add(other NormalizedMetrics) {
	m.Impressions += other.Impressions
	m.Clicks += other.Clicks
	m.Cost += other.Cost
	m.Conversions += other.Conversions
	if other.Revenue != nil {
		if m.Revenue == nil {
			m.Revenue = new(float64)
		}
		*m.Revenue += *other.Revenue
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Period is a validated reporting window ending today.
type Period struct {
	Label string
	Days  int
}

// ParsePeriod accepts the supported lookback windows. Anything else is
// rejected so provider queries never see arbitrary ranges.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "", "30d":
		return Period{Label: "30d", Days: 30}, nil
	case "7d":
		return Period{Label: "7d", Days: 7}, nil
	case "90d":
		return Period{Label: "90d", Days: 90}, nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Range returns the inclusive start and end dates of the window.
func (p Period) Range(now time.Time) (start, end time.Time) {
	end = now
	start = now.AddDate(0, 0, -p.Days)
	return start, end
}

// ProviderError wraps a failure from an ad platform API, preserving enough
// detail to distinguish credential problems from transient ones.
type ProviderError struct {
	Platform   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Platform, e.Message)
	}
	return fmt.Sprintf("%s: provider request failed with status %d", e.Platform, e.StatusCode)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether the provider rejected the credentials.
func (e *ProviderError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
