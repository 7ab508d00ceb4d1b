package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRatios(t *testing.T) {
	t.Run("computes all ratios", func(t *testing.T) {
		revenue := 500.0
		m := NormalizedMetrics{
			Impressions: 10000,
			Clicks:      250,
			Cost:        125,
			Conversions: 10,
			Revenue:     &revenue,
		}
		m.DeriveRatios()

		assert.InDelta(t, 2.5, m.CTR, 1e-9)
		assert.InDelta(t, 0.5, m.CPC, 1e-9)
		assert.InDelta(t, 12.5, m.CPM, 1e-9)
		assert.InDelta(t, 4.0, m.ConversionRate, 1e-9)
		assert.InDelta(t, 4.0, m.ROAS, 1e-9)
	})

	t.Run("zero denominators yield zero, never NaN", func(t *testing.T) {
		m := NormalizedMetrics{}
		m.DeriveRatios()

		for name, v := range map[string]float64{
			"ctr":             m.CTR,
			"cpc":             m.CPC,
			"cpm":             m.CPM,
			"conversion_rate": m.ConversionRate,
			"roas":            m.ROAS,
		} {
			assert.Zero(t, v, name)
			assert.False(t, math.IsNaN(v), name)
		}
	})

	t.Run("no revenue means zero roas", func(t *testing.T) {
		m := NormalizedMetrics{Clicks: 10, Cost: 100}
		m.DeriveRatios()
		assert.Zero(t, m.ROAS)
		assert.Nil(t, m.Revenue)
	})
}

func TestAdd(t *testing.T) {
	revenue := 100.0
	total := NormalizedMetrics{Impressions: 10, Clicks: 1, Cost: 5}
	total.Add(NormalizedMetrics{Impressions: 90, Clicks: 9, Cost: 45, Conversions: 2, Revenue: &revenue})

	assert.Equal(t, int64(100), total.Impressions)
	assert.Equal(t, int64(10), total.Clicks)
	assert.InDelta(t, 50.0, total.Cost, 1e-9)
	assert.InDelta(t, 2.0, total.Conversions, 1e-9)
	require.NotNil(t, total.Revenue)
	assert.InDelta(t, 100.0, *total.Revenue, 1e-9)

	// Adding a revenue-less set keeps the accumulated revenue.
	total.Add(NormalizedMetrics{Clicks: 5})
	require.NotNil(t, total.Revenue)
	assert.InDelta(t, 100.0, *total.Revenue, 1e-9)
}

func TestParsePeriod(t *testing.T) {
	for label, days := range map[string]int{"7d": 7, "30d": 30, "90d": 90} {
		p, err := ParsePeriod(label)
		require.NoError(t, err)
		assert.Equal(t, label, p.Label)
		assert.Equal(t, days, p.Days)
	}

	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, "30d", p.Label)

	for _, bad := range []string{"1d", "30", "month", "365d"} {
		_, err := ParsePeriod(bad)
		assert.ErrorIs(t, err, ErrInvalidPeriod, bad)
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	p, err := ParsePeriod("7d")
	require.NoError(t, err)

	start, end := p.Range(now)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(0, 0, -7), start)
}

func TestProviderError(t *testing.T) {
	authErr := &ProviderError{Platform: "meta", StatusCode: 401, Message: "invalid token"}
	assert.True(t, authErr.IsAuthError())
	assert.Contains(t, authErr.Error(), "meta")
	assert.Contains(t, authErr.Error(), "invalid token")

	serverErr := &ProviderError{Platform: "googleads", StatusCode: 500}
	assert.False(t, serverErr.IsAuthError())
	assert.Contains(t, serverErr.Error(), "500")
}
