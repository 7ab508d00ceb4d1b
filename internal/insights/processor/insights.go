package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agency-server/internal/cache"
	credentials "agency-server/internal/credentials/processor"
	"agency-server/internal/metrics"
	oauthproc "agency-server/internal/oauth/processor"
	"agency-server/internal/observability"
	"agency-server/internal/store"
)

var (
	// ErrUnsupportedPlatform indicates an unknown platform identifier.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrReauthRequired indicates the stored credentials were rejected and
	// have been invalidated; the client must be reconnected.
	ErrReauthRequired = errors.New("reauthorization required")
)

// Adapter is the uniform surface every ad platform client presents: verify
// access, account totals, per-campaign rows. accountRef is the platform's
// account identifier (customer ID, act_ ID or GA4 property).
type Adapter interface {
	TestConnection(ctx context.Context, accessToken, accountRef string) error
	GetSummaryMetrics(ctx context.Context, accessToken, accountRef string, start, end time.Time) (metrics.NormalizedMetrics, error)
	GetCampaignData(ctx context.Context, accessToken, accountRef string, start, end time.Time) ([]metrics.NormalizedCampaign, error)
}

// TokenManager keeps stored OAuth bundles usable.
type TokenManager interface {
	EnsureFresh(ctx context.Context, client store.Client, platform string, bundle credentials.Bundle, now time.Time) (credentials.Bundle, error)
	Refresh(ctx context.Context, client store.Client, platform string, bundle credentials.Bundle) (credentials.Bundle, error)
}

// Summary is the cacheable payload of a summary read.
type Summary struct {
	Platform string                    `json:"platform"`
	Period   string                    `json:"period"`
	Metrics  metrics.NormalizedMetrics `json:"metrics"`
}

// CampaignReport is the cacheable payload of a campaign read.
type CampaignReport struct {
	Platform  string                       `json:"platform"`
	Period    string                       `json:"period"`
	Campaigns []metrics.NormalizedCampaign `json:"campaigns"`
}

// ConnectionTest is the outcome of an on-demand connection check.
type ConnectionTest struct {
	Platform  string `json:"platform"`
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// InsightsProcessor fetches normalized metrics from the ad platforms on
// behalf of tenants, wrapping every read in the short-TTL cache and the
// token refresh lifecycle.
type InsightsProcessor struct {
	credentials *credentials.CredentialProcessor
	oauth       TokenManager
	cache       *cache.Service
	adapters    map[string]Adapter
	now         func() time.Time
	logger      *observability.Logger
}

func New(
	creds *credentials.CredentialProcessor,
	oauth TokenManager,
	cacheSvc *cache.Service,
	adapters map[string]Adapter,
	now func() time.Time,
	logger *observability.Logger,
) *InsightsProcessor {
	if now == nil {
		now = time.Now
	}
	return &InsightsProcessor{
		credentials: creds,
		oauth:       oauth,
		cache:       cacheSvc,
		adapters:    adapters,
		now:         now,
		logger:      logger,
	}
}

// GetSummary returns account-level totals for a client/platform pair over
// the period. Results are served from cache unless bypassCache forces a
// fresh provider read (which still repopulates the cache).
func (p *InsightsProcessor) GetSummary(ctx context.Context, slug, platform, periodStr string, bypassCache bool) (Summary, error) {
	adapter, period, err := p.prepare(platform, periodStr)
	if err != nil {
		return Summary{}, err
	}

	key := cache.Key(cache.KindSummary, slug, map[string]string{
		"platform": platform,
		"period":   period.Label,
	})
	if bypassCache {
		p.cache.Invalidate(key)
	}

	value, err := p.cache.WithCache(ctx, cache.KindSummary, slug, key, func(ctx context.Context) (interface{}, error) {
		start, end := period.Range(p.now())
		var summary metrics.NormalizedMetrics
		err := p.withFreshToken(ctx, slug, platform, func(ctx context.Context, accessToken, accountRef string) error {
			var err error
			summary, err = adapter.GetSummaryMetrics(ctx, accessToken, accountRef, start, end)
			return err
		})
		if err != nil {
			return nil, err
		}
		return Summary{Platform: platform, Period: period.Label, Metrics: summary}, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return value.(Summary), nil
}

// GetCampaigns returns per-campaign metrics for a client/platform pair over
// the period, cached the same way as summaries.
func (p *InsightsProcessor) GetCampaigns(ctx context.Context, slug, platform, periodStr string, bypassCache bool) (CampaignReport, error) {
	adapter, period, err := p.prepare(platform, periodStr)
	if err != nil {
		return CampaignReport{}, err
	}

	key := cache.Key(cache.KindCampaigns, slug, map[string]string{
		"platform": platform,
		"period":   period.Label,
	})
	if bypassCache {
		p.cache.Invalidate(key)
	}

	value, err := p.cache.WithCache(ctx, cache.KindCampaigns, slug, key, func(ctx context.Context) (interface{}, error) {
		start, end := period.Range(p.now())
		var campaigns []metrics.NormalizedCampaign
		err := p.withFreshToken(ctx, slug, platform, func(ctx context.Context, accessToken, accountRef string) error {
			var err error
			campaigns, err = adapter.GetCampaignData(ctx, accessToken, accountRef, start, end)
			return err
		})
		if err != nil {
			return nil, err
		}
		return CampaignReport{Platform: platform, Period: period.Label, Campaigns: campaigns}, nil
	})
	if err != nil {
		return CampaignReport{}, err
	}
	return value.(CampaignReport), nil
}

// TestConnection verifies the stored credentials against the live provider
// and persists the outcome on the credential row. A failed check is a
// result, not an error.
func (p *InsightsProcessor) TestConnection(ctx context.Context, slug, platform string) (ConnectionTest, error) {
	adapter, ok := p.adapters[platform]
	if !ok {
		return ConnectionTest{}, ErrUnsupportedPlatform
	}

	client, err := p.credentials.ResolveClient(ctx, slug)
	if err != nil {
		return ConnectionTest{}, err
	}

	testErr := p.withFreshToken(ctx, slug, platform, func(ctx context.Context, accessToken, accountRef string) error {
		return adapter.TestConnection(ctx, accessToken, accountRef)
	})
	if testErr != nil {
		if errors.Is(testErr, credentials.ErrNotConfigured) {
			return ConnectionTest{}, testErr
		}
		var provErr *metrics.ProviderError
		if errors.Is(testErr, ErrReauthRequired) || errors.As(testErr, &provErr) {
			if err := p.credentials.SetConnectionState(ctx, client.ID, platform, false); err != nil {
				p.logger.Error(ctx, "failed to record failed connection test", err)
			}
			return ConnectionTest{Platform: platform, Connected: false, Message: testErr.Error()}, nil
		}
		return ConnectionTest{}, testErr
	}

	if err := p.credentials.SetConnectionState(ctx, client.ID, platform, true); err != nil {
		p.logger.Error(ctx, "failed to record connection test", err)
	}
	// A successful test means stale cached failures are now misleading.
	p.cache.ClearClient(slug)
	return ConnectionTest{Platform: platform, Connected: true}, nil
}

func (p *InsightsProcessor) prepare(platform, periodStr string) (Adapter, metrics.Period, error) {
	adapter, ok := p.adapters[platform]
	if !ok {
		return nil, metrics.Period{}, ErrUnsupportedPlatform
	}
	period, err := metrics.ParsePeriod(periodStr)
	if err != nil {
		return nil, metrics.Period{}, err
	}
	return adapter, period, nil
}

// withFreshToken loads the decrypted bundle, ensures the access token is
// current, and runs fn. When the provider still rejects the token, Google
// platforms get one refresh-and-retry; an unrecoverable rejection
// invalidates the stored credentials so the connection fails closed.
func (p *InsightsProcessor) withFreshToken(ctx context.Context, slug, platform string, fn func(ctx context.Context, accessToken, accountRef string) error) error {
	client, err := p.credentials.ResolveClient(ctx, slug)
	if err != nil {
		return err
	}
	cred, bundle, err := p.credentials.GetBundle(ctx, client.ID, platform)
	if err != nil {
		return err
	}

	refreshable := platform != store.PlatformMeta
	if refreshable {
		bundle, err = p.oauth.EnsureFresh(ctx, client, platform, bundle, p.now())
		if err != nil {
			return p.mapRefreshError(err)
		}
	}

	err = fn(ctx, bundle.AccessToken, cred.AccountRef)
	if err == nil {
		return nil
	}

	var provErr *metrics.ProviderError
	if !errors.As(err, &provErr) || !provErr.IsAuthError() {
		return err
	}

	if !refreshable {
		// Meta long-lived tokens cannot be refreshed; invalidate so the
		// broken connection is visible immediately.
		p.logger.Warn(ctx, fmt.Sprintf("meta token rejected for client %s, invalidating", slug))
		if invErr := p.credentials.Invalidate(ctx, client.ID, platform); invErr != nil {
			p.logger.Error(ctx, "failed to invalidate rejected meta credentials", invErr)
		}
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	p.logger.Info(ctx, fmt.Sprintf("provider rejected token for %s/%s, refreshing and retrying", platform, slug))
	bundle, refreshErr := p.oauth.Refresh(ctx, client, platform, bundle)
	if refreshErr != nil {
		return p.mapRefreshError(refreshErr)
	}
	return fn(ctx, bundle.AccessToken, cred.AccountRef)
}

func (p *InsightsProcessor) mapRefreshError(err error) error {
	if errors.Is(err, oauthproc.ErrReauthRequired) || errors.Is(err, oauthproc.ErrNoRefreshToken) {
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	return err
}
