package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"agency-server/internal/clients/mail"
	credentials "agency-server/internal/credentials/processor"
	insightsproc "agency-server/internal/insights/processor"
	"agency-server/internal/metrics"
	"agency-server/internal/observability"
)

// ErrNoConnectedPlatforms indicates the client has no working platform
// connection to report on.
var ErrNoConnectedPlatforms = errors.New("no connected platforms")

// Report is a cross-platform performance digest for one client. Totals are
// summed from the per-platform counters and the ratios recomputed from the
// sums, so the aggregate CTR is not an average of averages.
type Report struct {
	ClientSlug  string                    `json:"client_slug"`
	ClientName  string                    `json:"client_name"`
	Period      string                    `json:"period"`
	Platforms   []insightsproc.Summary    `json:"platforms"`
	Totals      metrics.NormalizedMetrics `json:"totals"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// ReportsProcessor assembles cross-platform digests and emails them.
type ReportsProcessor struct {
	insights    *insightsproc.InsightsProcessor
	credentials *credentials.CredentialProcessor
	mail        *mail.ResendClient
	sender      string
	now         func() time.Time
	logger      *observability.Logger
}

func New(
	insights *insightsproc.InsightsProcessor,
	creds *credentials.CredentialProcessor,
	mailClient *mail.ResendClient,
	sender string,
	now func() time.Time,
	logger *observability.Logger,
) *ReportsProcessor {
	if now == nil {
		now = time.Now
	}
	return &ReportsProcessor{
		insights:    insights,
		credentials: creds,
		mail:        mailClient,
		sender:      sender,
		now:         now,
		logger:      logger,
	}
}

// BuildReport fetches summaries for every connected platform and aggregates
// them. A non-empty platforms list restricts the report to those platforms;
// platforms whose provider call fails are skipped with a warning rather than
// sinking the whole report.
func (p *ReportsProcessor) BuildReport(ctx context.Context, slug, period string, platforms []string) (Report, error) {
	if _, err := metrics.ParsePeriod(period); err != nil {
		return Report{}, err
	}
	wanted := make(map[string]bool, len(platforms))
	for _, platform := range platforms {
		wanted[platform] = true
	}
	client, err := p.credentials.ResolveClient(ctx, slug)
	if err != nil {
		return Report{}, err
	}
	connections, err := p.credentials.GetConnectionSummary(ctx, slug)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		ClientSlug:  client.Slug,
		ClientName:  client.Name,
		GeneratedAt: p.now(),
	}
	for _, conn := range connections {
		if !conn.Connected {
			continue
		}
		if len(wanted) > 0 && !wanted[conn.Platform] {
			continue
		}
		summary, err := p.insights.GetSummary(ctx, slug, conn.Platform, period, false)
		if err != nil {
			p.logger.InfoWithError(ctx, fmt.Sprintf("skipping %s in report for %s", conn.Platform, slug), err)
			continue
		}
		report.Period = summary.Period
		report.Platforms = append(report.Platforms, summary)
		report.Totals.Add(summary.Metrics)
	}
	if len(report.Platforms) == 0 {
		return Report{}, ErrNoConnectedPlatforms
	}
	report.Totals.DeriveRatios()
	return report, nil
}

// SendReport builds the digest and emails it. An empty recipient falls back
// to the client's contact address. The report is returned so the caller can
// render it without a second build.
func (p *ReportsProcessor) SendReport(ctx context.Context, slug, period, recipient string, platforms []string) (Report, error) {
	client, err := p.credentials.ResolveClient(ctx, slug)
	if err != nil {
		return Report{}, err
	}
	if recipient == "" {
		recipient = client.ContactEmail
	}

	report, err := p.BuildReport(ctx, slug, period, platforms)
	if err != nil {
		return Report{}, err
	}

	html, err := renderHTML(report)
	if err != nil {
		return Report{}, fmt.Errorf("failed to render report: %w", err)
	}

	subject := fmt.Sprintf("Performance report for %s (%s)", report.ClientName, report.Period)
	if _, err := p.mail.SendEmail(ctx, p.sender, []string{recipient}, subject, html); err != nil {
		return Report{}, err
	}
	p.logger.Info(ctx, fmt.Sprintf("sent %s report for client %s", report.Period, slug))
	return report, nil
}

var reportTemplate = template.Must(template.New("report").Parse(`
<h1>Performance report: {{.ClientName}}</h1>
<p>Period: last {{.Period}} &middot; generated {{.GeneratedAt.Format "Jan 2, 2006"}}</p>
<h2>Totals</h2>
<table border="1" cellpadding="6" cellspacing="0">
  <tr><th>Impressions</th><th>Clicks</th><th>Cost</th><th>Conversions</th><th>CTR</th><th>CPC</th></tr>
  <tr>
    <td>{{.Totals.Impressions}}</td>
    <td>{{.Totals.Clicks}}</td>
    <td>{{printf "%.2f" .Totals.Cost}}</td>
    <td>{{printf "%.1f" .Totals.Conversions}}</td>
    <td>{{printf "%.2f" .Totals.CTR}}%</td>
    <td>{{printf "%.2f" .Totals.CPC}}</td>
  </tr>
</table>
<h2>By platform</h2>
<table border="1" cellpadding="6" cellspacing="0">
  <tr><th>Platform</th><th>Impressions</th><th>Clicks</th><th>Cost</th><th>Conversions</th></tr>
  {{range .Platforms}}
  <tr>
    <td>{{.Platform}}</td>
    <td>{{.Metrics.Impressions}}</td>
    <td>{{.Metrics.Clicks}}</td>
    <td>{{printf "%.2f" .Metrics.Cost}}</td>
    <td>{{printf "%.1f" .Metrics.Conversions}}</td>
  </tr>
  {{end}}
</table>
`))

func renderHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
