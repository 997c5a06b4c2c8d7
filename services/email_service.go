package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

type EmailMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

// EmailService delivers run report notifications through Resend.
type EmailService struct {
	config  *config.EmailConfig
	client  *resend.Client
	metrics *EmailMetrics
}

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return NewEmailServiceWithRegistry(cfg, prometheus.DefaultRegisterer)
}

func NewEmailServiceWithRegistry(cfg *config.EmailConfig, reg prometheus.Registerer) *EmailService {
	logger.GetLogger().Infow("Initializing email service",
		"from", cfg.FromAddress,
		"recipients", len(cfg.ToAddresses),
		"apikey", logger.MaskSensitiveString(cfg.ResendAPIKey, 3, 0))
	client := resend.NewClient(cfg.ResendAPIKey)
	metrics := &EmailMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripcarbon_email_send_duration_seconds",
			Help:    "Time taken to send emails",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcarbon_email_errors_total",
			Help: "Total number of email sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcarbon_emails_sent_total",
			Help: "Total number of emails sent",
		}),
	}

	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)

	return &EmailService{
		config:  cfg,
		client:  client,
		metrics: metrics,
	}
}

// reportEmailData feeds the report notification template.
type reportEmailData struct {
	RunID       string
	FinishedAt  string
	RowsRead    int64
	RowsWritten int64
	RowsDropped int64
	Segments    []types.SegmentSummary
	DownloadURL string
}

// SendReportEmail notifies the configured recipients that a run finished and
// links the uploaded report. downloadURL may be empty when no report sink is
// configured; the mail then carries the numbers only.
func (s *EmailService) SendReportEmail(ctx context.Context, downloadURL string, summary *types.RunSummary) error {
	startTime := time.Now()
	log := logger.GetLogger()
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	if !s.config.Enabled {
		log.Debugw("Email disabled, skipping report notification")
		return nil
	}
	if summary == nil {
		s.metrics.errorCount.Inc()
		return fmt.Errorf("report email requires a run summary")
	}

	tmpl, err := template.New("report").Parse(reportEmailTemplate)
	if err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to parse email template", "error", err)
		return fmt.Errorf("failed to parse template: %w", err)
	}

	data := reportEmailData{
		RunID:       summary.RunID,
		FinishedAt:  summary.FinishedAt.Format("2006-01-02 15:04 MST"),
		RowsRead:    summary.TotalRowsRead(),
		RowsWritten: summary.TotalRowsWritten(),
		RowsDropped: summary.TotalRowsDropped(),
		Segments:    summary.Segments,
		DownloadURL: downloadURL,
	}

	var htmlContent bytes.Buffer
	if err := tmpl.Execute(&htmlContent, data); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to execute email template", "error", err)
		return fmt.Errorf("failed to execute template: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		To:      s.config.ToAddresses,
		Subject: fmt.Sprintf("Trip CO2 report for run %s", summary.RunID),
		Html:    htmlContent.String(),
	}

	_, err = s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to send report email",
			"error", err,
			"recipients", len(s.config.ToAddresses),
			"runId", summary.RunID)
		return fmt.Errorf("email send failed: %w", err)
	}

	s.metrics.sentCount.Inc()
	log.Infow("Report email sent",
		"recipients", len(s.config.ToAddresses),
		"runId", summary.RunID)

	return nil
}

// Template constants
const reportEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Trip CO2 Report</title>
    <style>
        body {
            font-family: 'sans-serif';
            background-color: #f7f7f7;
            color: #333333;
            margin: 0;
            padding: 20px;
        }
        .container {
            max-width: 600px;
            margin: 20px auto;
            background-color: #ffffff;
            padding: 30px;
            border-radius: 12px;
            box-shadow: 0 4px 8px rgba(0, 0, 0, 0.05);
        }
        h1 {
            color: #1A7F37;
            font-size: 24px;
            margin-bottom: 20px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            margin-bottom: 25px;
        }
        th, td {
            border: 1px solid #dddddd;
            padding: 8px;
            font-size: 14px;
            text-align: right;
        }
        th:first-child, td:first-child {
            text-align: left;
        }
        th {
            background-color: #f0f0f0;
        }
        .button {
            display: inline-block;
            padding: 12px 24px;
            font-size: 16px;
            font-weight: bold;
            text-decoration: none;
            background-color: #1A7F37;
            color: #ffffff;
            border-radius: 8px;
        }
        .meta {
            font-size: 13px;
            color: #777777;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Trip CO2 enrichment run finished</h1>
        <p>Run <strong>{{.RunID}}</strong> completed at {{.FinishedAt}}.</p>
        <table>
            <tr><th>Cab type</th><th>Rows read</th><th>Rows written</th><th>Rows dropped</th></tr>
            {{range .Segments}}
            <tr><td>{{.CabType}}</td><td>{{.RowsRead}}</td><td>{{.RowsWritten}}</td><td>{{.RowsDropped}}</td></tr>
            {{end}}
            <tr><th>Total</th><th>{{.RowsRead}}</th><th>{{.RowsWritten}}</th><th>{{.RowsDropped}}</th></tr>
        </table>
        {{if .DownloadURL}}
        <p>
            <a href="{{.DownloadURL}}" class="button">Download PDF report</a>
        </p>
        <p class="meta">The download link expires; re-run the report command to mint a fresh one.</p>
        {{end}}
    </div>
</body>
</html>`
