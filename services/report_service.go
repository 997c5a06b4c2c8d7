package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"
	"go.uber.org/zap"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// AnalysisProvider supplies the analysis sections the report renders.
type AnalysisProvider interface {
	Summary(ctx context.Context) (*types.AnalysisSummary, error)
}

// ReportSink stores a finished report and returns a download URL.
type ReportSink interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// ReportNotifier announces a finished run, linking the uploaded report.
type ReportNotifier interface {
	SendReportEmail(ctx context.Context, downloadURL string, summary *types.RunSummary) error
}

// ReportResult records where a generated report ended up. Either field may
// be empty when the corresponding destination is not configured.
type ReportResult struct {
	LocalPath string
	RemoteURL string
}

// ReportService renders a PDF out of a finished run and the current analysis
// results, writes it locally and hands it to the configured sink and
// notifier. The local file is the primary artifact; upload and email are
// best effort.
type ReportService struct {
	analysis AnalysisProvider
	sink     ReportSink
	notifier ReportNotifier
	cfg      config.ReportConfig
	log      *zap.SugaredLogger
}

// NewReportService wires the report pipeline. sink and notifier may be nil
// when object storage or email is not configured.
func NewReportService(analysis AnalysisProvider, sink ReportSink, notifier ReportNotifier, cfg config.ReportConfig) *ReportService {
	return &ReportService{
		analysis: analysis,
		sink:     sink,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.GetLogger().Named("report"),
	}
}

// GenerateRunReport builds the PDF for a finished run. Rendering or writing
// the local file fails the call; upload and email failures are logged and
// reflected in the result instead, so a flaky bucket never loses the report.
func (s *ReportService) GenerateRunReport(ctx context.Context, run *types.RunSummary) (*ReportResult, error) {
	if run == nil {
		return nil, fmt.Errorf("report requires a run summary")
	}

	analysis, err := s.analysis.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("report analysis failed: %w", err)
	}

	data, err := buildReportPDF(run, analysis)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("trip_co2_report_%s.pdf", run.RunID)
	result := &ReportResult{}

	if s.cfg.OutputDir != "" {
		if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
		localPath := filepath.Join(s.cfg.OutputDir, filename)
		if err := os.WriteFile(localPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		result.LocalPath = localPath
		s.log.Infow("Report written", "path", localPath, "bytes", len(data))
	}

	if s.sink != nil {
		url, err := s.sink.Upload(ctx, filename, data)
		if err != nil {
			s.log.Warnw("Report upload failed, continuing with local copy", "error", err)
		} else {
			result.RemoteURL = url
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendReportEmail(ctx, result.RemoteURL, run); err != nil {
			s.log.Warnw("Report email failed", "error", err)
		}
	}

	return result, nil
}

func buildReportPDF(run *types.RunSummary, analysis *types.AnalysisSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Trip CO2 Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TRIP CO2 REPORT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, "Run ID       : "+run.RunID)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Finished at  : "+run.FinishedAt.Format("2006-01-02 15:04 MST"))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Generated at : "+analysis.GeneratedAt.Format("2006-01-02 15:04 MST"))
	pdf.Ln(12)

	writeLoadSummary(pdf, run)
	writeLargestTrips(pdf, analysis.LargestTrips)
	writeBucketExtremes(pdf, analysis.BucketExtremes)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Monthly CO2 totals")
	pdf.Ln(12)
	for _, series := range analysis.MonthlyTotals {
		drawMonthlyChart(pdf, series)
	}
	if len(analysis.MonthlyTotals) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 6, "No enriched trips found.")
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func writeLoadSummary(pdf *gofpdf.Fpdf, run *types.RunSummary) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Load summary")
	pdf.Ln(10)

	widths := []float64{40, 45, 45, 40}
	headers := []string{"Cab type", "Rows read", "Rows written", "Rows dropped"}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, seg := range run.Segments {
		pdf.CellFormat(widths[0], 7, seg.CabType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, strconv.FormatInt(seg.RowsRead, 10), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, strconv.FormatInt(seg.RowsWritten, 10), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, strconv.FormatInt(seg.RowsDropped, 10), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0], 7, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(widths[1], 7, strconv.FormatInt(run.TotalRowsRead(), 10), "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[2], 7, strconv.FormatInt(run.TotalRowsWritten(), 10), "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 7, strconv.FormatInt(run.TotalRowsDropped(), 10), "1", 0, "R", false, 0, "")
	pdf.Ln(12)
}

func writeLargestTrips(pdf *gofpdf.Fpdf, trips []types.LargestTrip) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Largest trips by CO2")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	if len(trips) == 0 {
		pdf.Cell(0, 6, "No enriched trips found.")
		pdf.Ln(6)
	}
	for _, trip := range trips {
		distance := "an unrecorded distance"
		if trip.TripDistance != nil {
			distance = fmt.Sprintf("%.1f miles", *trip.TripDistance)
		}
		pdf.Cell(0, 6, fmt.Sprintf("%s: %.3f kg CO2 over %s, picked up %s",
			trip.CabType, trip.TripCO2Kgs, distance,
			trip.PickupDatetime.Format("2006-01-02 15:04")))
		pdf.Ln(6)
	}
	pdf.Ln(6)
}

func writeBucketExtremes(pdf *gofpdf.Fpdf, extremes []types.BucketExtremes) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Heaviest and lightest periods")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	if len(extremes) == 0 {
		pdf.Cell(0, 6, "No enriched trips found.")
		pdf.Ln(6)
	}
	for _, ext := range extremes {
		kind := strings.ReplaceAll(string(ext.Kind), "_", " ")
		pdf.MultiCell(0, 6, fmt.Sprintf("%s by %s: heaviest %s (avg %.3f kg), lightest %s (avg %.3f kg)",
			ext.CabType, kind,
			ext.Heaviest.Label, ext.Heaviest.AvgCO2Kgs,
			ext.Lightest.Label, ext.Lightest.AvgCO2Kgs), "", "", false)
	}
	pdf.Ln(6)
}

// drawMonthlyChart renders one cab type's January-December totals as a bar
// chart. Bars scale against the series' own peak month.
func drawMonthlyChart(pdf *gofpdf.Fpdf, series types.MonthlySeries) {
	const (
		chartLeft   = 20.0
		chartWidth  = 170.0
		chartHeight = 45.0
	)

	// Rect does not trigger automatic page breaks, so break by hand.
	if pdf.GetY()+chartHeight+25 > 270 {
		pdf.AddPage()
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, series.CabType)
	pdf.Ln(8)

	var maxTotal float64
	for _, m := range series.Totals {
		if m.TotalCO2Kgs > maxTotal {
			maxTotal = m.TotalCO2Kgs
		}
	}

	top := pdf.GetY()
	baseline := top + chartHeight
	slot := chartWidth / 12
	barWidth := slot * 0.6

	r, g, b := cabColor(series.CabType)
	pdf.SetFillColor(r, g, b)
	pdf.SetDrawColor(120, 120, 120)

	for i, m := range series.Totals {
		if maxTotal <= 0 || m.TotalCO2Kgs <= 0 {
			continue
		}
		h := chartHeight * (m.TotalCO2Kgs / maxTotal)
		x := chartLeft + float64(i)*slot + (slot-barWidth)/2
		pdf.Rect(x, baseline-h, barWidth, h, "F")
	}
	pdf.Line(chartLeft, baseline, chartLeft+chartWidth, baseline)

	pdf.SetY(baseline + 1)
	pdf.SetX(chartLeft)
	pdf.SetFont("Helvetica", "", 7)
	for _, m := range series.Totals {
		label := m.Label
		if len(label) > 3 {
			label = label[:3]
		}
		pdf.CellFormat(slot, 4, label, "", 0, "C", false, 0, "")
	}
	pdf.Ln(5)

	pdf.SetX(chartLeft)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(chartWidth, 5, fmt.Sprintf("peak month %.1f kg CO2", maxTotal), "", 0, "R", false, 0, "")
	pdf.Ln(12)
}

// cabColor maps a cab type to its brand-ish bar color. Unknown types get a
// neutral gray.
func cabColor(cabType string) (int, int, int) {
	switch cabType {
	case "yellow":
		return 252, 209, 22
	case "green":
		return 52, 168, 83
	default:
		return 120, 144, 156
	}
}
