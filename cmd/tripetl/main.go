// Package main provides tripetl, the batch entrypoint of the warehouse: it
// runs the trip enrichment pipeline, prints analysis summaries, regenerates
// the PDF report, and mints API tokens for local testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/db"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/services"
	"github.com/TripCarbon/trip-carbon-backend/store/postgres"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

const usage = `Usage: tripetl <command> [flags]

Commands:
  run      Run the enrichment pipeline across all configured variants
  analyze  Print the analysis summary for the enriched tables
  report   Regenerate the PDF report from the current enriched tables
  token    Mint an HS256 bearer token for the analysis API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger.InitLogger()
	defer logger.Close()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "analyze":
		err = analyzeCommand(os.Args[2:])
	case "report":
		err = reportCommand(os.Args[2:])
	case "token":
		err = tokenCommand(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "tripetl: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		logger.GetLogger().Errorw("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// connect loads config, connects the warehouse pool and applies pending
// migrations. Every subcommand except token starts here.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := db.ConnectPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return cfg, pool, nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	variantsFile := fs.String("variants", "", "Variants file path (overrides ETL_VARIANTS_FILE)")
	skipReport := fs.Bool("skip-report", false, "Skip report generation even when enabled in config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if *variantsFile != "" {
		cfg.ETL.VariantsFile = *variantsFile
	}
	variants, err := config.LoadVariants(cfg.ETL.VariantsFile)
	if err != nil {
		return err
	}

	pipeline := services.NewPipelineService(
		postgres.NewSchemaStore(pool),
		postgres.NewSourceTripStore(pool),
		postgres.NewEmissionsStore(pool),
		postgres.NewEnrichedTripStore(pool),
		variants,
		cfg.ETL,
	)

	// The cache invalidation hook only attaches when Redis is actually
	// reachable, so a batch box without Redis runs cleanly.
	analysisService := services.NewAnalysisService(postgres.NewAnalysisStore(pool), nil, variants, cfg.Analysis)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err == nil {
		cached := services.NewAnalysisService(postgres.NewAnalysisStore(pool), redisClient, variants, cfg.Analysis)
		pipeline.SetCacheInvalidator(cached)
	} else {
		logger.GetLogger().Debugw("Redis unreachable, skipping cache invalidation", "error", err)
	}
	cancel()
	defer redisClient.Close()

	summary, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	printRunSummary(summary)

	if cfg.Report.Enabled && !*skipReport {
		if err := generateReport(ctx, cfg, analysisService, summary); err != nil {
			// The enriched tables are already materialized; the report is
			// derived and re-runnable via `tripetl report`.
			logger.GetLogger().Warnw("Report generation failed", "error", err)
		}
	}
	return nil
}

func analyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	variants, err := config.LoadVariants(cfg.ETL.VariantsFile)
	if err != nil {
		return err
	}

	analysisService := services.NewAnalysisService(postgres.NewAnalysisStore(pool), nil, variants, cfg.Analysis)
	summary, err := analysisService.Summary(ctx)
	if err != nil {
		return err
	}
	printAnalysisSummary(summary)
	return nil
}

func reportCommand(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	runID := fs.String("run-id", "", "Run ID to stamp on the report (defaults to a fresh one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	variants, err := config.LoadVariants(cfg.ETL.VariantsFile)
	if err != nil {
		return err
	}

	if *runID == "" {
		*runID = uuid.New().String()
	}
	// An ad-hoc report carries no load counts, only the analysis sections.
	now := time.Now().UTC()
	summary := &types.RunSummary{RunID: *runID, StartedAt: now, FinishedAt: now}

	analysisService := services.NewAnalysisService(postgres.NewAnalysisStore(pool), nil, variants, cfg.Analysis)
	return generateReport(ctx, cfg, analysisService, summary)
}

func tokenCommand(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "tripetl-cli", "Subject claim for the minted token")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Server.JwtSecretKey == "" {
		return fmt.Errorf("token minting requires JWT_SECRET_KEY to be set")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   *subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	})
	signed, err := token.SignedString([]byte(cfg.Server.JwtSecretKey))
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Println(signed)
	return nil
}

// generateReport wires the optional sink and notifier and renders the PDF.
func generateReport(ctx context.Context, cfg *config.Config, analysis services.AnalysisProvider, summary *types.RunSummary) error {
	var sink services.ReportSink
	if cfg.Report.S3Bucket != "" {
		storage, err := services.NewS3ReportStorage(ctx, cfg.Report)
		if err != nil {
			return err
		}
		sink = storage
	}

	var notifier services.ReportNotifier
	if cfg.Email.Enabled {
		notifier = services.NewEmailService(&cfg.Email)
	}

	reportService := services.NewReportService(analysis, sink, notifier, cfg.Report)
	result, err := reportService.GenerateRunReport(ctx, summary)
	if err != nil {
		return err
	}
	if result.LocalPath != "" {
		fmt.Printf("Report written to %s\n", result.LocalPath)
	}
	if result.RemoteURL != "" {
		fmt.Printf("Report uploaded: %s\n", result.RemoteURL)
	}
	return nil
}

func printRunSummary(summary *types.RunSummary) {
	fmt.Printf("Run %s finished in %s\n", summary.RunID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	for _, seg := range summary.Segments {
		fmt.Printf("  %-8s %s -> %s: read %d, written %d, dropped %d (%s)\n",
			seg.CabType, seg.SourceTable, seg.OutputTable,
			seg.RowsRead, seg.RowsWritten, seg.RowsDropped,
			seg.Duration.Round(time.Millisecond))
	}
	fmt.Printf("  %-8s read %d, written %d, dropped %d\n",
		"total", summary.TotalRowsRead(), summary.TotalRowsWritten(), summary.TotalRowsDropped())
}

func printAnalysisSummary(summary *types.AnalysisSummary) {
	fmt.Println("Largest trips by CO2:")
	if len(summary.LargestTrips) == 0 {
		fmt.Println("  no enriched trips found")
	}
	for _, trip := range summary.LargestTrips {
		distance := "an unrecorded distance"
		if trip.TripDistance != nil {
			distance = fmt.Sprintf("%.1f miles", *trip.TripDistance)
		}
		fmt.Printf("  %-8s %.3f kg over %s, picked up %s\n",
			trip.CabType, trip.TripCO2Kgs, distance, trip.PickupDatetime.Format("2006-01-02 15:04"))
	}

	fmt.Println("Heaviest and lightest periods:")
	for _, ext := range summary.BucketExtremes {
		kind := strings.ReplaceAll(string(ext.Kind), "_", " ")
		fmt.Printf("  %-8s by %s: heaviest %s (avg %.3f kg), lightest %s (avg %.3f kg)\n",
			ext.CabType, kind,
			ext.Heaviest.Label, ext.Heaviest.AvgCO2Kgs,
			ext.Lightest.Label, ext.Lightest.AvgCO2Kgs)
	}

	fmt.Println("Monthly CO2 totals:")
	for _, series := range summary.MonthlyTotals {
		fmt.Printf("  %s:\n", series.CabType)
		for _, month := range series.Totals {
			fmt.Printf("    %-9s %12.3f kg\n", month.Label, month.TotalCO2Kgs)
		}
	}
}
