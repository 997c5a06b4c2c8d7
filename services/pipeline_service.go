package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/internal/transform"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// CacheInvalidator is notified after a run replaces the enriched tables, so
// cached analysis results never outlive the data they were computed from.
type CacheInvalidator interface {
	InvalidateAnalysisCache(ctx context.Context) error
}

// PipelineService runs the enrichment pipeline: for every configured variant
// it truncates the output table, streams the raw landing table through the
// enrichment transform on a worker pool and bulk-writes the results.
type PipelineService struct {
	schemaStore    store.SchemaStore
	sourceStore    store.SourceTripStore
	emissionsStore store.EmissionsStore
	enrichedStore  store.EnrichedTripStore
	variants       []types.VariantConfig
	cfg            config.ETLConfig
	log            *zap.SugaredLogger
	metrics        *pipelineMetrics
	invalidator    CacheInvalidator
}

// pipelineMetrics holds Prometheus metrics for pipeline runs.
type pipelineMetrics struct {
	rowsRead    *prometheus.CounterVec
	rowsWritten *prometheus.CounterVec
	rowsDropped *prometheus.CounterVec
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	plMetricsInstance *pipelineMetrics
	plMetricsOnce     sync.Once
	plDefaultRegistry = prometheus.DefaultRegisterer
)

func newPipelineMetrics() *pipelineMetrics {
	plMetricsOnce.Do(func() {
		plMetricsInstance = &pipelineMetrics{
			rowsRead: promauto.With(plDefaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "tripetl_rows_read_total",
				Help: "Raw rows read from landing tables",
			}, []string{"cab_type"}),
			rowsWritten: promauto.With(plDefaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "tripetl_rows_written_total",
				Help: "Enriched rows written to output tables",
			}, []string{"cab_type"}),
			rowsDropped: promauto.With(plDefaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "tripetl_rows_dropped_total",
				Help: "Rows dropped because no emissions factor matched",
			}, []string{"cab_type"}),
			runsTotal: promauto.With(plDefaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "tripetl_runs_total",
				Help: "Pipeline runs by outcome",
			}, []string{"status"}),
			runDuration: promauto.With(plDefaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "tripetl_run_duration_seconds",
				Help:    "End-to-end pipeline run duration",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			}),
		}
	})
	return plMetricsInstance
}

// resetPipelineMetricsForTesting resets the metrics singleton for test isolation.
// This should only be called from tests.
func resetPipelineMetricsForTesting() {
	reg := prometheus.NewRegistry()
	plDefaultRegistry = reg
	plMetricsInstance = nil
	plMetricsOnce = sync.Once{}
}

// NewPipelineService creates the pipeline over the given stores and variant
// list. Variants run in declaration order.
func NewPipelineService(
	schemaStore store.SchemaStore,
	sourceStore store.SourceTripStore,
	emissionsStore store.EmissionsStore,
	enrichedStore store.EnrichedTripStore,
	variants []types.VariantConfig,
	cfg config.ETLConfig,
) *PipelineService {
	return &PipelineService{
		schemaStore:    schemaStore,
		sourceStore:    sourceStore,
		emissionsStore: emissionsStore,
		enrichedStore:  enrichedStore,
		variants:       variants,
		cfg:            cfg,
		log:            logger.GetLogger().Named("pipeline"),
		metrics:        newPipelineMetrics(),
	}
}

// SetCacheInvalidator registers a hook that is called after a successful run.
func (p *PipelineService) SetCacheInvalidator(inv CacheInvalidator) {
	p.invalidator = inv
}

// Run executes the full pipeline once and returns a per-variant summary.
// Setup problems (missing tables or columns, unreadable emissions data)
// surface before any output table is touched. A malformed row in any variant
// aborts the whole run; the partially loaded table is repaired by the next
// run's truncate.
func (p *PipelineService) Run(ctx context.Context) (*types.RunSummary, error) {
	runID := uuid.New().String()
	log := p.log.With("runId", runID)

	summary := &types.RunSummary{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
	log.Infow("Starting pipeline run", "variants", len(p.variants), "batchSize", p.cfg.BatchSize)

	lookup, err := p.emissionsStore.GetLookup(ctx)
	if err != nil {
		p.metrics.runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	log.Infow("Loaded emissions factors", "vehicleTypes", len(lookup))

	// Validate every variant before mutating anything, so a typo in the
	// last variant cannot leave the first one truncated.
	for _, variant := range p.variants {
		if err := p.schemaStore.ValidateVariant(ctx, variant); err != nil {
			p.metrics.runsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	for _, variant := range p.variants {
		segment, err := p.runSegment(ctx, variant, lookup, log)
		if err != nil {
			p.metrics.runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("variant %s: %w", variant.CabTypeTag, err)
		}
		summary.Segments = append(summary.Segments, *segment)
	}

	summary.FinishedAt = time.Now().UTC()
	p.metrics.runsTotal.WithLabelValues("success").Inc()
	p.metrics.runDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	if p.invalidator != nil {
		if err := p.invalidator.InvalidateAnalysisCache(ctx); err != nil {
			log.Warnw("Failed to invalidate analysis cache", "error", err)
		}
	}

	log.Infow("Pipeline run complete",
		"rowsRead", summary.TotalRowsRead(),
		"rowsWritten", summary.TotalRowsWritten(),
		"rowsDropped", summary.TotalRowsDropped(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary, nil
}

// runSegment processes one variant end to end.
func (p *PipelineService) runSegment(ctx context.Context, variant types.VariantConfig, lookup types.EmissionsLookup, log *zap.SugaredLogger) (*types.SegmentSummary, error) {
	start := time.Now()
	log = log.With("cabType", variant.CabTypeTag)
	log.Infow("Starting segment",
		"sourceTable", variant.SourceTable,
		"outputTable", variant.OutputTable)

	enricher := transform.NewEnricher(variant, lookup)
	if !enricher.Matched() {
		log.Warnw("No emissions factor for variant, every row will be dropped",
			"emissionsKey", variant.EmissionsKey)
	}

	if err := p.enrichedStore.Truncate(ctx, variant.OutputTable); err != nil {
		return nil, err
	}

	pool := NewWorkerPool(ctx, p.cfg)
	pool.Start()

	var rowsRead, rowsWritten, rowsDropped atomic.Int64

	streamErr := p.sourceStore.StreamRawTrips(ctx, variant, p.cfg.BatchSize, func(batch []types.RawTrip) error {
		rowsRead.Add(int64(len(batch)))
		job := Job{
			Name: fmt.Sprintf("%s rows %d-%d", variant.CabTypeTag, batch[0].RowNumber, batch[len(batch)-1].RowNumber),
			Execute: func(jobCtx context.Context) error {
				enriched, dropped, err := enricher.EnrichBatch(batch)
				if err != nil {
					return err
				}
				rowsDropped.Add(dropped)

				written, err := p.enrichedStore.WriteBatch(jobCtx, variant.OutputTable, enriched)
				if err != nil {
					return err
				}
				rowsWritten.Add(written)
				return nil
			},
		}
		return pool.Submit(ctx, job)
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	poolErr := pool.Shutdown(shutdownCtx)

	// A submit refused after a job failure already carries the job's error,
	// so the pool error wins over the stream error.
	if poolErr != nil {
		return nil, poolErr
	}
	if streamErr != nil {
		return nil, streamErr
	}

	segment := &types.SegmentSummary{
		CabType:     variant.CabTypeTag,
		SourceTable: variant.SourceTable,
		OutputTable: variant.OutputTable,
		RowsRead:    rowsRead.Load(),
		RowsWritten: rowsWritten.Load(),
		RowsDropped: rowsDropped.Load(),
		Duration:    time.Since(start),
	}

	p.metrics.rowsRead.WithLabelValues(variant.CabTypeTag).Add(float64(segment.RowsRead))
	p.metrics.rowsWritten.WithLabelValues(variant.CabTypeTag).Add(float64(segment.RowsWritten))
	p.metrics.rowsDropped.WithLabelValues(variant.CabTypeTag).Add(float64(segment.RowsDropped))

	if segment.RowsDropped > 0 {
		log.Warnw("Dropped rows without an emissions factor",
			"rowsDropped", segment.RowsDropped,
			"emissionsKey", variant.EmissionsKey)
	}
	log.Infow("Segment complete",
		"rowsRead", segment.RowsRead,
		"rowsWritten", segment.RowsWritten,
		"rowsDropped", segment.RowsDropped,
		"duration", segment.Duration)
	return segment, nil
}
