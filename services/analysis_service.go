package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TripCarbon/trip-carbon-backend/config"
	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// analysisCachePrefix namespaces the analysis keys in Redis.
const analysisCachePrefix = "analysis:"

// AnalysisService answers aggregate questions about the enriched tables.
// Results are cached in Redis with a short TTL and invalidated after every
// pipeline run; a cache failure falls back to the database instead of
// failing the request.
type AnalysisService struct {
	analysisStore store.AnalysisStore
	redisClient   *redis.Client
	variants      []types.VariantConfig
	cacheTTL      time.Duration
	log           *zap.SugaredLogger
}

// Ensure AnalysisService satisfies the pipeline's invalidation hook.
var _ CacheInvalidator = (*AnalysisService)(nil)

// NewAnalysisService creates the analysis layer. redisClient may be nil, in
// which case every query goes straight to the database.
func NewAnalysisService(analysisStore store.AnalysisStore, redisClient *redis.Client, variants []types.VariantConfig, cfg config.AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		analysisStore: analysisStore,
		redisClient:   redisClient,
		variants:      variants,
		cacheTTL:      time.Duration(cfg.CacheTTLSeconds) * time.Second,
		log:           logger.GetLogger().Named("analysis"),
	}
}

// LargestTrips returns the highest-CO2 trip per cab type. Cab types whose
// output table is empty are omitted.
func (s *AnalysisService) LargestTrips(ctx context.Context) ([]types.LargestTrip, error) {
	key := analysisCachePrefix + "largest"

	var trips []types.LargestTrip
	if s.readCache(ctx, key, &trips) {
		return trips, nil
	}

	trips = make([]types.LargestTrip, 0, len(s.variants))
	for _, variant := range s.variants {
		trip, err := s.analysisStore.LargestTrip(ctx, variant)
		if err != nil {
			return nil, err
		}
		if trip != nil {
			trips = append(trips, *trip)
		}
	}

	s.writeCache(ctx, key, trips)
	return trips, nil
}

// BucketBreakdown returns the heaviest and lightest average-CO2 buckets of
// one calendar grouping for every cab type.
func (s *AnalysisService) BucketBreakdown(ctx context.Context, kind types.BucketKind) ([]types.BucketExtremes, error) {
	if !kind.IsValid() {
		return nil, apperrors.ValidationFailed("invalid bucket kind", string(kind))
	}
	key := analysisCachePrefix + "buckets:" + kind.String()

	var extremes []types.BucketExtremes
	if s.readCache(ctx, key, &extremes) {
		return extremes, nil
	}

	extremes = make([]types.BucketExtremes, 0, len(s.variants))
	for _, variant := range s.variants {
		e, err := s.analysisStore.BucketExtremes(ctx, variant, kind)
		if err != nil {
			return nil, err
		}
		if e != nil {
			extremes = append(extremes, *e)
		}
	}

	s.writeCache(ctx, key, extremes)
	return extremes, nil
}

// MonthlyTotals returns the January-December CO2 totals series for every cab
// type. Every series has twelve entries even when a table is empty.
func (s *AnalysisService) MonthlyTotals(ctx context.Context) ([]types.MonthlySeries, error) {
	key := analysisCachePrefix + "monthly"

	var series []types.MonthlySeries
	if s.readCache(ctx, key, &series) {
		return series, nil
	}

	series = make([]types.MonthlySeries, 0, len(s.variants))
	for _, variant := range s.variants {
		m, err := s.analysisStore.MonthlyTotals(ctx, variant)
		if err != nil {
			return nil, err
		}
		if m != nil {
			series = append(series, *m)
		}
	}

	s.writeCache(ctx, key, series)
	return series, nil
}

// Summary composes every analysis section. The sections are cached
// individually, so the summary itself needs no cache key.
func (s *AnalysisService) Summary(ctx context.Context) (*types.AnalysisSummary, error) {
	largest, err := s.LargestTrips(ctx)
	if err != nil {
		return nil, err
	}

	var extremes []types.BucketExtremes
	for _, kind := range types.AllBucketKinds() {
		e, err := s.BucketBreakdown(ctx, kind)
		if err != nil {
			return nil, err
		}
		extremes = append(extremes, e...)
	}

	monthly, err := s.MonthlyTotals(ctx)
	if err != nil {
		return nil, err
	}

	return &types.AnalysisSummary{
		GeneratedAt:    time.Now().UTC(),
		LargestTrips:   largest,
		BucketExtremes: extremes,
		MonthlyTotals:  monthly,
	}, nil
}

// InvalidateAnalysisCache implements CacheInvalidator. The key set is fixed,
// so no SCAN is needed.
func (s *AnalysisService) InvalidateAnalysisCache(ctx context.Context) error {
	if s.redisClient == nil {
		return nil
	}

	keys := []string{
		analysisCachePrefix + "largest",
		analysisCachePrefix + "monthly",
	}
	for _, kind := range types.AllBucketKinds() {
		keys = append(keys, analysisCachePrefix+"buckets:"+kind.String())
	}

	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	s.log.Debugw("Invalidated analysis cache", "keys", len(keys))
	return nil
}

// readCache reports whether key held a decodable entry and, if so, fills
// dest with it.
func (s *AnalysisService) readCache(ctx context.Context, key string, dest any) bool {
	if s.redisClient == nil {
		return false
	}

	data, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warnw("Analysis cache read failed", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		s.log.Warnw("Discarding undecodable analysis cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// writeCache stores value under key, best effort.
func (s *AnalysisService) writeCache(ctx context.Context, key string, value any) {
	if s.redisClient == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.log.Errorw("Failed to marshal analysis cache entry", "key", key, "error", err)
		return
	}

	if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.log.Warnw("Analysis cache write failed", "key", key, "error", err)
	}
}
