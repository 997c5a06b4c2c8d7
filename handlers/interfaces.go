package handlers

import (
	"context"

	"github.com/TripCarbon/trip-carbon-backend/types"
)

// AnalysisAPI defines the analysis service methods needed by handlers.
type AnalysisAPI interface {
	Summary(ctx context.Context) (*types.AnalysisSummary, error)
	LargestTrips(ctx context.Context) ([]types.LargestTrip, error)
	BucketBreakdown(ctx context.Context, kind types.BucketKind) ([]types.BucketExtremes, error)
	MonthlyTotals(ctx context.Context) ([]types.MonthlySeries, error)
}

// HealthChecker defines the health service methods needed by handlers.
type HealthChecker interface {
	CheckHealth(ctx context.Context) types.HealthCheck
	CheckLiveness() types.HealthCheck
}
