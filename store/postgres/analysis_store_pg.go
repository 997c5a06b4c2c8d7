package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// Ensure pgAnalysisStore implements store.AnalysisStore.
var _ store.AnalysisStore = (*pgAnalysisStore)(nil)

type pgAnalysisStore struct {
	pool Querier
}

// NewAnalysisStore creates a PostgreSQL-backed aggregate reader over
// enriched trip tables.
func NewAnalysisStore(pool Querier) store.AnalysisStore {
	return &pgAnalysisStore{pool: pool}
}

// LargestTrip implements store.AnalysisStore.
func (s *pgAnalysisStore) LargestTrip(ctx context.Context, variant types.VariantConfig) (*types.LargestTrip, error) {
	q := fmt.Sprintf(`
        SELECT pickup_datetime, trip_distance, trip_co2_kgs
        FROM %s
        WHERE trip_co2_kgs IS NOT NULL
        ORDER BY trip_co2_kgs DESC
        LIMIT 1`,
		pgx.Identifier{variant.OutputTable}.Sanitize(),
	)

	trip := types.LargestTrip{CabType: variant.CabTypeTag}
	err := s.pool.QueryRow(ctx, q).Scan(&trip.PickupDatetime, &trip.TripDistance, &trip.TripCO2Kgs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query largest trip in %s: %w", variant.OutputTable, err)
	}
	return &trip, nil
}

// BucketExtremes implements store.AnalysisStore. One grouped query returns
// every bucket ordered by average CO2; the extremes are its first and last
// rows. The groupings are tiny (at most 53 buckets for weeks), so reading
// them all costs nothing over two LIMIT 1 queries.
func (s *pgAnalysisStore) BucketExtremes(ctx context.Context, variant types.VariantConfig, kind types.BucketKind) (*types.BucketExtremes, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid bucket kind %q", kind)
	}

	col := pgx.Identifier{kind.Column()}.Sanitize()
	q := fmt.Sprintf(`
        SELECT %s, AVG(trip_co2_kgs), COUNT(*)
        FROM %s
        WHERE trip_co2_kgs IS NOT NULL
        GROUP BY %s
        ORDER BY 2 DESC`,
		col,
		pgx.Identifier{variant.OutputTable}.Sanitize(),
		col,
	)

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s buckets in %s: %w", kind, variant.OutputTable, err)
	}
	defer rows.Close()

	var stats []types.BucketStat
	for rows.Next() {
		var stat types.BucketStat
		if err := rows.Scan(&stat.Bucket, &stat.AvgCO2Kgs, &stat.TripCount); err != nil {
			return nil, fmt.Errorf("failed to scan %s bucket row: %w", kind, err)
		}
		stat.Label = kind.BucketLabel(stat.Bucket)
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading %s buckets: %w", kind, err)
	}

	if len(stats) == 0 {
		return nil, nil
	}
	return &types.BucketExtremes{
		CabType:  variant.CabTypeTag,
		Kind:     kind,
		Heaviest: stats[0],
		Lightest: stats[len(stats)-1],
	}, nil
}

// MonthlyTotals implements store.AnalysisStore. The generate_series join
// keeps months without trips in the result with a zero total.
func (s *pgAnalysisStore) MonthlyTotals(ctx context.Context, variant types.VariantConfig) (*types.MonthlySeries, error) {
	q := fmt.Sprintf(`
        SELECT months.m, COALESCE(SUM(t.trip_co2_kgs), 0)
        FROM generate_series(1, 12) AS months(m)
        LEFT JOIN %s t ON t.month_of_year = months.m
        GROUP BY months.m
        ORDER BY months.m`,
		pgx.Identifier{variant.OutputTable}.Sanitize(),
	)

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly totals in %s: %w", variant.OutputTable, err)
	}
	defer rows.Close()

	series := types.MonthlySeries{
		CabType: variant.CabTypeTag,
		Totals:  make([]types.MonthlyTotal, 0, 12),
	}
	for rows.Next() {
		var total types.MonthlyTotal
		if err := rows.Scan(&total.Month, &total.TotalCO2Kgs); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total row: %w", err)
		}
		total.Label = types.BucketMonthOfYear.BucketLabel(total.Month)
		series.Totals = append(series.Totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading monthly totals: %w", err)
	}

	return &series, nil
}
