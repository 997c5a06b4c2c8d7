package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// enrichedColumns is the column order used for bulk writes into the
// per-variant output tables. It must match the transform table migrations.
var enrichedColumns = []string{
	"cab_type",
	"pickup_datetime",
	"dropoff_datetime",
	"passenger_count",
	"trip_distance",
	"trip_co2_kgs",
	"avg_mph",
	"hour_of_day",
	"day_of_week",
	"week_of_year",
	"month_of_year",
}

// Ensure pgEnrichedTripStore implements store.EnrichedTripStore.
var _ store.EnrichedTripStore = (*pgEnrichedTripStore)(nil)

type pgEnrichedTripStore struct {
	pool Querier
}

// NewEnrichedTripStore creates a PostgreSQL-backed writer for enriched trip
// tables. Writes go through the COPY protocol, which is the only insert path
// fast enough for full-table reloads.
func NewEnrichedTripStore(pool Querier) store.EnrichedTripStore {
	return &pgEnrichedTripStore{pool: pool}
}

// Truncate implements store.EnrichedTripStore.
func (s *pgEnrichedTripStore) Truncate(ctx context.Context, table string) error {
	q := fmt.Sprintf(`TRUNCATE TABLE %s`, pgx.Identifier{table}.Sanitize())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}
	return nil
}

// WriteBatch implements store.EnrichedTripStore. Nil pointer fields are
// written as SQL NULL.
func (s *pgEnrichedTripStore) WriteBatch(ctx context.Context, table string, trips []types.EnrichedTrip) (int64, error) {
	if len(trips) == 0 {
		return 0, nil
	}

	copied, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{table},
		enrichedColumns,
		pgx.CopyFromSlice(len(trips), func(i int) ([]any, error) {
			t := trips[i]
			return []any{
				t.CabType,
				t.PickupDatetime,
				t.DropoffDatetime,
				t.PassengerCount,
				t.TripDistance,
				t.TripCO2Kgs,
				t.AvgMPH,
				t.HourOfDay,
				t.DayOfWeek,
				t.WeekOfYear,
				t.MonthOfYear,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy %d rows into %s: %w", len(trips), table, err)
	}
	return copied, nil
}

// CountRows implements store.EnrichedTripStore.
func (s *pgEnrichedTripStore) CountRows(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pgx.Identifier{table}.Sanitize())

	var count int64
	if err := s.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
