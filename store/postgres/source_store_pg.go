package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// Ensure pgSourceTripStore implements store.SourceTripStore.
var _ store.SourceTripStore = (*pgSourceTripStore)(nil)

type pgSourceTripStore struct {
	pool Querier
}

// NewSourceTripStore creates a PostgreSQL-backed reader over raw landing
// tables.
func NewSourceTripStore(pool Querier) store.SourceTripStore {
	return &pgSourceTripStore{pool: pool}
}

// StreamRawTrips implements store.SourceTripStore. The variant's identifiers
// are validated against the catalog before any run, so interpolating them
// here is safe; they are still quoted through pgx.Identifier.
func (s *pgSourceTripStore) StreamRawTrips(ctx context.Context, variant types.VariantConfig, batchSize int, fn func(batch []types.RawTrip) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	q := fmt.Sprintf(
		`SELECT %s, %s, passenger_count, trip_distance FROM %s`,
		pgx.Identifier{variant.PickupCol}.Sanitize(),
		pgx.Identifier{variant.DropoffCol}.Sanitize(),
		pgx.Identifier{variant.SourceTable}.Sanitize(),
	)

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", variant.SourceTable, err)
	}
	defer rows.Close()

	batch := make([]types.RawTrip, 0, batchSize)
	var rowNumber int64

	for rows.Next() {
		rowNumber++
		trip := types.RawTrip{RowNumber: rowNumber}
		if err := rows.Scan(&trip.Pickup, &trip.Dropoff, &trip.PassengerCount, &trip.TripDistance); err != nil {
			return fmt.Errorf("failed to scan %s row %d: %w", variant.SourceTable, rowNumber, err)
		}

		batch = append(batch, trip)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]types.RawTrip, 0, batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed while reading %s: %w", variant.SourceTable, err)
	}

	if len(batch) > 0 {
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}
