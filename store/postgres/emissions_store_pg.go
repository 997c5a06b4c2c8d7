package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// Ensure pgEmissionsStore implements store.EmissionsStore.
var _ store.EmissionsStore = (*pgEmissionsStore)(nil)

type pgEmissionsStore struct {
	pool Querier
}

// NewEmissionsStore creates a PostgreSQL-backed reader over the
// vehicle_emissions reference table.
func NewEmissionsStore(pool Querier) store.EmissionsStore {
	return &pgEmissionsStore{pool: pool}
}

// GetLookup implements store.EmissionsStore. A missing reference table is a
// deployment problem, so it surfaces as a configuration error rather than a
// generic query failure.
func (s *pgEmissionsStore) GetLookup(ctx context.Context) (types.EmissionsLookup, error) {
	rows, err := s.pool.Query(ctx, `SELECT vehicle_type, co2_grams_per_mile FROM vehicle_emissions`)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
			return nil, apperrors.NewConfigurationError(
				"emissions table not found",
				"table \"vehicle_emissions\" does not exist; run migrations first",
			)
		}
		return nil, fmt.Errorf("failed to read vehicle_emissions: %w", err)
	}
	defer rows.Close()

	lookup := make(types.EmissionsLookup)
	for rows.Next() {
		var vehicleType string
		var gramsPerMile float64
		if err := rows.Scan(&vehicleType, &gramsPerMile); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle_emissions row: %w", err)
		}
		lookup[vehicleType] = gramsPerMile
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading vehicle_emissions: %w", err)
	}

	return lookup, nil
}
