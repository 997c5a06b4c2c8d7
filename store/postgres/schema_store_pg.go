package postgres

import (
	"context"
	"fmt"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/store"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// Ensure pgSchemaStore implements store.SchemaStore.
var _ store.SchemaStore = (*pgSchemaStore)(nil)

type pgSchemaStore struct {
	pool Querier
}

// NewSchemaStore creates a PostgreSQL-backed validator that checks variant
// table layouts against the information_schema catalog.
func NewSchemaStore(pool Querier) store.SchemaStore {
	return &pgSchemaStore{pool: pool}
}

// ValidateVariant implements store.SchemaStore. It runs before any row is
// read so that a misconfigured variant fails the run during setup, not
// halfway through a load.
func (s *pgSchemaStore) ValidateVariant(ctx context.Context, variant types.VariantConfig) error {
	sourceCols, err := s.tableColumns(ctx, variant.SourceTable)
	if err != nil {
		return err
	}
	if len(sourceCols) == 0 {
		return apperrors.NewConfigurationError(
			"source table not found",
			fmt.Sprintf("table %q does not exist", variant.SourceTable),
		)
	}
	required := []string{variant.PickupCol, variant.DropoffCol, "passenger_count", "trip_distance"}
	for _, col := range required {
		if !sourceCols[col] {
			return apperrors.NewConfigurationError(
				"source column not found",
				fmt.Sprintf("column %q missing from table %q", col, variant.SourceTable),
			)
		}
	}

	outputCols, err := s.tableColumns(ctx, variant.OutputTable)
	if err != nil {
		return err
	}
	if len(outputCols) == 0 {
		return apperrors.NewConfigurationError(
			"output table not found",
			fmt.Sprintf("table %q does not exist", variant.OutputTable),
		)
	}
	for _, col := range enrichedColumns {
		if !outputCols[col] {
			return apperrors.NewConfigurationError(
				"output column not found",
				fmt.Sprintf("column %q missing from table %q", col, variant.OutputTable),
			)
		}
	}

	return nil
}

func (s *pgSchemaStore) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT column_name
        FROM information_schema.columns
        WHERE table_schema = 'public' AND table_name = $1`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name for %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while inspecting columns of %s: %w", table, err)
	}
	return cols, nil
}
