package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
)

const columnsQueryPattern = `SELECT column_name`

func columnRows(names ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, name := range names {
		rows.AddRow(name)
	}
	return rows
}

func TestSchemaStore_ValidateVariant(t *testing.T) {
	mock, cleanup := newMockPool(t)
	defer cleanup()

	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("raw_yellow_trips").
		WillReturnRows(columnRows(
			"tpep_pickup_datetime", "tpep_dropoff_datetime", "passenger_count", "trip_distance",
		))
	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("yellow_transform").
		WillReturnRows(columnRows(enrichedColumns...))

	store := NewSchemaStore(mock)
	err := store.ValidateVariant(context.Background(), yellowVariant())
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaStore_ValidateVariant_MissingSourceTable(t *testing.T) {
	mock, cleanup := newMockPool(t)
	defer cleanup()

	// information_schema returns no rows for a table that does not exist.
	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("raw_yellow_trips").
		WillReturnRows(columnRows())

	store := NewSchemaStore(mock)
	err := store.ValidateVariant(context.Background(), yellowVariant())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ConfigurationError, appErr.Type)
	assert.Contains(t, appErr.Detail, "raw_yellow_trips")
}

func TestSchemaStore_ValidateVariant_MissingSourceColumn(t *testing.T) {
	mock, cleanup := newMockPool(t)
	defer cleanup()

	// Pickup column present, dropoff column missing.
	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("raw_yellow_trips").
		WillReturnRows(columnRows("tpep_pickup_datetime", "passenger_count", "trip_distance"))

	store := NewSchemaStore(mock)
	err := store.ValidateVariant(context.Background(), yellowVariant())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ConfigurationError, appErr.Type)
	assert.Contains(t, appErr.Detail, "tpep_dropoff_datetime")
	assert.Contains(t, appErr.Detail, "raw_yellow_trips")
}

func TestSchemaStore_ValidateVariant_MissingOutputColumn(t *testing.T) {
	mock, cleanup := newMockPool(t)
	defer cleanup()

	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("raw_yellow_trips").
		WillReturnRows(columnRows(
			"tpep_pickup_datetime", "tpep_dropoff_datetime", "passenger_count", "trip_distance",
		))

	// Output table exists but lacks the CO2 column.
	partial := make([]string, 0, len(enrichedColumns)-1)
	for _, col := range enrichedColumns {
		if col != "trip_co2_kgs" {
			partial = append(partial, col)
		}
	}
	mock.ExpectQuery(columnsQueryPattern).
		WithArgs("yellow_transform").
		WillReturnRows(columnRows(partial...))

	store := NewSchemaStore(mock)
	err := store.ValidateVariant(context.Background(), yellowVariant())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Detail, "trip_co2_kgs")
	assert.Contains(t, appErr.Detail, "yellow_transform")
}
