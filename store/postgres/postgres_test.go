package postgres

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

func init() {
	logger.IsTest = true
}

// newMockPool creates a pgxmock pool for testing.
func newMockPool(t *testing.T) (pgxmock.PgxPoolIface, func()) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	cleanup := func() {
		mock.Close()
	}
	return mock, cleanup
}

func yellowVariant() types.VariantConfig {
	return types.VariantConfig{
		CabTypeTag:   "yellow",
		SourceTable:  "raw_yellow_trips",
		PickupCol:    "tpep_pickup_datetime",
		DropoffCol:   "tpep_dropoff_datetime",
		EmissionsKey: "yellow_taxi",
		OutputTable:  "yellow_transform",
	}
}

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

func intPtr(i int64) *int64 {
	return &i
}
