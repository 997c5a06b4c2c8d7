package transform

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

func strPtr(s string) *string { return &s }

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

func greenVariant() types.VariantConfig {
	return types.VariantConfig{
		CabTypeTag:   "green",
		SourceTable:  "raw_green_trips",
		PickupCol:    "lpep_pickup_datetime",
		DropoffCol:   "lpep_dropoff_datetime",
		EmissionsKey: "green_taxi",
		OutputTable:  "green_transform",
	}
}

func testLookup() types.EmissionsLookup {
	return types.EmissionsLookup{
		"yellow_taxi": 404.0,
		"green_taxi":  386.0,
	}
}

func rawTrip(row int64, pickup, dropoff, passengers, distance string) types.RawTrip {
	raw := types.RawTrip{
		RowNumber: row,
		Pickup:    strPtr(pickup),
		Dropoff:   strPtr(dropoff),
	}
	if passengers != "" {
		raw.PassengerCount = strPtr(passengers)
	}
	if distance != "" {
		raw.TripDistance = strPtr(distance)
	}
	return raw
}

func TestEnrichRow_JoinFiltering(t *testing.T) {
	variant := yellowVariant()
	variant.EmissionsKey = "hovercraft"

	enricher := NewEnricher(variant, testLookup())
	assert.False(t, enricher.Matched())

	rows := []types.RawTrip{
		rawTrip(1, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "2", "5.0"),
		rawTrip(2, "2023-03-16 09:00:00", "2023-03-16 09:10:00", "1", "1.2"),
		// Even malformed rows are dropped whole when the join never matches.
		rawTrip(3, "not a timestamp", "2023-03-16 09:10:00", "1", "1.2"),
	}

	enriched, dropped, err := enricher.EnrichBatch(rows)
	require.NoError(t, err)
	assert.Empty(t, enriched)
	assert.Equal(t, int64(3), dropped)
}

func TestEnrichRow_CO2Linearity(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	distances := []string{"0", "0.5", "1", "2.7", "13.9", "100", "-3.2"}
	for _, d := range distances {
		t.Run("distance "+d, func(t *testing.T) {
			row, err := enricher.EnrichRow(rawTrip(1, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "1", d))
			require.NoError(t, err)
			require.NotNil(t, row)
			require.NotNil(t, row.TripCO2Kgs)
			require.NotNil(t, row.TripDistance)
			assert.InDelta(t, *row.TripDistance*404.0/1000.0, *row.TripCO2Kgs, 1e-9)
		})
	}
}

func TestEnrichRow_NullDistancePropagates(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	row, err := enricher.EnrichRow(rawTrip(1, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "2", ""))
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Nil(t, row.TripDistance)
	assert.Nil(t, row.TripCO2Kgs)
	assert.Nil(t, row.AvgMPH)
	// Pass-through and calendar fields are unaffected by the null.
	require.NotNil(t, row.PassengerCount)
	assert.Equal(t, int64(2), *row.PassengerCount)
	assert.Equal(t, 14, row.HourOfDay)
}

func TestEnrichRow_SpeedGuard(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	tests := []struct {
		name    string
		pickup  string
		dropoff string
	}{
		{"equal timestamps", "2023-03-15 14:00:00", "2023-03-15 14:00:00"},
		{"dropoff before pickup", "2023-03-15 14:00:00", "2023-03-15 13:00:00"},
		{"one second negative", "2023-03-15 14:00:00", "2023-03-15 13:59:59"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := enricher.EnrichRow(rawTrip(1, tt.pickup, tt.dropoff, "1", "5.0"))
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Nil(t, row.AvgMPH)
			// CO2 does not depend on elapsed time and is still derived.
			require.NotNil(t, row.TripCO2Kgs)
			assert.InDelta(t, 5.0*404.0/1000.0, *row.TripCO2Kgs, 1e-9)
		})
	}
}

func TestEnrichRow_SpeedComputation(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	row, err := enricher.EnrichRow(rawTrip(1, "2023-01-01T00:00:00", "2023-01-01T00:30:00", "1", "5.0"))
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.AvgMPH)
	assert.InDelta(t, 10.0, *row.AvgMPH, 1e-9)
}

func TestEnrichRow_CalendarExtraction(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	// 2023-03-15 is a Wednesday in ISO week 11.
	row, err := enricher.EnrichRow(rawTrip(1, "2023-03-15T14:00:00", "2023-03-15T15:00:00", "1", "2.0"))
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, 14, row.HourOfDay)
	assert.Equal(t, 3, row.DayOfWeek) // 0=Sunday, so Wednesday is 3
	assert.Equal(t, 11, row.WeekOfYear)
	assert.Equal(t, 3, row.MonthOfYear)
}

func TestEnrichRow_CalendarConvention(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	tests := []struct {
		pickup  string
		wantDow int
	}{
		{"2023-03-12 08:00:00", 0}, // Sunday
		{"2023-03-13 08:00:00", 1}, // Monday
		{"2023-03-18 08:00:00", 6}, // Saturday
	}

	for _, tt := range tests {
		row, err := enricher.EnrichRow(rawTrip(1, tt.pickup, "2023-03-18 09:00:00", "1", "1.0"))
		require.NoError(t, err)
		assert.Equal(t, tt.wantDow, row.DayOfWeek, "pickup %s", tt.pickup)
	}
}

func TestEnrichRow_ConstantTagging(t *testing.T) {
	lookup := testLookup()
	inputs := []types.RawTrip{
		rawTrip(1, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "1", "5.0"),
		rawTrip(2, "2023-06-01 01:00:00", "2023-06-01 02:00:00", "", ""),
		rawTrip(3, "2023-12-31 23:00:00", "2024-01-01 00:10:00", "4", "12.3"),
	}

	yellow := NewEnricher(yellowVariant(), lookup)
	green := NewEnricher(greenVariant(), lookup)

	yellowRows, _, err := yellow.EnrichBatch(inputs)
	require.NoError(t, err)
	greenRows, _, err := green.EnrichBatch(inputs)
	require.NoError(t, err)

	require.Len(t, yellowRows, len(inputs))
	require.Len(t, greenRows, len(inputs))
	for i := range inputs {
		assert.Equal(t, "yellow", yellowRows[i].CabType)
		assert.Equal(t, "green", greenRows[i].CabType)
	}
}

func TestEnrichBatch_Idempotence(t *testing.T) {
	enricher := NewEnricher(greenVariant(), testLookup())

	inputs := []types.RawTrip{
		rawTrip(1, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "1", "5.0"),
		rawTrip(2, "2023-06-01 01:00:00", "2023-06-01 02:00:00", "", ""),
		rawTrip(3, "2023-12-31 23:00:00", "2023-12-31 22:00:00", "4", "12.3"),
	}

	first, droppedFirst, err := enricher.EnrichBatch(inputs)
	require.NoError(t, err)
	second, droppedSecond, err := enricher.EnrichBatch(inputs)
	require.NoError(t, err)

	assert.Equal(t, droppedFirst, droppedSecond)

	// Output is an order-irrelevant set; compare after a stable sort.
	sortRows := func(rows []types.EnrichedTrip) {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].PickupDatetime.Before(rows[j].PickupDatetime)
		})
	}
	sortRows(first)
	sortRows(second)
	assert.Equal(t, first, second)
}

func TestEnrichRow_MalformedTimestamp(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	tests := []struct {
		name  string
		raw   types.RawTrip
		field string
	}{
		{
			name:  "garbage pickup",
			raw:   rawTrip(7, "15/03/2023 14:00", "2023-03-15 14:30:00", "1", "5.0"),
			field: "tpep_pickup_datetime",
		},
		{
			name:  "garbage dropoff",
			raw:   rawTrip(8, "2023-03-15 14:00:00", "later that day", "1", "5.0"),
			field: "tpep_dropoff_datetime",
		},
		{
			name: "missing pickup",
			raw: types.RawTrip{
				RowNumber:    9,
				Dropoff:      strPtr("2023-03-15 14:30:00"),
				TripDistance: strPtr("5.0"),
			},
			field: "tpep_pickup_datetime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := enricher.EnrichRow(tt.raw)
			require.Error(t, err)
			assert.Nil(t, row)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperrors.DataFormatError, appErr.Type)
			assert.Contains(t, appErr.Message, tt.field)
			assert.Contains(t, appErr.Detail, "raw_yellow_trips")
		})
	}
}

func TestEnrichBatch_AbortsOnFirstBadRow(t *testing.T) {
	enricher := NewEnricher(yellowVariant(), testLookup())

	rows := []types.RawTrip{
		rawTrip(1, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "1", "5.0"),
		rawTrip(2, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "two", "5.0"),
		rawTrip(3, "2023-03-15 14:00:00", "2023-03-15 14:30:00", "1", "5.0"),
	}

	enriched, dropped, err := enricher.EnrichBatch(rows)
	require.Error(t, err)
	assert.Nil(t, enriched)
	assert.Zero(t, dropped)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.DataFormatError, appErr.Type)
	assert.Contains(t, appErr.Detail, "row 2")
}
