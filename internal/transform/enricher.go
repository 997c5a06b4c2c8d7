// Package transform implements the per-trip enrichment derivations. The
// transform is a pure row mapping: it joins each raw trip against the
// emissions lookup, derives CO2 and speed metrics, and breaks the pickup
// time into calendar fields. All I/O lives with the callers.
package transform

import (
	"fmt"

	"github.com/TripCarbon/trip-carbon-backend/types"
)

// Enricher applies the enrichment derivations for one variant. It is
// immutable after construction and safe for concurrent use across workers.
type Enricher struct {
	variant types.VariantConfig
	gpm     float64
	matched bool
}

// NewEnricher binds a variant to the shared emissions lookup. A variant
// whose emissions key has no entry in the lookup still gets an Enricher;
// every row it processes is then filtered out, mirroring inner-join
// semantics.
func NewEnricher(variant types.VariantConfig, lookup types.EmissionsLookup) *Enricher {
	gpm, ok := lookup.Factor(variant.EmissionsKey)
	return &Enricher{
		variant: variant,
		gpm:     gpm,
		matched: ok,
	}
}

// Matched reports whether the variant's emissions key resolved. Callers use
// it to warn about a segment that will produce no output.
func (e *Enricher) Matched() bool {
	return e.matched
}

// EnrichRow derives one enriched trip from one raw record.
//
// A (nil, nil) return means the row was filtered by the emissions join and
// produces no output. An error return is always a data format failure and
// aborts the run; the row is never silently skipped on bad data.
//
// Derivations:
//   - trip_co2_kgs = trip_distance * grams_per_mile / 1000; null distance
//     propagates to a null result.
//   - avg_mph = trip_distance / (elapsed_seconds / 3600) only when elapsed
//     seconds > 0; otherwise null. Equal or reversed timestamps therefore
//     yield null rather than a division by zero or a negative speed.
//   - hour_of_day, day_of_week, week_of_year, month_of_year come from the
//     pickup timestamp as stored. day_of_week is 0=Sunday through
//     6=Saturday; week_of_year is the ISO 8601 week number.
func (e *Enricher) EnrichRow(raw types.RawTrip) (*types.EnrichedTrip, error) {
	// The join filter runs before any parsing: rows without an emissions
	// match are dropped whole, exactly as an inner join would drop them
	// before their expressions are evaluated.
	if !e.matched {
		return nil, nil
	}

	rowContext := fmt.Sprintf("%s row %d", e.variant.SourceTable, raw.RowNumber)

	pickup, err := parseTimestamp(e.variant.PickupCol, raw.Pickup, rowContext)
	if err != nil {
		return nil, err
	}
	dropoff, err := parseTimestamp(e.variant.DropoffCol, raw.Dropoff, rowContext)
	if err != nil {
		return nil, err
	}
	passengers, err := parseNullableInt("passenger_count", raw.PassengerCount, rowContext)
	if err != nil {
		return nil, err
	}
	distance, err := parseNullableFloat("trip_distance", raw.TripDistance, rowContext)
	if err != nil {
		return nil, err
	}

	_, isoWeek := pickup.ISOWeek()

	enriched := &types.EnrichedTrip{
		CabType:         e.variant.CabTypeTag,
		PickupDatetime:  pickup,
		DropoffDatetime: dropoff,
		PassengerCount:  passengers,
		TripDistance:    distance,
		HourOfDay:       pickup.Hour(),
		DayOfWeek:       int(pickup.Weekday()),
		WeekOfYear:      isoWeek,
		MonthOfYear:     int(pickup.Month()),
	}

	if distance != nil {
		co2 := *distance * e.gpm / 1000.0
		enriched.TripCO2Kgs = &co2

		elapsed := dropoff.Sub(pickup).Seconds()
		if elapsed > 0 {
			mph := *distance / (elapsed / 3600.0)
			enriched.AvgMPH = &mph
		}
	}

	return enriched, nil
}

// EnrichBatch maps a batch of raw records, returning the enriched rows and
// the count filtered out by the emissions join. The first data format
// failure aborts the whole batch.
func (e *Enricher) EnrichBatch(raws []types.RawTrip) ([]types.EnrichedTrip, int64, error) {
	enriched := make([]types.EnrichedTrip, 0, len(raws))
	var dropped int64

	for _, raw := range raws {
		row, err := e.EnrichRow(raw)
		if err != nil {
			return nil, 0, err
		}
		if row == nil {
			dropped++
			continue
		}
		enriched = append(enriched, *row)
	}

	return enriched, dropped, nil
}
