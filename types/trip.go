package types

import "time"

// RawTrip is one record from a raw trip landing table. Landing tables store
// every column as text, exactly as ingested, so all fields here are unparsed;
// nil means SQL NULL. RowNumber is the record's position in the source scan
// and is only used to point error messages at the offending row.
type RawTrip struct {
	RowNumber      int64
	Pickup         *string
	Dropoff        *string
	PassengerCount *string
	TripDistance   *string
}

// EnrichedTrip is one output row of the enrichment transform. Derived fields
// that can be null (per the derivation rules) are pointers.
type EnrichedTrip struct {
	CabType         string    `json:"cab_type"`
	PickupDatetime  time.Time `json:"pickup_datetime"`
	DropoffDatetime time.Time `json:"dropoff_datetime"`
	PassengerCount  *int64    `json:"passenger_count"`
	TripDistance    *float64  `json:"trip_distance"`
	TripCO2Kgs      *float64  `json:"trip_co2_kgs"`
	AvgMPH          *float64  `json:"avg_mph"`
	HourOfDay       int       `json:"hour_of_day"`
	DayOfWeek       int       `json:"day_of_week"`
	WeekOfYear      int       `json:"week_of_year"`
	MonthOfYear     int       `json:"month_of_year"`
}

// EmissionsFactor is one row of the vehicle emissions reference table.
type EmissionsFactor struct {
	VehicleType     string  `json:"vehicle_type"`
	CO2GramsPerMile float64 `json:"co2_grams_per_mile"`
}

// EmissionsLookup is the emissions reference loaded into memory, keyed by
// vehicle type. It is read-only once built and safe to share across workers.
type EmissionsLookup map[string]float64

// Factor returns the grams-per-mile factor for a vehicle type. The second
// return reports whether the key exists; a missing key means trips for that
// cab type are filtered out by join semantics rather than erroring.
func (l EmissionsLookup) Factor(vehicleType string) (float64, bool) {
	gpm, ok := l[vehicleType]
	return gpm, ok
}
