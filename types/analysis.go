package types

import (
	"strconv"
	"time"
)

// BucketKind names a calendar grouping column on the enriched tables.
type BucketKind string

const (
	BucketHourOfDay   BucketKind = "hour_of_day"
	BucketDayOfWeek   BucketKind = "day_of_week"
	BucketWeekOfYear  BucketKind = "week_of_year"
	BucketMonthOfYear BucketKind = "month_of_year"
)

// AllBucketKinds lists the supported grouping columns in report order.
func AllBucketKinds() []BucketKind {
	return []BucketKind{BucketHourOfDay, BucketDayOfWeek, BucketWeekOfYear, BucketMonthOfYear}
}

// IsValid reports whether the kind is one of the supported grouping columns.
// Callers must check this before interpolating Column() into SQL.
func (b BucketKind) IsValid() bool {
	switch b {
	case BucketHourOfDay, BucketDayOfWeek, BucketWeekOfYear, BucketMonthOfYear:
		return true
	default:
		return false
	}
}

// Column returns the enriched-table column this kind groups by.
func (b BucketKind) Column() string {
	return string(b)
}

func (b BucketKind) String() string {
	return string(b)
}

var dayNames = []string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// BucketLabel renders a human-readable label for a bucket value. Day of week
// uses the 0=Sunday convention carried by the enriched tables; months are
// 1-12. Other kinds use the numeric bucket value as-is.
func (b BucketKind) BucketLabel(bucket int) string {
	switch b {
	case BucketDayOfWeek:
		if bucket >= 0 && bucket < len(dayNames) {
			return dayNames[bucket]
		}
	case BucketMonthOfYear:
		if bucket >= 1 && bucket <= len(monthNames) {
			return monthNames[bucket-1]
		}
	case BucketHourOfDay:
		return "hour " + strconv.Itoa(bucket)
	case BucketWeekOfYear:
		return "week " + strconv.Itoa(bucket)
	}
	return strconv.Itoa(bucket)
}

// LargestTrip identifies the single highest-CO2 trip for a cab type.
type LargestTrip struct {
	CabType        string    `json:"cab_type"`
	PickupDatetime time.Time `json:"pickup_datetime"`
	TripDistance   *float64  `json:"trip_distance"`
	TripCO2Kgs     float64   `json:"trip_co2_kgs"`
}

// BucketStat is the averaged CO2 for one bucket of a calendar grouping.
type BucketStat struct {
	Bucket    int     `json:"bucket"`
	Label     string  `json:"label"`
	AvgCO2Kgs float64 `json:"avg_co2_kgs"`
	TripCount int64   `json:"trip_count"`
}

// BucketExtremes pairs the heaviest and lightest average-CO2 buckets of one
// calendar grouping for one cab type.
type BucketExtremes struct {
	CabType  string     `json:"cab_type"`
	Kind     BucketKind `json:"kind"`
	Heaviest BucketStat `json:"heaviest"`
	Lightest BucketStat `json:"lightest"`
}

// MonthlyTotal is one month's summed CO2. Months with no trips carry 0.
type MonthlyTotal struct {
	Month       int     `json:"month"`
	Label       string  `json:"label"`
	TotalCO2Kgs float64 `json:"total_co2_kgs"`
}

// MonthlySeries is a cab type's full January-December totals series. It
// always has twelve entries.
type MonthlySeries struct {
	CabType string         `json:"cab_type"`
	Totals  []MonthlyTotal `json:"totals"`
}

// AnalysisSummary bundles every analysis section for the API and reports.
type AnalysisSummary struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	LargestTrips   []LargestTrip    `json:"largest_trips"`
	BucketExtremes []BucketExtremes `json:"bucket_extremes"`
	MonthlyTotals  []MonthlySeries  `json:"monthly_totals"`
}
