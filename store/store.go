// Package store defines the persistence interfaces the pipeline, analysis
// and reporting layers depend on. PostgreSQL implementations live in
// store/postgres.
package store

import (
	"context"

	"github.com/TripCarbon/trip-carbon-backend/types"
)

// SourceTripStore reads raw trip rows out of a variant's landing table.
type SourceTripStore interface {
	// StreamRawTrips selects every row of the variant's source table and
	// hands them to fn in batches of at most batchSize. Row numbers are
	// assigned in scan order starting at 1. Each batch has its own backing
	// array, so fn may retain it past the call. A non-nil error from fn
	// stops the stream and is returned unchanged.
	StreamRawTrips(ctx context.Context, variant types.VariantConfig, batchSize int, fn func(batch []types.RawTrip) error) error
}

// EmissionsStore loads the vehicle emissions reference table.
type EmissionsStore interface {
	// GetLookup returns every vehicle type's grams-per-mile factor.
	GetLookup(ctx context.Context) (types.EmissionsLookup, error)
}

// EnrichedTripStore writes enriched trips into a variant's output table.
type EnrichedTripStore interface {
	// Truncate empties the output table so a run always replaces the
	// previous load instead of appending to it.
	Truncate(ctx context.Context, table string) error

	// WriteBatch bulk-inserts the given trips and returns the number of
	// rows written.
	WriteBatch(ctx context.Context, table string, trips []types.EnrichedTrip) (int64, error)

	// CountRows reports the number of rows currently in the table.
	CountRows(ctx context.Context, table string) (int64, error)
}

// AnalysisStore runs aggregate queries over a variant's output table.
// Queries that need at least one row return nil without error when the
// table is empty; callers decide whether that is a not-found condition.
type AnalysisStore interface {
	// LargestTrip returns the single highest-CO2 trip, or nil when the
	// table has no rows with a computed CO2 value.
	LargestTrip(ctx context.Context, variant types.VariantConfig) (*types.LargestTrip, error)

	// BucketExtremes returns the heaviest and lightest average-CO2 buckets
	// for one calendar grouping, or nil when the table has no rows with a
	// computed CO2 value.
	BucketExtremes(ctx context.Context, variant types.VariantConfig, kind types.BucketKind) (*types.BucketExtremes, error)

	// MonthlyTotals returns the January-December CO2 totals series. The
	// series always has twelve entries; months without trips carry 0.
	MonthlyTotals(ctx context.Context, variant types.VariantConfig) (*types.MonthlySeries, error)
}

// SchemaStore validates that the tables a variant references exist with the
// columns the pipeline needs, before any data is read.
type SchemaStore interface {
	// ValidateVariant checks the variant's source and output tables and
	// returns a configuration error naming the first missing table or
	// column.
	ValidateVariant(ctx context.Context, variant types.VariantConfig) error
}
