package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TripCarbon/trip-carbon-backend/config"
	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// Hand-rolled fakes: the source store drives a callback and the enriched
// store aggregates counts across concurrent workers, neither of which fits
// canned-return mocks.

type fakeSchemaStore struct {
	mu        sync.Mutex
	validated []string
	failFor   string
	err       error
}

func (f *fakeSchemaStore) ValidateVariant(ctx context.Context, variant types.VariantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validated = append(f.validated, variant.CabTypeTag)
	if f.failFor == variant.CabTypeTag {
		return f.err
	}
	return nil
}

type fakeSourceStore struct {
	batches map[string][][]types.RawTrip
}

func (f *fakeSourceStore) StreamRawTrips(ctx context.Context, variant types.VariantConfig, batchSize int, fn func(batch []types.RawTrip) error) error {
	for _, batch := range f.batches[variant.SourceTable] {
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

type fakeEmissionsStore struct {
	lookup types.EmissionsLookup
	err    error
}

func (f *fakeEmissionsStore) GetLookup(ctx context.Context) (types.EmissionsLookup, error) {
	return f.lookup, f.err
}

type fakeEnrichedStore struct {
	mu        sync.Mutex
	truncated []string
	written   map[string]int64
	writeErr  error
}

func newFakeEnrichedStore() *fakeEnrichedStore {
	return &fakeEnrichedStore{written: make(map[string]int64)}
}

func (f *fakeEnrichedStore) Truncate(ctx context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncated = append(f.truncated, table)
	return nil
}

func (f *fakeEnrichedStore) WriteBatch(ctx context.Context, table string, trips []types.EnrichedTrip) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written[table] += int64(len(trips))
	return int64(len(trips)), nil
}

func (f *fakeEnrichedStore) CountRows(ctx context.Context, table string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written[table], nil
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeInvalidator) InvalidateAnalysisCache(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func strPtr(s string) *string {
	return &s
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

// validBatch builds n well-formed raw rows numbered from start.
func validBatch(start int64, n int) []types.RawTrip {
	batch := make([]types.RawTrip, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, types.RawTrip{
			RowNumber:      start + int64(i),
			Pickup:         strPtr("2023-01-01 08:00:00"),
			Dropoff:        strPtr("2023-01-01 08:30:00"),
			PassengerCount: strPtr("1"),
			TripDistance:   strPtr("2.5"),
		})
	}
	return batch
}

func newTestPipeline(schema *fakeSchemaStore, source *fakeSourceStore, emissions *fakeEmissionsStore, enriched *fakeEnrichedStore, variants ...types.VariantConfig) *PipelineService {
	return NewPipelineService(schema, source, emissions, enriched, variants, config.ETLConfig{
		BatchSize:              100,
		MaxWorkers:             2,
		QueueSize:              4,
		ShutdownTimeoutSeconds: 5,
	})
}

func TestPipelineService_Run(t *testing.T) {
	schema := &fakeSchemaStore{}
	source := &fakeSourceStore{batches: map[string][][]types.RawTrip{
		"raw_yellow_trips": {validBatch(1, 3), validBatch(4, 2)},
		"raw_green_trips":  {validBatch(1, 4)},
	}}
	emissions := &fakeEmissionsStore{lookup: testLookup()}
	enriched := newFakeEnrichedStore()
	invalidator := &fakeInvalidator{}

	pipeline := newTestPipeline(schema, source, emissions, enriched, yellowVariant(), greenVariant())
	pipeline.SetCacheInvalidator(invalidator)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, summary.Segments, 2)
	assert.Equal(t, "yellow", summary.Segments[0].CabType)
	assert.Equal(t, "green", summary.Segments[1].CabType)
	assert.Equal(t, int64(5), summary.Segments[0].RowsRead)
	assert.Equal(t, int64(5), summary.Segments[0].RowsWritten)
	assert.Equal(t, int64(4), summary.Segments[1].RowsRead)

	assert.Equal(t, int64(9), summary.TotalRowsRead())
	assert.Equal(t, int64(9), summary.TotalRowsWritten())
	assert.Zero(t, summary.TotalRowsDropped())

	// Every output table was truncated exactly once and fully reloaded.
	assert.Equal(t, []string{"yellow_transform", "green_transform"}, enriched.truncated)
	assert.Equal(t, int64(5), enriched.written["yellow_transform"])
	assert.Equal(t, int64(4), enriched.written["green_transform"])

	assert.Equal(t, 1, invalidator.calls)
}

func TestPipelineService_Run_ValidatesBeforeTouchingOutputs(t *testing.T) {
	schema := &fakeSchemaStore{
		failFor: "green",
		err:     apperrors.NewConfigurationError("source table not found", "table \"raw_green_trips\" does not exist"),
	}
	source := &fakeSourceStore{batches: map[string][][]types.RawTrip{
		"raw_yellow_trips": {validBatch(1, 3)},
	}}
	emissions := &fakeEmissionsStore{lookup: testLookup()}
	enriched := newFakeEnrichedStore()

	pipeline := newTestPipeline(schema, source, emissions, enriched, yellowVariant(), greenVariant())

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ConfigurationError, appErr.Type)

	// A bad variant anywhere in the file means no table gets truncated.
	assert.Empty(t, enriched.truncated)
	assert.Equal(t, []string{"yellow", "green"}, schema.validated)
}

func TestPipelineService_Run_MalformedRowAbortsRun(t *testing.T) {
	bad := validBatch(4, 2)
	bad[1].Pickup = strPtr("not-a-timestamp")

	schema := &fakeSchemaStore{}
	source := &fakeSourceStore{batches: map[string][][]types.RawTrip{
		"raw_yellow_trips": {validBatch(1, 3), bad},
		"raw_green_trips":  {validBatch(1, 4)},
	}}
	emissions := &fakeEmissionsStore{lookup: testLookup()}
	enriched := newFakeEnrichedStore()

	pipeline := newTestPipeline(schema, source, emissions, enriched, yellowVariant(), greenVariant())

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.DataFormatError, appErr.Type)
	assert.Contains(t, appErr.Detail, "raw_yellow_trips row 5")

	// The failing variant stops the whole run; green is never loaded.
	assert.Zero(t, enriched.written["green_transform"])
	assert.NotContains(t, enriched.truncated, "green_transform")
}

func TestPipelineService_Run_EmissionsLookupFailure(t *testing.T) {
	schema := &fakeSchemaStore{}
	source := &fakeSourceStore{}
	emissions := &fakeEmissionsStore{err: errors.New("connection refused")}
	enriched := newFakeEnrichedStore()

	pipeline := newTestPipeline(schema, source, emissions, enriched, yellowVariant())

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, enriched.truncated)
	assert.Empty(t, schema.validated)
}

func TestPipelineService_Run_UnmatchedKeyDropsAllRows(t *testing.T) {
	rideshare := yellowVariant()
	rideshare.CabTypeTag = "rideshare"
	rideshare.EmissionsKey = "rideshare_key"

	schema := &fakeSchemaStore{}
	source := &fakeSourceStore{batches: map[string][][]types.RawTrip{
		"raw_yellow_trips": {validBatch(1, 3), validBatch(4, 3)},
	}}
	emissions := &fakeEmissionsStore{lookup: testLookup()}
	enriched := newFakeEnrichedStore()

	pipeline := newTestPipeline(schema, source, emissions, enriched, rideshare)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err, "a key with no factor filters rows, it does not fail the run")

	require.Len(t, summary.Segments, 1)
	assert.Equal(t, int64(6), summary.Segments[0].RowsRead)
	assert.Equal(t, int64(6), summary.Segments[0].RowsDropped)
	assert.Zero(t, summary.Segments[0].RowsWritten)
	assert.Zero(t, enriched.written["yellow_transform"])
}

func TestPipelineService_Run_InvalidatorFailureDoesNotFailRun(t *testing.T) {
	schema := &fakeSchemaStore{}
	source := &fakeSourceStore{batches: map[string][][]types.RawTrip{
		"raw_yellow_trips": {validBatch(1, 2)},
	}}
	emissions := &fakeEmissionsStore{lookup: testLookup()}
	enriched := newFakeEnrichedStore()
	invalidator := &fakeInvalidator{err: errors.New("redis down")}

	pipeline := newTestPipeline(schema, source, emissions, enriched, yellowVariant())
	pipeline.SetCacheInvalidator(invalidator)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalRowsWritten())
	assert.Equal(t, 1, invalidator.calls)
}

func TestPipelineService_Run_WriteFailureAbortsRun(t *testing.T) {
	schema := &fakeSchemaStore{}
	source := &fakeSourceStore{batches: map[string][][]types.RawTrip{
		"raw_yellow_trips": {validBatch(1, 2)},
	}}
	emissions := &fakeEmissionsStore{lookup: testLookup()}
	enriched := newFakeEnrichedStore()
	enriched.writeErr = errors.New("copy failed")

	pipeline := newTestPipeline(schema, source, emissions, enriched, yellowVariant())

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy failed")
	assert.Contains(t, err.Error(), "variant yellow")
}
