package transform

import (
	"errors"
	"strconv"
	"time"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
)

// Raw trip files carry timestamps either space-separated (the upstream CSV
// form) or RFC 3339 style with a T. Both are accepted; anything else is a
// data format failure.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

var (
	errMissingValue     = errors.New("required value is missing")
	errUnknownTimestamp = errors.New("unrecognized timestamp format")
)

// parseTimestamp parses a required timestamp column. The stored value is
// taken as-is, with no timezone attached or converted.
func parseTimestamp(field string, value *string, rowContext string) (time.Time, error) {
	if value == nil || *value == "" {
		return time.Time{}, apperrors.NewDataFormatError(field, "", rowContext, errMissingValue)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, *value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, apperrors.NewDataFormatError(field, *value, rowContext, errUnknownTimestamp)
}

// parseNullableFloat parses a nullable decimal column. NULL and empty string
// both map to nil; any other unparseable value is a data format failure.
func parseNullableFloat(field string, value *string, rowContext string) (*float64, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		return nil, apperrors.NewDataFormatError(field, *value, rowContext, err)
	}
	return &f, nil
}

// parseNullableInt parses a nullable integer column. Decimal notation such
// as "1.0" is rejected rather than rounded.
func parseNullableInt(field string, value *string, rowContext string) (*int64, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		return nil, apperrors.NewDataFormatError(field, *value, rowContext, err)
	}
	return &n, nil
}
