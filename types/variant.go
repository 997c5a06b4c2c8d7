package types

// VariantConfig parameterizes one instantiation of the enrichment transform.
// The yellow and green fleets share identical transform logic and differ only
// in these values, so the transform body exists exactly once and is bound to
// a variant at run time.
type VariantConfig struct {
	// CabTypeTag is stamped verbatim into every output row's cab_type column.
	CabTypeTag string `yaml:"cab_type_tag" json:"cab_type_tag" validate:"required"`
	// SourceTable is the raw landing table for this fleet.
	SourceTable string `yaml:"source_table" json:"source_table" validate:"required"`
	// PickupCol and DropoffCol name the fleet-specific timestamp columns
	// (tpep_* for yellow, lpep_* for green).
	PickupCol  string `yaml:"pickup_col" json:"pickup_col" validate:"required"`
	DropoffCol string `yaml:"dropoff_col" json:"dropoff_col" validate:"required"`
	// EmissionsKey selects the vehicle_type row in the emissions reference.
	EmissionsKey string `yaml:"emissions_key" json:"emissions_key" validate:"required"`
	// OutputTable receives the enriched rows for this variant.
	OutputTable string `yaml:"output_table" json:"output_table" validate:"required"`
}
