package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/types"
)

// variantsSchemaVersion is the only schema this binary understands. Bump it
// together with any incompatible change to the variants file layout.
const variantsSchemaVersion = "1"

// VariantsFile is the on-disk declaration of the transform variants.
type VariantsFile struct {
	SchemaVersion string                `yaml:"schema_version"`
	Variants      []types.VariantConfig `yaml:"variants" validate:"required,min=1,dive"`
}

// Table and column names from the variants file are interpolated into SQL as
// identifiers, so they are restricted to a conservative identifier shape.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var validate = validator.New()

// LoadVariants reads and validates the variants file at path. Every failure
// is a ConfigurationError: the run must stop before any row is processed.
func LoadVariants(path string) ([]types.VariantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("variants file unreadable", err.Error())
	}
	return ParseVariants(data)
}

// ParseVariants validates raw variants YAML. Split from LoadVariants so
// tests can exercise validation without touching the filesystem.
func ParseVariants(data []byte) ([]types.VariantConfig, error) {
	var file VariantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewConfigurationError("variants file is not valid YAML", err.Error())
	}

	if file.SchemaVersion != variantsSchemaVersion {
		return nil, apperrors.NewConfigurationError(
			"unsupported variants schema version",
			fmt.Sprintf("got %q, want %q", file.SchemaVersion, variantsSchemaVersion),
		)
	}

	if err := validate.Struct(&file); err != nil {
		return nil, apperrors.NewConfigurationError("variants file failed validation", err.Error())
	}

	seenTags := make(map[string]bool)
	seenOutputs := make(map[string]bool)

	for i, variant := range file.Variants {
		identifiers := [][2]string{
			{"source_table", variant.SourceTable},
			{"pickup_col", variant.PickupCol},
			{"dropoff_col", variant.DropoffCol},
			{"output_table", variant.OutputTable},
		}
		for _, ident := range identifiers {
			if !identifierPattern.MatchString(ident[1]) {
				return nil, apperrors.NewConfigurationError(
					"invalid identifier in variants file",
					fmt.Sprintf("variant %d: %s %q must match %s", i, ident[0], ident[1], identifierPattern.String()),
				)
			}
		}

		if seenTags[variant.CabTypeTag] {
			return nil, apperrors.NewConfigurationError(
				"duplicate cab_type_tag in variants file",
				fmt.Sprintf("cab_type_tag %q appears more than once", variant.CabTypeTag),
			)
		}
		seenTags[variant.CabTypeTag] = true

		if seenOutputs[variant.OutputTable] {
			return nil, apperrors.NewConfigurationError(
				"duplicate output_table in variants file",
				fmt.Sprintf("output_table %q appears more than once", variant.OutputTable),
			)
		}
		seenOutputs[variant.OutputTable] = true
	}

	return file.Variants, nil
}
