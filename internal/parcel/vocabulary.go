package parcel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ParcelTypeOther is the parcel type used when no vocabulary entry matches
const ParcelTypeOther = "other"

// ParcelTypeRule maps label wording onto a parcel type
type ParcelTypeRule struct {
	Name     string   `toml:"name" yaml:"name"`
	Keywords []string `toml:"keywords" yaml:"keywords"`
}

// SupplierRule maps courier spellings onto one display name
type SupplierRule struct {
	Name    string   `toml:"name" yaml:"name"`
	Aliases []string `toml:"aliases" yaml:"aliases"`
}

// Vocabulary holds the configurable word lists used by normalization
type Vocabulary struct {
	// Placeholders are readings that mean "not found"
	Placeholders []string
	// ParcelTypes are matched in order; the first keyword hit wins
	ParcelTypes []ParcelTypeRule
	// FallbackParcelType is used when no rule matches
	FallbackParcelType string
	// Suppliers canonicalize known couriers; others are kept as read
	Suppliers []SupplierRule
	// MinConfidence rejects guesses the scanner reports below it. Zero disables.
	MinConfidence float64
}

// DefaultVocabulary returns the built-in word lists
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Placeholders: []string{
			"n/a", "unknown", "none", "null", "nil",
			"not found", "not available", "unreadable", "illegible", "?", "-",
		},
		ParcelTypes: []ParcelTypeRule{
			{Name: "package", Keywords: []string{"package", "parcel", "pkg"}},
			{Name: "letter", Keywords: []string{"letter", "envelope", "document", "mail"}},
			{Name: "food delivery", Keywords: []string{"food", "meal", "grocery", "groceries", "doordash", "uber eats"}},
			{Name: ParcelTypeOther},
		},
		FallbackParcelType: ParcelTypeOther,
		Suppliers: []SupplierRule{
			{Name: "Amazon", Aliases: []string{"amazon.com", "amzn", "amazon logistics"}},
			{Name: "UPS", Aliases: []string{"united parcel service"}},
			{Name: "FedEx", Aliases: []string{"fed ex", "federal express"}},
			{Name: "UNI", Aliases: []string{"uniuni"}},
			{Name: "Dragonfly"},
			{Name: "Emile"},
			{Name: "FleetOptics", Aliases: []string{"fleet optics"}},
			{Name: "DHL"},
			{Name: "Purolator"},
			{Name: "Intelcom"},
			{Name: "Canpar"},
			{Name: "Canada Post", Aliases: []string{"postes canada"}},
		},
	}
}

// vocabularyFile is the on-disk shape; absent lists keep the defaults
type vocabularyFile struct {
	Placeholders       []string         `toml:"placeholders" yaml:"placeholders"`
	ParcelTypes        []ParcelTypeRule `toml:"parcel_types" yaml:"parcel_types"`
	FallbackParcelType string           `toml:"fallback_parcel_type" yaml:"fallback_parcel_type"`
	Suppliers          []SupplierRule   `toml:"suppliers" yaml:"suppliers"`
	MinConfidence      *float64         `toml:"min_confidence" yaml:"min_confidence"`
}

// LoadVocabulary reads a TOML or YAML vocabulary file over the defaults
func LoadVocabulary(path string) (Vocabulary, error) {
	v := DefaultVocabulary()
	if path == "" {
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("reading vocabulary: %w", err)
	}

	var file vocabularyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &file)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		return Vocabulary{}, fmt.Errorf("unsupported vocabulary format %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
	if err != nil {
		return Vocabulary{}, fmt.Errorf("parsing vocabulary %s: %w", path, err)
	}

	if len(file.Placeholders) > 0 {
		v.Placeholders = file.Placeholders
	}
	if len(file.ParcelTypes) > 0 {
		v.ParcelTypes = file.ParcelTypes
	}
	if file.FallbackParcelType != "" {
		v.FallbackParcelType = file.FallbackParcelType
	}
	if len(file.Suppliers) > 0 {
		v.Suppliers = file.Suppliers
	}
	if file.MinConfidence != nil {
		v.MinConfidence = *file.MinConfidence
	}

	if err := v.Validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return v, nil
}

// Validate checks the vocabulary is usable
func (v Vocabulary) Validate() error {
	if strings.TrimSpace(v.FallbackParcelType) == "" {
		return errors.New("fallback parcel type is required")
	}
	for i, rule := range v.ParcelTypes {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("parcel type %d has no name", i+1)
		}
	}
	for i, rule := range v.Suppliers {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("supplier %d has no name", i+1)
		}
	}
	if v.MinConfidence < 0 || v.MinConfidence > 1 {
		return fmt.Errorf("min confidence %v must be between 0 and 1", v.MinConfidence)
	}
	return nil
}

// SupplierNames returns the display names of the known suppliers
func (v Vocabulary) SupplierNames() []string {
	names := make([]string, len(v.Suppliers))
	for i, s := range v.Suppliers {
		names[i] = s.Name
	}
	return names
}
