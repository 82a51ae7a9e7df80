package scanning

import (
	"context"
	"strings"
)

// Field names one of the label fields a scanner is asked to read
type Field string

const (
	FieldSupplier     Field = "supplier"
	FieldResidentName Field = "resident_name"
	FieldUnit         Field = "unit"
	FieldParcelType   Field = "parcel_type"
)

// Fields lists every label field in canonical order
var Fields = []Field{FieldSupplier, FieldResidentName, FieldUnit, FieldParcelType}

// Guess is a scanner's best reading of a single field
type Guess struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"` // 0..1 when the scanner reports one
}

// RawExtraction contains the unvalidated field guesses read from a label.
// A field missing from Fields was not found on the label.
type RawExtraction struct {
	Fields map[Field]Guess `json:"fields"`
	Source string          `json:"source"` // scanner output the guesses came from
}

// NewRawExtraction creates an empty RawExtraction
func NewRawExtraction(source string) *RawExtraction {
	return &RawExtraction{
		Fields: make(map[Field]Guess),
		Source: source,
	}
}

// Guess returns the guess for a field, if any
func (r *RawExtraction) Guess(f Field) (Guess, bool) {
	if r == nil || r.Fields == nil {
		return Guess{}, false
	}
	g, ok := r.Fields[f]
	return g, ok
}

// Set records a guess for a field
func (r *RawExtraction) Set(f Field, text string, confidence *float64) {
	if r.Fields == nil {
		r.Fields = make(map[Field]Guess)
	}
	r.Fields[f] = Guess{Text: text, Confidence: confidence}
}

// Missing returns the fields with no guess or only whitespace, in canonical order
func (r *RawExtraction) Missing() []Field {
	var missing []Field
	for _, f := range Fields {
		g, ok := r.Guess(f)
		if !ok || strings.TrimSpace(g.Text) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Scanner defines the interface for reading parcel labels
type Scanner interface {
	// ScanLabel analyzes a label image and returns the raw field guesses
	ScanLabel(ctx context.Context, imageData []byte, contentType string) (*RawExtraction, error)
}
