package scanning

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/otiai10/gosseract/v2"
)

// DefaultSuppliers are the couriers the offline scanner looks for, in priority order
var DefaultSuppliers = []string{
	"Amazon", "UPS", "FedEx", "UNI", "Dragonfly", "Emile", "FleetOptics",
	"DHL", "Purolator", "Intelcom", "Canpar", "Canada Post",
}

var (
	shipToPattern   = regexp.MustCompile(`(?i)^\s*(?:ship\s*to|deliver\s*to|to)\b\s*:?\s*(.*)$`)
	namePattern     = regexp.MustCompile(`^[\p{L}][\p{L}'.\-]*(?:\s+[\p{L}][\p{L}'.\-]*)+$`)
	unitPattern     = regexp.MustCompile(`(?i)\b(?:unit|suite|apt|ste)\.?\s*[#-]?\s*([0-9]{1,5}[a-z]?)\b`)
	hashUnitPattern = regexp.MustCompile(`(?i)(?:^|\s)#\s*([0-9]{1,5}[a-z]?)\b`)
	parcelKeywords  = []struct {
		pattern *regexp.Regexp
		kind    string
	}{
		{regexp.MustCompile(`(?i)\b(?:envelope|letter|document|documents)\b`), "letter"},
		{regexp.MustCompile(`(?i)\b(?:doordash|uber\s*eats|skip\s*the\s*dishes|grubhub|food|meal)\b`), "food delivery"},
		{regexp.MustCompile(`(?i)\b(?:package|parcel|pak|pkg)\b`), "package"},
	}
)

// Tesseract implements the Scanner interface with local OCR and keyword
// heuristics. It needs no network and reads printed labels only. When the
// text names no parcel type, it guesses one from the parcel's colour and
// edges, so every reading carries a parcel type.
type Tesseract struct {
	languages     []string
	suppliers     []string
	maxDim        int
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a new Tesseract Scanner instance
func NewTesseract(languages []string, suppliers []string) *Tesseract {
	if len(suppliers) == 0 {
		suppliers = DefaultSuppliers
	}
	return &Tesseract{
		languages:     languages,
		suppliers:     suppliers,
		maxDim:        DefaultMaxDimension,
		clientFactory: gosseract.NewClient,
	}
}

// ScanLabel runs OCR over a label and guesses the fields from the text
func (t *Tesseract) ScanLabel(ctx context.Context, imageData []byte, contentType string) (*RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	finalImageData, _, err := prepareImageData(imageData, contentType, t.maxDim)
	if err != nil {
		return nil, err
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(finalImageData); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(t.languages) > 0 {
		if err := c.SetLanguage(t.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := guessFromText(text, t.suppliers)
	guessAppearance(raw, finalImageData)
	return raw, nil
}

// Close is a no-op; a client is created per scan
func (t *Tesseract) Close() error {
	return nil
}

// guessFromText reads label fields out of plain OCR text
func guessFromText(text string, suppliers []string) *RawExtraction {
	raw := NewRawExtraction(text)

	if s := findSupplier(text, suppliers); s != "" {
		raw.Set(FieldSupplier, s, nil)
	}
	if n := findName(text, suppliers); n != "" {
		raw.Set(FieldResidentName, n, nil)
	}
	if u := findUnit(text); u != "" {
		raw.Set(FieldUnit, u, nil)
	}
	for _, kw := range parcelKeywords {
		if kw.pattern.MatchString(text) {
			raw.Set(FieldParcelType, kw.kind, nil)
			break
		}
	}

	return raw
}

// findUnit prefers an explicit "Unit"/"Apt" marker over a bare "#"
func findUnit(text string) string {
	for _, p := range []*regexp.Regexp{unitPattern, hashUnitPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

// words splits text into upper-case alphanumeric tokens
func words(text string) []string {
	return strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWords reports whether needle appears in haystack as whole words
func containsWords(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func findSupplier(text string, suppliers []string) string {
	tokens := words(text)
	for _, s := range suppliers {
		if containsWords(tokens, words(s)) {
			return s
		}
	}
	return ""
}

// findName prefers the line after a "Ship To" marker, then any line that
// looks like a person's name.
func findName(text string, suppliers []string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := shipToPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if rest := strings.TrimSpace(m[1]); namePattern.MatchString(rest) {
			return rest
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if next == "" {
				continue
			}
			if namePattern.MatchString(next) {
				return next
			}
			break
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !namePattern.MatchString(line) {
			continue
		}
		if findSupplier(line, suppliers) != "" || shipToPattern.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}
