package parcel

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/zombor/parcel-desk/internal/scanning"
)

// artifactRunes are characters OCR and vision models emit for label
// borders, barcodes and smudges. They never belong in a field.
const artifactRunes = "|_~^*=<>{}[]\\\"`;¦§¶•·"

var unitPrefix = regexp.MustCompile(`(?i)^(?:(?:unit|apt|apartment|suite|ste)\b\.?|#)\s*[#:\-]?\s*`)

// fold collapses case for comparisons. A Caser is not safe for concurrent
// use, so one is made per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// isWordRune reports whether r can start or end a field value
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// CleanText applies the fixed cleanup rules to one field value. The rules
// converge: CleanText(CleanText(s)) == CleanText(s). Casing is preserved.
func CleanText(s string) string {
	// Invisible formatting characters split words without showing
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)

	s = norm.NFKC.String(s)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) || strings.ContainsRune(artifactRunes, r) {
			return ' '
		}
		return r
	}, s)

	s = collapseRepeatedPunct(s)
	s = strings.Join(strings.Fields(s), " ")
	return trimEdges(s)
}

// collapseRepeatedPunct turns runs like "..", "--" or ",," into one rune
func collapseRepeatedPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	for _, r := range s {
		if r == prev && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// trimEdges drops leading and trailing punctuation. A single trailing dot
// after a letter is kept so abbreviations like "Inc." survive.
func trimEdges(s string) string {
	keepDot := false
	t := strings.TrimRightFunc(s, func(r rune) bool {
		return !isWordRune(r) && r != '.'
	})
	if strings.HasSuffix(t, ".") {
		r, _ := utf8.DecodeLastRuneInString(strings.TrimSuffix(t, "."))
		keepDot = unicode.IsLetter(r)
	}

	s = strings.TrimFunc(s, func(r rune) bool { return !isWordRune(r) })
	if keepDot && s != "" {
		s += "."
	}
	return s
}

// cleanUnit additionally strips "Unit", "Apt", "Suite" and "#" prefixes
func cleanUnit(s string) string {
	s = CleanText(s)
	for {
		stripped := unitPrefix.ReplaceAllString(s, "")
		if stripped == s {
			return s
		}
		s = CleanText(stripped)
	}
}

// Normalizer turns raw field guesses into canonical entry fields
type Normalizer struct {
	vocab        Vocabulary
	placeholders map[string]bool
}

// NewNormalizer creates a new Normalizer for a vocabulary
func NewNormalizer(vocab Vocabulary) *Normalizer {
	placeholders := make(map[string]bool, len(vocab.Placeholders))
	for _, p := range vocab.Placeholders {
		placeholders[fold(CleanText(p))] = true
	}
	return &Normalizer{vocab: vocab, placeholders: placeholders}
}

// IsPlaceholder reports whether a cleaned value means "not found"
func (n *Normalizer) IsPlaceholder(value string) bool {
	return n.placeholders[fold(value)]
}

// Clean applies the cleanup rules for a field without validating it
func (n *Normalizer) Clean(field scanning.Field, text string) string {
	if field == scanning.FieldUnit {
		return cleanUnit(text)
	}
	return CleanText(text)
}

// Supplier canonicalizes a cleaned supplier against the known couriers.
// Unknown suppliers are returned unchanged.
func (n *Normalizer) Supplier(cleaned string) string {
	tokens := foldedWords(cleaned)
	for _, rule := range n.vocab.Suppliers {
		candidates := append([]string{rule.Name}, rule.Aliases...)
		for _, c := range candidates {
			if containsTokens(tokens, foldedWords(c)) {
				return rule.Name
			}
		}
	}
	return cleaned
}

// ParcelType matches a cleaned reading against the parcel type vocabulary,
// case-insensitively by substring. Unmatched readings fall back.
func (n *Normalizer) ParcelType(cleaned string) string {
	folded := fold(cleaned)
	for _, rule := range n.vocab.ParcelTypes {
		keywords := append([]string{rule.Name}, rule.Keywords...)
		for _, kw := range keywords {
			kw = fold(CleanText(kw))
			if kw != "" && strings.Contains(folded, kw) {
				return rule.Name
			}
		}
	}
	return n.vocab.FallbackParcelType
}

// Normalize validates the raw guesses and builds an entry. When any field
// is absent, empty, a placeholder, or below the confidence floor, it fails
// with ErrExtractionIncomplete naming exactly those fields.
func (n *Normalizer) Normalize(raw *scanning.RawExtraction) (*Entry, error) {
	values := make(map[scanning.Field]string, len(scanning.Fields))
	var missing []scanning.Field

	for _, field := range scanning.Fields {
		guess, ok := raw.Guess(field)
		if !ok || n.belowConfidence(guess) {
			missing = append(missing, field)
			continue
		}
		cleaned := n.Clean(field, guess.Text)
		if cleaned == "" || n.IsPlaceholder(cleaned) {
			missing = append(missing, field)
			continue
		}
		values[field] = cleaned
	}

	if len(missing) > 0 {
		return nil, NewExtractionIncomplete(missing)
	}

	rawType := values[scanning.FieldParcelType]
	return &Entry{
		Supplier:      n.Supplier(values[scanning.FieldSupplier]),
		ResidentName:  values[scanning.FieldResidentName],
		Unit:          values[scanning.FieldUnit],
		ParcelType:    n.ParcelType(rawType),
		ParcelTypeRaw: rawType,
	}, nil
}

func (n *Normalizer) belowConfidence(g scanning.Guess) bool {
	return n.vocab.MinConfidence > 0 && g.Confidence != nil && *g.Confidence < n.vocab.MinConfidence
}

// foldedWords splits text into case-folded alphanumeric tokens
func foldedWords(text string) []string {
	return strings.FieldsFunc(fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsTokens reports whether needle appears in haystack as whole words
func containsTokens(haystack, needle []string) bool {
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
