package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// fieldAliases maps the keys models tend to use onto label fields
var fieldAliases = map[string]Field{
	"supplier":      FieldSupplier,
	"carrier":       FieldSupplier,
	"courier":       FieldSupplier,
	"resident_name": FieldResidentName,
	"name":          FieldResidentName,
	"recipient":     FieldResidentName,
	"resident":      FieldResidentName,
	"unit":          FieldUnit,
	"apartment":     FieldUnit,
	"suite":         FieldUnit,
	"parcel_type":   FieldParcelType,
	"package_type":  FieldParcelType,
	"type":          FieldParcelType,
}

// stripCodeFence removes markdown code fences around a model response
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseLabelJSON parses the JSON object a model returned for a label
func parseLabelJSON(text string) (*RawExtraction, error) {
	source := text
	text = stripCodeFence(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	raw := NewRawExtraction(source)
	exact := make(map[Field]bool)
	for key, value := range obj {
		key = strings.ToLower(strings.TrimSpace(key))
		field, ok := fieldAliases[key]
		if !ok {
			continue
		}
		// The canonical key wins over an alias for the same field
		isExact := key == string(field)
		if exact[field] && !isExact {
			continue
		}

		guess, present, err := decodeGuess(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if !present {
			continue
		}
		raw.Fields[field] = guess
		if isExact {
			exact[field] = true
		}
	}

	return raw, nil
}

// decodeGuess accepts a string, a number, null, or {"text", "confidence"}
func decodeGuess(value json.RawMessage) (Guess, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Guess{}, false, fmt.Errorf("decoding value: %w", err)
	}

	switch t := v.(type) {
	case nil:
		return Guess{}, false, nil
	case string:
		return Guess{Text: t}, true, nil
	case json.Number:
		return Guess{Text: t.String()}, true, nil
	case map[string]any:
		var text string
		switch tv := t["text"].(type) {
		case nil:
			return Guess{}, false, nil
		case string:
			text = tv
		case json.Number:
			text = tv.String()
		default:
			return Guess{}, false, fmt.Errorf("unsupported text value %v", tv)
		}

		guess := Guess{Text: text}
		if c, ok := t["confidence"]; ok && c != nil {
			n, ok := c.(json.Number)
			if !ok {
				return Guess{}, false, fmt.Errorf("confidence must be a number")
			}
			conf, err := n.Float64()
			if err != nil {
				return Guess{}, false, fmt.Errorf("parsing confidence: %w", err)
			}
			// Some models answer in percent
			if conf > 1 && conf <= 100 {
				conf = conf / 100
			}
			if conf < 0 || conf > 1 {
				return Guess{}, false, fmt.Errorf("confidence %v out of range", conf)
			}
			guess.Confidence = &conf
		}
		return guess, true, nil
	default:
		return Guess{}, false, fmt.Errorf("unsupported value %s", string(value))
	}
}
