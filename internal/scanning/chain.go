package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Chain reads a label with a primary scanner and falls back to a second
// one when the primary fails or leaves fields unread.
type Chain struct {
	primary      Scanner
	fallback     Scanner
	placeholders map[string]bool
}

// NewChain creates a new Chain scanner. A primary guess matching one of
// placeholders (case-insensitive) counts as unread.
func NewChain(primary, fallback Scanner, placeholders ...string) *Chain {
	c := &Chain{
		primary:      primary,
		fallback:     fallback,
		placeholders: make(map[string]bool, len(placeholders)),
	}
	for _, p := range placeholders {
		c.placeholders[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return c
}

// ScanLabel analyzes a parcel label with the primary scanner first
func (c *Chain) ScanLabel(ctx context.Context, imageData []byte, contentType string) (*RawExtraction, error) {
	raw, err := c.primary.ScanLabel(ctx, imageData, contentType)
	if err == nil && raw == nil {
		err = errors.New("no result")
	}
	if err != nil {
		slog.Warn("Primary scanner failed, using fallback", "error", err)
		fb, fbErr := c.fallback.ScanLabel(ctx, imageData, contentType)
		if fbErr == nil && fb == nil {
			fbErr = errors.New("no result")
		}
		if fbErr != nil {
			return nil, errors.Join(
				fmt.Errorf("primary scanner: %w", err),
				fmt.Errorf("fallback scanner: %w", fbErr),
			)
		}
		return fb, nil
	}

	missing := c.unread(raw)
	if len(missing) == 0 {
		return raw, nil
	}

	fb, fbErr := c.fallback.ScanLabel(ctx, imageData, contentType)
	if fbErr != nil {
		// The primary reading stands; validation reports what is still missing
		slog.Warn("Fallback scanner failed while filling fields", "missing", missing, "error", fbErr)
		return raw, nil
	}

	for _, f := range missing {
		if g, ok := fb.Guess(f); ok && c.readable(g.Text) {
			slog.Info("Filled field from fallback scanner", "field", f)
			raw.Set(f, g.Text, g.Confidence)
		}
	}
	return raw, nil
}

// unread returns the fields that are missing or hold a placeholder
func (c *Chain) unread(raw *RawExtraction) []Field {
	var fields []Field
	for _, f := range Fields {
		if g, ok := raw.Guess(f); !ok || !c.readable(g.Text) {
			fields = append(fields, f)
		}
	}
	return fields
}

func (c *Chain) readable(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	return text != "" && !c.placeholders[text]
}
