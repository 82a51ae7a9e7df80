package parcel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zombor/parcel-desk/internal/scanning"
)

// Extractor reads a label image into a validated Entry
type Extractor struct {
	scanner    scanning.Scanner
	normalizer *Normalizer
}

// NewExtractor creates a new Extractor
func NewExtractor(scanner scanning.Scanner, vocab Vocabulary) *Extractor {
	return &Extractor{
		scanner:    scanner,
		normalizer: NewNormalizer(vocab),
	}
}

// Extract sends the image to the scanner and normalizes the result.
// Scanner failures are ErrExtractionService; readable labels with missing
// fields are ErrExtractionIncomplete. Image data no scanner can decode is
// ErrCapture, since only a new photo helps.
func (e *Extractor) Extract(ctx context.Context, img *LabelImage) (*Entry, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, NewExtractionServiceError(errors.New("no image to scan"))
	}

	raw, err := e.scanner.ScanLabel(ctx, img.Data, img.ContentType)
	if err != nil {
		slog.Error("Failed to scan label",
			"content_type", img.ContentType,
			"file_size", len(img.Data),
			"error", err,
		)
		if errors.Is(err, scanning.ErrUnreadableImage) {
			return nil, NewCaptureError(err)
		}
		return nil, NewExtractionServiceError(err)
	}
	if raw == nil {
		return nil, NewExtractionServiceError(errors.New("scanner returned no extraction"))
	}

	entry, err := e.normalizer.Normalize(raw)
	if err != nil {
		slog.Warn("Label is missing fields", "missing", MissingFields(err))
		return nil, err
	}
	entry.LoggedAt = img.CapturedAt

	return entry, nil
}
