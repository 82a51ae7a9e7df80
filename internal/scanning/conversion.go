package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ErrUnreadableImage marks image data no scanner can decode. Scanning the
// same bytes again cannot succeed.
var ErrUnreadableImage = errors.New("unreadable image")

// DefaultMaxDimension bounds the longest edge of an image sent to a model.
// Phone photos are several times larger than a label needs.
const DefaultMaxDimension = 2048

// labelScanPrompt is the shared prompt used by all LLM providers for reading parcel labels
const labelScanPrompt = `You are reading the shipping label on a parcel delivered to a residential building's concierge desk. Carefully read all text in the image and extract the following information:

1. **Supplier**: The courier or company that delivered the parcel. Examples: "Amazon", "UPS", "FedEx", "DHL", "Canada Post", "Purolator", "Intelcom".

2. **Resident Name**: The recipient's full name as printed on the label (the "Ship To" / "Deliver To" person, not the sender).

3. **Unit**: The recipient's apartment, suite or unit number. Return only the unit identifier (e.g. "1911", "4B"), without words like "Unit" or "Apt".

4. **Parcel Type**: What kind of item this is, e.g. "package", "letter", "food delivery", or a short description if it is something else.

Return ONLY valid JSON in this exact format:
{
  "supplier": {"text": "FedEx", "confidence": 0.95},
  "resident_name": {"text": "Jane Smith", "confidence": 0.9},
  "unit": {"text": "4B", "confidence": 0.8},
  "parcel_type": {"text": "package", "confidence": 0.7}
}

Important:
- confidence is a number between 0 and 1 describing how sure you are of the reading
- If you cannot find a field, use null for that field
- Do not guess a resident name or unit that is not printed on the label
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfToImage renders the first page of a PDF label
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %w", ErrUnreadableImage, err)
	}
	defer doc.Close()

	// Shipping labels are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering PDF page: %w", ErrUnreadableImage, err)
	}
	return img, nil
}

// decodeImage decodes any supported label format
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfToImage(imageData)
	}

	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %w", ErrUnreadableImage, err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("%w: unsupported image format. Supported formats: JPEG, PNG, GIF, WebP, HEIC, HEIF, PDF. Error: %w", ErrUnreadableImage, err)
		}
		return nil, fmt.Errorf("%w: decoding image: %w", ErrUnreadableImage, err)
	}
	return img, nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// ftyp box at offset 4 followed by a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// downscale shrinks img so its longest edge is at most maxDim
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// fitsAsPNG reports whether data is already a PNG no larger than maxDim
func fitsAsPNG(data []byte, mimeType string, maxDim int) bool {
	if mimeType != "image/png" || isHEICFormat(data) {
		return false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "png" {
		return false
	}
	return maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim)
}

// prepareImageData normalizes the MIME type and converts the image to a
// PNG no larger than maxDim on its longest edge.
// Returns the final image data and whether conversion occurred.
func prepareImageData(imageData []byte, contentType string, maxDim int) ([]byte, bool, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg" // default
	}

	if fitsAsPNG(imageData, mimeType, maxDim) {
		return imageData, false, nil
	}

	img, err := decodeImage(imageData, mimeType)
	if err != nil {
		return nil, false, err
	}
	img = downscale(img, maxDim)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}
