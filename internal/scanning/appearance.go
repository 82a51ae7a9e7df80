package scanning

import (
	"bytes"
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

const (
	// appearanceDim bounds the image the appearance guess looks at
	appearanceDim = 256
	// edgeThreshold is the grey level step counted as an edge
	edgeThreshold = 64
	// boxEdgeDensity is the share of edge pixels above which a parcel
	// reads as a rigid box
	boxEdgeDensity = 0.08
	// appearanceConfidence is reported with colour and texture guesses
	appearanceConfidence = 0.3
)

// guessAppearance sets the parcel type from how the parcel looks when the
// label text named none.
func guessAppearance(raw *RawExtraction, imageData []byte) {
	if _, ok := raw.Guess(FieldParcelType); ok {
		return
	}
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		slog.Debug("Skipping parcel appearance", "error", err)
		return
	}
	confidence := appearanceConfidence
	raw.Set(FieldParcelType, describeParcel(img), &confidence)
}

// describeParcel names a parcel by its mean colour and whether its outline
// looks rigid, e.g. "BROWN BOX" or "WHITE PACKAGE".
func describeParcel(img image.Image) string {
	small := downscale(img, appearanceDim)

	shape := "PACKAGE"
	if edgeDensity(small) > boxEdgeDensity {
		shape = "BOX"
	}
	return colourName(meanColour(small)) + " " + shape
}

// meanColour averages img in 8-bit RGB
func meanColour(img image.Image) (r, g, b float64) {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return 0, 0, 0
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr >> 8)
			g += float64(cg >> 8)
			b += float64(cb >> 8)
		}
	}
	return r / n, g / n, b / n
}

func colourName(r, g, b float64) string {
	switch {
	case max(r, g, b) < 60:
		return "BLACK"
	case r > 200 && g > 200 && b > 200:
		return "WHITE"
	case r > 200 && g > 180 && b < 130:
		return "YELLOW"
	case abs(r-g) < 15 && abs(g-b) < 15:
		return "GREY"
	}
	return "BROWN"
}

// edgeDensity is the share of pixels whose grey level steps by more than
// edgeThreshold to their neighbours.
func edgeDensity(img image.Image) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	grey := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(grey, grey.Bounds(), img, bounds.Min, draw.Src)

	level := func(x, y int) int { return int(grey.GrayAt(x, y).Y) }
	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := level(x+1, y) - level(x-1, y)
			gy := level(x, y+1) - level(x, y-1)
			if abs(float64(gx))+abs(float64(gy)) > edgeThreshold {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
