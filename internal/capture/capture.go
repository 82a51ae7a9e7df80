package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zombor/parcel-desk/internal/parcel"
)

// ErrEmptyFrame is returned when a device produces zero bytes
var ErrEmptyFrame = errors.New("device returned an empty frame")

// Frame is one image read from a device
type Frame struct {
	Data        []byte
	ContentType string // empty when the device does not know
	Source      string
}

// Device defines the interface for anything that can produce a label photo
type Device interface {
	// Frame reads a single image from the device
	Frame(ctx context.Context) (*Frame, error)
}

// Releaser is implemented by devices that hold on to a frame until the
// pipeline run that used it is over
type Releaser interface {
	Release(source string, runErr error) error
}

// Camera turns device frames into label images
type Camera struct {
	device Device
	time   parcel.TimeSource
}

// NewCamera creates a new Camera using the system clock
func NewCamera(device Device) *Camera {
	return NewCameraWithTime(device, parcel.SystemTime{})
}

// NewCameraWithTime creates a new Camera with a custom time source
func NewCameraWithTime(device Device, ts parcel.TimeSource) *Camera {
	return &Camera{device: device, time: ts}
}

// Capture reads one frame. Device failures and empty frames are
// ErrCapture; there are no retries.
func (c *Camera) Capture(ctx context.Context) (*parcel.LabelImage, error) {
	frame, err := c.device.Frame(ctx)
	if err != nil {
		slog.Error("Failed to capture frame", "error", err)
		return nil, parcel.NewCaptureError(err)
	}
	if frame == nil || len(frame.Data) == 0 {
		return nil, parcel.NewCaptureError(ErrEmptyFrame)
	}

	contentType := frame.ContentType
	if contentType == "" {
		contentType = DetectContentType(frame.Data)
	}

	slog.Info("Captured label image",
		"source", frame.Source,
		"content_type", contentType,
		"file_size", len(frame.Data),
	)

	return &parcel.LabelImage{
		Data:        frame.Data,
		ContentType: contentType,
		CapturedAt:  c.time.Now(),
		Source:      frame.Source,
	}, nil
}

// Finish tells the device the run that used img ended with runErr
func (c *Camera) Finish(img *parcel.LabelImage, runErr error) {
	r, ok := c.device.(Releaser)
	if !ok || img == nil {
		return
	}
	if err := r.Release(img.Source, runErr); err != nil {
		slog.Warn("Failed to release label photo", "source", img.Source, "error", err)
	}
}

// DetectContentType sniffs image data. HEIC and HEIF photos, which
// http.DetectContentType does not know, are recognised by their ftyp brand.
func DetectContentType(data []byte) string {
	if brand, ok := isoBrand(data); ok {
		switch brand {
		case "heic", "heix", "heim", "heis", "hevc", "hevx":
			return "image/heic"
		case "mif1", "msf1", "heif":
			return "image/heif"
		}
	}
	return http.DetectContentType(data)
}

// isoBrand returns the major brand of an ISO base media file
func isoBrand(data []byte) (string, bool) {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return "", false
	}
	return string(data[8:12]), true
}

// UploadDevice wraps image bytes that were already received
type UploadDevice struct {
	data        []byte
	contentType string
	source      string
}

// NewUploadDevice creates a device that yields the given bytes once
func NewUploadDevice(data []byte, contentType, source string) *UploadDevice {
	return &UploadDevice{data: data, contentType: contentType, source: source}
}

// Frame returns the uploaded image
func (u *UploadDevice) Frame(ctx context.Context) (*Frame, error) {
	if len(u.data) == 0 {
		return nil, fmt.Errorf("upload %s: %w", u.source, ErrEmptyFrame)
	}
	return &Frame{Data: u.data, ContentType: normalizeUploadType(u.contentType), Source: u.source}, nil
}

// normalizeUploadType drops the generic types browsers send so the data
// gets sniffed instead
func normalizeUploadType(contentType string) string {
	switch contentType {
	case "", "application/octet-stream":
		return ""
	}
	return contentType
}
