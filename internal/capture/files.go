package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zombor/parcel-desk/internal/parcel"
)

// ErrInboxEmpty is returned when the inbox holds no images
var ErrInboxEmpty = errors.New("no images waiting in inbox")

// contentTypeForExt maps image file extensions to content types
func contentTypeForExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	}
	return ""
}

// FileDevice reads a single image from disk
type FileDevice struct {
	path string
}

// NewFileDevice creates a new FileDevice
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

// Frame reads the image file
func (f *FileDevice) Frame(ctx context.Context) (*Frame, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return &Frame{Data: data, ContentType: contentTypeForExt(f.path), Source: f.path}, nil
}

// InboxDevice takes images from a drop folder, oldest first. An image stays
// in the folder until Release is called for the run that read it.
type InboxDevice struct {
	basePath string
}

// NewInboxDevice creates a new InboxDevice, creating the folder if needed
func NewInboxDevice(basePath string) (*InboxDevice, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating inbox directory: %w", err)
	}

	return &InboxDevice{
		basePath: basePath,
	}, nil
}

// Pending returns the waiting image names, oldest first
func (i *InboxDevice) Pending() ([]string, error) {
	entries, err := os.ReadDir(i.basePath)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	type pending struct {
		name    string
		modTime int64
	}
	var files []pending
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || contentTypeForExt(e.Name()) == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed since ReadDir
			continue
		}
		files = append(files, pending{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(a, b int) bool {
		if files[a].modTime == files[b].modTime {
			return files[a].name < files[b].name
		}
		return files[a].modTime < files[b].modTime
	})

	names := make([]string, len(files))
	for n, f := range files {
		names[n] = f.name
	}
	return names, nil
}

// Frame reads the oldest waiting image
func (i *InboxDevice) Frame(ctx context.Context) (*Frame, error) {
	names, err := i.Pending()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrInboxEmpty
	}

	fullPath := filepath.Join(i.basePath, names[0])
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return &Frame{Data: data, ContentType: contentTypeForExt(names[0]), Source: fullPath}, nil
}

// Release deletes an image once its run is over. Images whose run failed
// in a way the same photo can get past on a later run are kept.
func (i *InboxDevice) Release(source string, runErr error) error {
	if filepath.Dir(source) != filepath.Clean(i.basePath) {
		return fmt.Errorf("releasing %s: not in inbox", source)
	}
	if keepForRerun(runErr) {
		slog.Info("Keeping label photo for another run", "path", source, "error", runErr)
		return nil
	}
	if err := os.Remove(source); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// keepForRerun reports whether runErr can clear up without a new photo.
// Unreadable images and incomplete labels cannot.
func keepForRerun(runErr error) bool {
	if runErr == nil {
		return false
	}
	perr, ok := parcel.AsError(runErr)
	if !ok {
		return true
	}
	return perr.Retryable() || errors.Is(runErr, parcel.ErrLedgerRejected)
}
