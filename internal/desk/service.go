package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/parcel-desk/internal/capture"
	"github.com/zombor/parcel-desk/internal/parcel"
)

// ErrQueueDisabled is returned by queue operations when no DB is configured
var ErrQueueDisabled = errors.New("notification queue is not configured")

// Camera produces one label image per call
type Camera interface {
	Capture(ctx context.Context) (*parcel.LabelImage, error)
}

// Finisher is implemented by cameras that need to know how the run using
// their image ended
type Finisher interface {
	Finish(img *parcel.LabelImage, runErr error)
}

// Extractor reads a label image into an entry
type Extractor interface {
	Extract(ctx context.Context, img *parcel.LabelImage) (*parcel.Entry, error)
}

// Ledger appends entries to the parcel log
type Ledger interface {
	Append(ctx context.Context, entry *parcel.Entry) (*parcel.AppendResult, error)
}

// IDGenerator generates unique IDs for notices
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// RetryPolicy says how often retryable failures are attempted again
type RetryPolicy struct {
	// ExtractionRetries applies to ErrExtractionService only
	ExtractionRetries int
	// LedgerRetries applies to ErrLedgerUnavailable only
	LedgerRetries int
	// LedgerBackoff is doubled after every ledger attempt
	LedgerBackoff time.Duration
}

// DefaultRetryPolicy is one extraction retry and two ledger retries
var DefaultRetryPolicy = RetryPolicy{
	ExtractionRetries: 1,
	LedgerRetries:     2,
	LedgerBackoff:     2 * time.Second,
}

// Service runs the capture, extract and append pipeline
type Service struct {
	extractor   Extractor
	ledger      Ledger
	db          DB
	policy      RetryPolicy
	idGenerator IDGenerator
	timeSource  parcel.TimeSource
}

// NewService creates a new Service with default ID generator and time
// source. db may be nil to disable the notification queue.
func NewService(extractor Extractor, ledger Ledger, db DB, policy RetryPolicy) *Service {
	return NewServiceWithDeps(extractor, ledger, db, policy, &uuidGenerator{}, parcel.SystemTime{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor Extractor, ledger Ledger, db DB, policy RetryPolicy, idGen IDGenerator, timeSrc parcel.TimeSource) *Service {
	return &Service{
		extractor:   extractor,
		ledger:      ledger,
		db:          db,
		policy:      policy,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// typed makes sure err carries a pipeline error kind
func typed(err error, wrap func(error) *parcel.Error) error {
	if _, ok := parcel.AsError(err); ok {
		return err
	}
	return wrap(err)
}

// LogParcel captures one image, extracts its entry and appends it to the
// ledger. Every failure matches exactly one parcel error kind.
func (s *Service) LogParcel(ctx context.Context, camera Camera) (_ *LogResult, err error) {
	img, err := camera.Capture(ctx)
	if err != nil {
		return nil, typed(err, parcel.NewCaptureError)
	}
	if f, ok := camera.(Finisher); ok {
		defer func() { f.Finish(img, err) }()
	}

	entry, err := s.extract(ctx, img)
	if err != nil {
		return nil, err
	}

	appended, err := s.append(ctx, entry)
	if err != nil {
		return nil, err
	}

	result := &LogResult{Entry: entry, Append: appended}
	s.enqueue(result)
	return result, nil
}

// LogUpload runs the pipeline on an image received over HTTP
func (s *Service) LogUpload(ctx context.Context, filename string, data []byte, contentType string) (*LogResult, error) {
	camera := capture.NewCameraWithTime(capture.NewUploadDevice(data, contentType, filename), s.timeSource)
	return s.LogParcel(ctx, camera)
}

func (s *Service) extract(ctx context.Context, img *parcel.LabelImage) (*parcel.Entry, error) {
	for attempt := 0; ; attempt++ {
		entry, err := s.extractor.Extract(ctx, img)
		if err == nil {
			return entry, nil
		}

		err = typed(err, parcel.NewExtractionServiceError)
		if !errors.Is(err, parcel.ErrExtractionService) || attempt >= s.policy.ExtractionRetries {
			return nil, err
		}
		slog.Warn("Retrying extraction", "attempt", attempt+1, "error", err)
	}
}

func (s *Service) append(ctx context.Context, entry *parcel.Entry) (*parcel.AppendResult, error) {
	backoff := s.policy.LedgerBackoff
	for attempt := 0; ; attempt++ {
		result, err := s.ledger.Append(ctx, entry)
		if err == nil {
			result.Attempts = attempt + 1
			return result, nil
		}

		err = typed(err, parcel.NewLedgerUnavailable)
		if !errors.Is(err, parcel.ErrLedgerUnavailable) || attempt >= s.policy.LedgerRetries {
			return nil, err
		}

		slog.Warn("Retrying ledger append", "attempt", attempt+1, "backoff", backoff, "error", err)
		if waitErr := sleep(ctx, backoff); waitErr != nil {
			return nil, err
		}
		backoff *= 2
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// enqueue records a resident notice. The row is already in the ledger, so
// a queue failure is reported on the result instead of failing the run.
func (s *Service) enqueue(result *LogResult) {
	if s.db == nil {
		return
	}

	entry := result.Entry
	notice := &Notice{
		ID:           s.idGenerator.Generate(),
		Unit:         entry.Unit,
		ResidentName: entry.ResidentName,
		Supplier:     entry.Supplier,
		ParcelType:   entry.ParcelType,
		LoggedAt:     entry.LoggedAt,
	}
	if err := s.db.SaveNotice(notice); err != nil {
		slog.Warn("Failed to queue resident notice", "unit", entry.Unit, "error", err)
		result.NoticeError = err.Error()
		return
	}
	result.Notice = notice
}

// PendingNotices returns the queued notices, oldest first
func (s *Service) PendingNotices() ([]*Notice, error) {
	if s.db == nil {
		return nil, ErrQueueDisabled
	}
	notices, err := s.db.ListNotices()
	if err != nil {
		return nil, fmt.Errorf("listing notices: %w", err)
	}
	return notices, nil
}

// CompleteUnit drops the notices for a unit once the resident was told
func (s *Service) CompleteUnit(unit string) (int, int, error) {
	if s.db == nil {
		return 0, 0, ErrQueueDisabled
	}
	removed, remaining, err := s.db.CompleteUnit(unit)
	if err != nil {
		return 0, 0, fmt.Errorf("completing unit %s: %w", unit, err)
	}
	return removed, remaining, nil
}

// QueueStatus returns the queue size and pending units
func (s *Service) QueueStatus() (*QueueStatus, error) {
	notices, err := s.PendingNotices()
	if err != nil {
		return nil, err
	}
	status := &QueueStatus{Size: len(notices), Units: make([]string, len(notices))}
	for i, n := range notices {
		status.Units[i] = n.Unit
	}
	return status, nil
}

// ClearQueue removes every pending notice
func (s *Service) ClearQueue() (int, error) {
	if s.db == nil {
		return 0, ErrQueueDisabled
	}
	count, err := s.db.ClearNotices()
	if err != nil {
		return 0, fmt.Errorf("clearing queue: %w", err)
	}
	return count, nil
}
