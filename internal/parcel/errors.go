package parcel

import (
	"errors"
	"strings"

	"github.com/zombor/parcel-desk/internal/scanning"
)

// Error kinds. Every pipeline failure matches exactly one with errors.Is.
var (
	ErrCapture              = errors.New("capture failed")
	ErrExtractionService    = errors.New("extraction service failed")
	ErrExtractionIncomplete = errors.New("extraction incomplete")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
	ErrLedgerRejected       = errors.New("ledger rejected row")
)

// Stage names the pipeline step that failed
type Stage string

const (
	StageCapture Stage = "capture"
	StageExtract Stage = "extract"
	StageAppend  Stage = "append"
)

// Error is a pipeline failure with its kind, stage and offending fields
type Error struct {
	Kind   error
	Stage  Stage
	Fields []scanning.Field // set for ErrExtractionIncomplete
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if len(e.Fields) > 0 {
		b.WriteString(" (missing ")
		b.WriteString(joinFields(e.Fields))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether retrying the same call automatically is safe.
// Incomplete extractions are not: the same image reads the same way.
func (e *Error) Retryable() bool {
	return e.Kind == ErrExtractionService || e.Kind == ErrLedgerUnavailable
}

// KindName returns the operator-facing name of the error kind
func (e *Error) KindName() string {
	switch e.Kind {
	case ErrCapture:
		return "CaptureError"
	case ErrExtractionService:
		return "ExtractionServiceError"
	case ErrExtractionIncomplete:
		return "ExtractionIncomplete"
	case ErrLedgerUnavailable:
		return "LedgerUnavailable"
	case ErrLedgerRejected:
		return "LedgerRejected"
	}
	return "UnknownError"
}

func NewCaptureError(err error) *Error {
	return &Error{Kind: ErrCapture, Stage: StageCapture, Err: err}
}

func NewExtractionServiceError(err error) *Error {
	return &Error{Kind: ErrExtractionService, Stage: StageExtract, Err: err}
}

func NewExtractionIncomplete(fields []scanning.Field) *Error {
	return &Error{Kind: ErrExtractionIncomplete, Stage: StageExtract, Fields: fields}
}

func NewLedgerUnavailable(err error) *Error {
	return &Error{Kind: ErrLedgerUnavailable, Stage: StageAppend, Err: err}
}

func NewLedgerRejected(err error) *Error {
	return &Error{Kind: ErrLedgerRejected, Stage: StageAppend, Err: err}
}

// AsError extracts a pipeline Error from err
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// MissingFields returns the fields an ErrExtractionIncomplete error names
func MissingFields(err error) []scanning.Field {
	if perr, ok := AsError(err); ok {
		return perr.Fields
	}
	return nil
}

func joinFields(fields []scanning.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
