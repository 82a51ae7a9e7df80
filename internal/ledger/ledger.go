package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"google.golang.org/api/googleapi"

	"github.com/zombor/parcel-desk/internal/parcel"
)

// Column names a ledger column
type Column string

const (
	ColumnSupplier     Column = "supplier"
	ColumnResidentName Column = "resident_name"
	ColumnUnit         Column = "unit"
	ColumnParcelType   Column = "parcel_type"
	ColumnParcelRaw    Column = "parcel_type_raw"
	ColumnLoggedAt     Column = "logged_at"
	// ColumnBlank writes an empty cell, for columns staff fill in by hand
	ColumnBlank Column = "blank"
)

// DefaultColumns is the row layout when none is configured
var DefaultColumns = []Column{
	ColumnSupplier,
	ColumnResidentName,
	ColumnUnit,
	ColumnParcelType,
	ColumnLoggedAt,
}

// DefaultTimestampLayout formats LoggedAt the way Sheets parses dates
const DefaultTimestampLayout = "01/02/2006 15:04:05"

// ErrSchemaMismatch is returned when the sheet header differs from the
// configured one
var ErrSchemaMismatch = errors.New("sheet header does not match")

// Sheet defines the interface for the spreadsheet a row is appended to
type Sheet interface {
	// AppendRow appends one row and returns the range that was updated
	AppendRow(ctx context.Context, row []any) (string, error)
}

// HeaderReader is implemented by sheets that can report their header row
type HeaderReader interface {
	Header(ctx context.Context) ([]string, error)
}

// Config holds configuration for an Appender
type Config struct {
	Columns         []Column
	TimestampLayout string
	Location        *time.Location // LoggedAt is converted here before formatting
	// ExpectedHeader, when set, is compared with row 1 before the first append
	ExpectedHeader []string
}

// ParseColumns parses a comma separated column list
func ParseColumns(s string) ([]Column, error) {
	var columns []Column
	for _, part := range strings.Split(s, ",") {
		c := Column(strings.ToLower(strings.TrimSpace(part)))
		if c == "" {
			continue
		}
		if !knownColumn(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		columns = append(columns, c)
	}
	return columns, nil
}

func knownColumn(c Column) bool {
	switch c {
	case ColumnSupplier, ColumnResidentName, ColumnUnit, ColumnParcelType,
		ColumnParcelRaw, ColumnLoggedAt, ColumnBlank:
		return true
	}
	return false
}

// Appender writes entries to a sheet in a fixed column order.
//
// There is no idempotency key: when an append fails with
// ErrLedgerUnavailable the row may still have been written, so a retry can
// leave a duplicate row for staff to remove.
type Appender struct {
	sheet  Sheet
	cfg    Config
	mu     sync.Mutex
	verify bool
}

// NewAppender creates a new Appender
func NewAppender(sheet Sheet, cfg Config) (*Appender, error) {
	if len(cfg.Columns) == 0 {
		cfg.Columns = DefaultColumns
	}
	for _, c := range cfg.Columns {
		if !knownColumn(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	if cfg.TimestampLayout == "" {
		cfg.TimestampLayout = DefaultTimestampLayout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	verify := len(cfg.ExpectedHeader) > 0
	if verify {
		if _, ok := sheet.(HeaderReader); !ok {
			return nil, errors.New("header verification needs a sheet that can read its header")
		}
	}

	return &Appender{sheet: sheet, cfg: cfg, verify: verify}, nil
}

// Row serializes an entry in the configured column order
func (a *Appender) Row(entry *parcel.Entry) []string {
	row := make([]string, len(a.cfg.Columns))
	for i, c := range a.cfg.Columns {
		switch c {
		case ColumnSupplier:
			row[i] = entry.Supplier
		case ColumnResidentName:
			row[i] = entry.ResidentName
		case ColumnUnit:
			row[i] = entry.Unit
		case ColumnParcelType:
			row[i] = entry.ParcelType
		case ColumnParcelRaw:
			row[i] = entry.ParcelTypeRaw
		case ColumnLoggedAt:
			row[i] = entry.LoggedAt.In(a.cfg.Location).Format(a.cfg.TimestampLayout)
		}
	}
	return row
}

// Append writes one row for the entry. Failures are ErrLedgerUnavailable
// when a later attempt may succeed and ErrLedgerRejected otherwise.
func (a *Appender) Append(ctx context.Context, entry *parcel.Entry) (*parcel.AppendResult, error) {
	if err := a.verifyHeader(ctx); err != nil {
		return nil, err
	}

	row := a.Row(entry)
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}

	updated, err := a.sheet.AppendRow(ctx, values)
	if err != nil {
		slog.Error("Failed to append row", "unit", entry.Unit, "error", err)
		return nil, classify(err)
	}

	slog.Info("Appended row", "range", updated, "unit", entry.Unit, "supplier", entry.Supplier)
	return &parcel.AppendResult{Row: row, UpdatedRange: updated, Attempts: 1}, nil
}

// verifyHeader checks row 1 once; a failed read is checked again next time
func (a *Appender) verifyHeader(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.verify {
		return nil
	}

	header, err := a.sheet.(HeaderReader).Header(ctx)
	if err != nil {
		return classify(fmt.Errorf("reading header: %w", err))
	}

	fold := cases.Fold()
	got := make([]string, len(header))
	for i, h := range header {
		got[i] = fold.String(strings.TrimSpace(h))
	}
	want := make([]string, len(a.cfg.ExpectedHeader))
	for i, h := range a.cfg.ExpectedHeader {
		want[i] = fold.String(strings.TrimSpace(h))
	}
	if len(got) > len(want) {
		got = got[:len(want)]
	}
	if !slices.Equal(got, want) {
		return parcel.NewLedgerRejected(fmt.Errorf("%w: got %q, want %q", ErrSchemaMismatch, header, a.cfg.ExpectedHeader))
	}

	a.verify = false
	return nil
}

// classify maps a sheet error onto the ledger error kinds
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 400, gerr.Code == 404:
			return parcel.NewLedgerRejected(err)
		case gerr.Code == 401, gerr.Code == 403, gerr.Code == 408, gerr.Code == 429, gerr.Code >= 500:
			return parcel.NewLedgerUnavailable(err)
		}
		return parcel.NewLedgerRejected(err)
	}

	// Transport errors, timeouts and anything unrecognised may pass on retry
	return parcel.NewLedgerUnavailable(err)
}
