package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig holds configuration for a SheetsClient
type SheetsConfig struct {
	SpreadsheetID   string
	Worksheet       string // tab name; empty appends to the first sheet
	CredentialsFile string // service account JSON
}

// SheetsClient appends rows to a Google Sheet
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
}

// NewSheetsClient creates a new SheetsClient. Extra options replace the
// credentials file, e.g. for tests.
func NewSheetsClient(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsClient, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet ID is required")
	}

	if len(opts) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, errors.New("credentials file is required")
		}
		opts = []option.ClientOption{
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope),
		}
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	return &SheetsClient{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
	}, nil
}

// a1 builds an A1 range on the configured worksheet
func (s *SheetsClient) a1(cells string) string {
	if s.worksheet == "" {
		return cells
	}
	return "'" + strings.ReplaceAll(s.worksheet, "'", "''") + "'!" + cells
}

// AppendRow appends one row after the last row of the table
func (s *SheetsClient) AppendRow(ctx context.Context, row []any) (string, error) {
	body := &sheets.ValueRange{Values: [][]interface{}{row}}

	resp, err := s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, s.a1("A1"), body).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("appending row: %w", err)
	}

	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

// Header returns the values of row 1
func (s *SheetsClient) Header(ctx context.Context) ([]string, error) {
	resp, err := s.service.Spreadsheets.Values.
		Get(s.spreadsheetID, s.a1("1:1")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}

	if len(resp.Values) == 0 {
		return nil, nil
	}
	header := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		header[i] = fmt.Sprint(v)
	}
	return header, nil
}
