package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/parcel-desk/internal/capture"
	"github.com/zombor/parcel-desk/internal/desk"
	"github.com/zombor/parcel-desk/internal/ledger"
	"github.com/zombor/parcel-desk/internal/parcel"
	"github.com/zombor/parcel-desk/internal/scanning"
)

// options holds the flags shared by every command
type options struct {
	deviceCommand *string
	deviceLock    *string
	lockTimeout   *time.Duration
	imagePath     *string
	inboxPath     *string

	spreadsheetID   *string
	worksheet       *string
	credentials     *string
	columns         *string
	expectHeader    *string
	timestampLayout *string
	timezone        *string

	scannerType      *string
	fallback         *string
	geminiKey        *string
	geminiModel      *string
	ollamaURL        *string
	ollamaModel      *string
	tesseractLang    *string
	inferenceTimeout *time.Duration
	vocabulary       *string

	extractionRetries *int
	ledgerRetries     *int
	ledgerBackoff     *time.Duration

	logLevel    *string
	showVersion *bool
}

func registerFlags(fs *ff.FlagSet) *options {
	fs.StringLong("config", "", "Config file with one 'flag value' pair per line (optional)")
	return &options{
		deviceCommand: fs.StringLong("device-command", "", "Capture command that writes one image to stdout, e.g. 'libcamera-still -n -o -'"),
		deviceLock:    fs.StringLong("device-lock", "", "Lock file held while the capture command runs (optional)"),
		lockTimeout:   fs.DurationLong("device-lock-timeout", 5*time.Second, "How long to wait for a busy camera"),
		imagePath:     fs.StringLong("image", "", "Read the label from this image file instead of a camera"),
		inboxPath:     fs.StringLong("inbox", "", "Take the oldest image from this folder; it is removed once the run settles"),

		spreadsheetID:   fs.StringLong("spreadsheet-id", "", "Google Sheets spreadsheet ID"),
		worksheet:       fs.StringLong("worksheet", "", "Worksheet (tab) name; empty uses the first sheet"),
		credentials:     fs.StringLong("credentials", "credentials.json", "Service account credentials file"),
		columns:         fs.StringLong("columns", "supplier,resident_name,unit,parcel_type,logged_at", "Row column order; 'blank' leaves a cell empty"),
		expectHeader:    fs.StringLong("expect-header", "", "Comma separated header names row 1 must start with (optional)"),
		timestampLayout: fs.StringLong("timestamp-layout", ledger.DefaultTimestampLayout, "Go time layout for the logged_at column"),
		timezone:        fs.StringLong("timezone", "", "IANA zone for the logged_at column; empty uses the local zone"),

		scannerType:      fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'tesseract'"),
		fallback:         fs.StringLong("fallback", "none", "Fallback scanner for failures and unread fields: 'tesseract' or 'none'"),
		geminiKey:        fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:      fs.StringLong("gemini-model", "gemini-2.5-flash-lite", "Google Gemini model name"),
		ollamaURL:        fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:      fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl, llama3.2-vision)"),
		tesseractLang:    fs.StringLong("tesseract-lang", "eng", "Tesseract languages, comma separated"),
		inferenceTimeout: fs.DurationLong("inference-timeout", 60*time.Second, "Deadline for one scanner call; 0 disables"),
		vocabulary:       fs.StringLong("vocabulary", "", "TOML or YAML vocabulary file overriding the built-in word lists"),

		extractionRetries: fs.IntLong("extraction-retries", desk.DefaultRetryPolicy.ExtractionRetries, "Retries after an extraction service failure"),
		ledgerRetries:     fs.IntLong("ledger-retries", desk.DefaultRetryPolicy.LedgerRetries, "Retries after the sheet is unavailable"),
		ledgerBackoff:     fs.DurationLong("ledger-backoff", desk.DefaultRetryPolicy.LedgerBackoff, "First wait between ledger retries, doubled each time"),

		logLevel:    fs.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
		showVersion: fs.BoolLong("version", "Show version information"),
	}
}

// serveOptions holds the flags of the serve command
type serveOptions struct {
	port          *int
	dbPath        *string
	authUser      *string
	authPass      *string
	corsOrigin    *string
	uploadTimeout *time.Duration
}

func registerServeFlags(fs *ff.FlagSet) *serveOptions {
	return &serveOptions{
		port:          fs.IntLong("port", 8080, "HTTP server port"),
		dbPath:        fs.StringLong("db", "parcel-desk.db", "Notification queue database file path"),
		authUser:      fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:      fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
		corsOrigin:    fs.StringLong("cors-origin", "", "Origin allowed to poll /valet/*; empty allows any"),
		uploadTimeout: fs.DurationLong("upload-timeout", 3*time.Minute, "Deadline for one upload's pipeline run; 0 disables"),
	}
}

// splitList splits a comma separated flag value
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// camera picks the capture device from the flags
func (o *options) camera() (*capture.Camera, error) {
	switch {
	case *o.imagePath != "":
		return capture.NewCamera(capture.NewFileDevice(*o.imagePath)), nil
	case *o.inboxPath != "":
		inbox, err := capture.NewInboxDevice(*o.inboxPath)
		if err != nil {
			return nil, err
		}
		return capture.NewCamera(inbox), nil
	case *o.deviceCommand != "":
		device, err := capture.NewCommandDevice(capture.CommandConfig{
			Command:     *o.deviceCommand,
			LockPath:    *o.deviceLock,
			LockTimeout: *o.lockTimeout,
		})
		if err != nil {
			return nil, err
		}
		return capture.NewCamera(device), nil
	}
	return nil, errors.New("no capture device: set --image, --inbox or --device-command")
}

// scanner builds the configured scanner chain
func (o *options) scanner(ctx context.Context, vocab parcel.Vocabulary) (scanning.Scanner, []io.Closer, error) {
	var (
		primary scanning.Scanner
		closers []io.Closer
	)

	tesseract := func() *scanning.Tesseract {
		t := scanning.NewTesseract(splitList(*o.tesseractLang), vocab.SupplierNames())
		closers = append(closers, t)
		return t
	}

	switch *o.scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *o.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *o.geminiModel)
		g, err := scanning.NewGemini(ctx, scanning.GeminiConfig{
			APIKey:  apiKey,
			Model:   *o.geminiModel,
			Timeout: *o.inferenceTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing gemini: %w", err)
		}
		closers = append(closers, g)
		primary = g
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *o.ollamaURL, "model", *o.ollamaModel)
		ol, err := scanning.NewOllama(scanning.OllamaConfig{
			BaseURL: *o.ollamaURL,
			Model:   *o.ollamaModel,
			Timeout: *o.inferenceTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing ollama: %w", err)
		}
		closers = append(closers, ol)
		primary = ol
	case "tesseract":
		slog.Info("Initializing Tesseract scanner...", "languages", *o.tesseractLang)
		primary = tesseract()
	default:
		return nil, nil, fmt.Errorf("invalid scanner type %q: use gemini, ollama or tesseract", *o.scannerType)
	}

	switch *o.fallback {
	case "", "none":
		return primary, closers, nil
	case "tesseract":
		if *o.scannerType == "tesseract" {
			return primary, closers, nil
		}
		slog.Info("Tesseract fallback enabled")
		return scanning.NewChain(primary, tesseract(), vocab.Placeholders...), closers, nil
	}
	return nil, nil, fmt.Errorf("invalid fallback %q: use tesseract or none", *o.fallback)
}

// appender builds the ledger appender
func (o *options) appender(ctx context.Context) (*ledger.Appender, error) {
	columns, err := ledger.ParseColumns(*o.columns)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if *o.timezone != "" {
		if loc, err = time.LoadLocation(*o.timezone); err != nil {
			return nil, fmt.Errorf("loading timezone: %w", err)
		}
	}

	sheet, err := ledger.NewSheetsClient(ctx, ledger.SheetsConfig{
		SpreadsheetID:   *o.spreadsheetID,
		Worksheet:       *o.worksheet,
		CredentialsFile: *o.credentials,
	})
	if err != nil {
		return nil, err
	}

	return ledger.NewAppender(sheet, ledger.Config{
		Columns:         columns,
		TimestampLayout: *o.timestampLayout,
		Location:        loc,
		ExpectedHeader:  splitList(*o.expectHeader),
	})
}

// retryPolicy reads the retry flags
func (o *options) retryPolicy() (desk.RetryPolicy, error) {
	if *o.extractionRetries < 0 || *o.ledgerRetries < 0 || *o.ledgerBackoff < 0 {
		return desk.RetryPolicy{}, errors.New("retry counts and backoff must not be negative")
	}
	return desk.RetryPolicy{
		ExtractionRetries: *o.extractionRetries,
		LedgerRetries:     *o.ledgerRetries,
		LedgerBackoff:     *o.ledgerBackoff,
	}, nil
}

// service wires the pipeline. The returned func closes the scanners.
func (o *options) service(ctx context.Context, db desk.DB) (*desk.Service, func(), error) {
	vocab, err := parcel.LoadVocabulary(*o.vocabulary)
	if err != nil {
		return nil, nil, err
	}

	policy, err := o.retryPolicy()
	if err != nil {
		return nil, nil, err
	}

	appender, err := o.appender(ctx)
	if err != nil {
		return nil, nil, err
	}

	scanner, closers, err := o.scanner(ctx, vocab)
	if err != nil {
		return nil, nil, err
	}
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("Failed to close scanner", "error", err)
			}
		}
	}

	return desk.NewService(parcel.NewExtractor(scanner, vocab), appender, db, policy), closeAll, nil
}
