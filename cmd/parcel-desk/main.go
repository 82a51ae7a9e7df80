package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/parcel-desk/internal/desk"
	"github.com/zombor/parcel-desk/internal/parcel"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// Exit codes
const (
	exitOK = iota
	exitConfig
	exitCapture
	exitExtractionService
	exitExtractionIncomplete
	exitLedgerUnavailable
	exitLedgerRejected
)

// exitCode maps an error onto the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, parcel.ErrCapture):
		return exitCapture
	case errors.Is(err, parcel.ErrExtractionService):
		return exitExtractionService
	case errors.Is(err, parcel.ErrExtractionIncomplete):
		return exitExtractionIncomplete
	case errors.Is(err, parcel.ErrLedgerUnavailable):
		return exitLedgerUnavailable
	case errors.Is(err, parcel.ErrLedgerRejected):
		return exitLedgerRejected
	}
	return exitConfig
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootFlags := ff.NewFlagSet("parcel-desk")
	opts := registerFlags(rootFlags)

	root := &ff.Command{
		Name:      "parcel-desk",
		Usage:     "parcel-desk [FLAGS] [SUBCOMMAND]",
		ShortHelp: "log one parcel label from the configured camera",
		Flags:     rootFlags,
		Exec: func(ctx context.Context, args []string) error {
			return logOnce(ctx, opts, stdout, stderr)
		},
	}

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveOpts := registerServeFlags(serveFlags)
	serve := &ff.Command{
		Name:      "serve",
		Usage:     "parcel-desk serve [FLAGS]",
		ShortHelp: "serve the phone upload page and the resident notification queue",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			return serveDesk(ctx, opts, serveOpts)
		},
	}
	root.Subcommands = append(root.Subcommands, serve)

	err := root.Parse(args,
		ff.WithEnvVarPrefix("PARCEL_DESK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitConfig
	}

	// Check version flag after parsing
	if *opts.showVersion {
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	slog.SetDefault(newLogger(stderr, *opts.logLevel))

	if err := root.Run(ctx); err != nil {
		if _, ok := parcel.AsError(err); ok {
			fmt.Fprint(stderr, renderFailure(err, shouldColorize(stderr)))
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return exitCode(err)
	}
	return exitOK
}

// logOnce runs the pipeline for a single capture
func logOnce(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	camera, err := opts.camera()
	if err != nil {
		return err
	}

	service, closeAll, err := opts.service(ctx, nil)
	if err != nil {
		return err
	}
	defer closeAll()

	result, err := service.LogParcel(ctx, camera)
	if err != nil {
		return err
	}

	fmt.Fprint(stdout, renderResult(result))
	if result.NoticeError != "" {
		fmt.Fprintf(stderr, "warning: resident notice not queued: %s\n", result.NoticeError)
	}
	return nil
}

// serveDesk runs the HTTP server until ctx is cancelled
func serveDesk(ctx context.Context, opts *options, serveOpts *serveOptions) error {
	slog.Info("Initializing database...", "path", *serveOpts.dbPath)
	db, err := desk.NewBoltDB(*serveOpts.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	service, closeAll, err := opts.service(ctx, db)
	if err != nil {
		return err
	}
	defer closeAll()

	server := desk.NewServer(service, desk.Options{
		BasicAuth: desk.BasicAuth{
			Username: *serveOpts.authUser,
			Password: *serveOpts.authPass,
		},
		CORSOrigin:    *serveOpts.corsOrigin,
		UploadTimeout: *serveOpts.uploadTimeout,
	})

	if *serveOpts.authUser != "" || *serveOpts.authPass != "" {
		slog.Info("Basic auth enabled", "user", *serveOpts.authUser)
	}

	addr := fmt.Sprintf(":%d", *serveOpts.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if err := server.Run(ctx, addr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("Shutting down...")
	return nil
}

// newLogger builds the process logger
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
