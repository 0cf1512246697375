package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/sqlitemcp/internal/config"
	"github.com/hazyhaar/sqlitemcp/internal/db"
	toolmcp "github.com/hazyhaar/sqlitemcp/internal/mcp"
	"github.com/hazyhaar/sqlitemcp/internal/schema"
	"github.com/hazyhaar/sqlitemcp/pkg/audit"
	"github.com/hazyhaar/sqlitemcp/pkg/trace"
)

var version = "dev"

const usage = `sqlitemcp: SQLite tools for MCP clients over stdio

Usage:
  sqlitemcp [--config config.toml] <database path>
  sqlitemcp --version

Tools:
  read_query, write_query, create_table, list_tables, describe_table`

// UsageError reports bad command-line arguments.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

type options struct {
	dbPath      string
	configPath  string
	showVersion bool
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("sqlitemcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usage) }

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "path to config.toml")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &UsageError{Msg: err.Error()}
	}
	if opts.showVersion {
		return opts, nil
	}
	if fs.NArg() != 1 {
		return nil, &UsageError{Msg: fmt.Sprintf("expected exactly one database path, got %d arguments", fs.NArg())}
	}
	opts.dbPath = fs.Arg(0)
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	if opts.showVersion {
		fmt.Printf("sqlitemcp %s\n", version)
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts.dbPath, cfg); err != nil {
		slog.Error("sqlitemcp stopped", "error", err)
		os.Exit(1)
	}
}

func newLogHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	level, _ := config.ParseLevel(cfg.Level)
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// run serves until stdin closes or the process is signalled. Stdout carries
// protocol messages only; every diagnostic goes to stderr.
func run(dbPath string, cfg *config.Config) error {
	handler := newLogHandler(os.Stderr, cfg.Log)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	var (
		opsDB    *db.OpsDB
		auditLog audit.Logger
	)
	if cfg.Ops.Path != "" {
		var err error
		opsDB, err = db.OpenOps(cfg.Ops.Path)
		if err != nil {
			return fmt.Errorf("opening ops database: %w", err)
		}
		defer opsDB.Close()

		if cfg.Ops.Audit {
			l := audit.NewSQLiteLogger(opsDB.DB)
			if err := l.Init(); err != nil {
				return fmt.Errorf("initializing audit log: %w", err)
			}
			defer l.Close()
			auditLog = l
		}
	}

	var traceDB *db.OpsDB
	if cfg.Ops.Trace {
		traceDB = opsDB
	}
	store := newTraceStore(traceDB, cfg.Ops, logger)
	if err := store.Init(); err != nil {
		return fmt.Errorf("initializing sql traces: %w", err)
	}
	defer store.Close()

	gw, err := db.Open(dbPath, db.Options{
		BusyTimeout: cfg.Database.BusyTimeout(),
		ForeignKeys: cfg.Database.ForeignKeys,
		Recorder:    store,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer gw.Close()

	dispatcher := toolmcp.NewDispatcher(schema.NewRegistry(), gw, toolmcp.Options{
		Strict: cfg.SQL.StrictStatements,
		Audit:  auditLog,
		Logger: logger,
	})
	srv := toolmcp.NewServer(dispatcher, cfg.Server.Name, cfg.Server.Version)

	logger.Info("sqlite mcp server ready",
		"db", gw.Path(),
		"version", version,
		"strict_statements", cfg.SQL.StrictStatements,
		"ops", cfg.Ops.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = toolmcp.Serve(ctx, srv, dispatcher, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("sqlite mcp server stopped")
	return err
}

func newTraceStore(ops *db.OpsDB, cfg config.OpsConfig, logger *slog.Logger) *trace.Store {
	topts := trace.Options{Slow: cfg.SlowQuery(), Logger: logger}
	if ops == nil {
		return trace.NewStore(nil, topts)
	}
	return trace.NewStore(ops.DB, topts)
}
