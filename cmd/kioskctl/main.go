package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kmn/visitor-kiosk/config"
	"github.com/kmn/visitor-kiosk/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"db-reset": {
			name:        "db-reset",
			description: "Drop the database schema and re-run migrations",
			run:         runDBReset,
		},
		"sweep": {
			name:        "sweep",
			description: "Close open visits from previous facility days now",
			run:         runSweep,
		},
		"system-exits": {
			name:        "system-exits",
			description: "List visits closed by the system",
			run:         runSystemExits,
		},
		"set-pin": {
			name:        "set-pin",
			description: "Set the PIN of an employee or department",
			run:         runSetPIN,
		},
		"list-sessions": {
			name:        "list-sessions",
			description: "Inspect kiosk session records in Redis",
			run:         runListSessions,
		},
		"clear-session": {
			name:        "clear-session",
			description: "Sign out a browser context by removing its session record",
			run:         runClearSession,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: kioskctl <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(os.Stdout, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	AllowRemote bool
}

type sweepOptions struct {
	Timeout time.Duration
}

type systemExitsOptions struct {
	Days  int
	Limit int
}

type setPINOptions struct {
	EmployeeID   int64
	DepartmentID int64
	PIN          string
	AllowRemote  bool
}

type clearSessionOptions struct {
	ContextID string
	Yes       bool
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func requirePositive(d time.Duration) error {
	if d <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate")
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if err := requirePositive(opts.Timeout); err != nil {
		return migrateOptions{}, err
	}
	return opts, nil
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	fs := newFlagSet("db-reset")
	opts := dbResetOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout,
		"Maximum duration to wait for reset operations to complete")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false,
		"Permit running against database hosts that do not look local")

	if err := fs.Parse(args); err != nil {
		return dbResetOptions{}, err
	}
	if err := requirePositive(opts.Timeout); err != nil {
		return dbResetOptions{}, err
	}
	return opts, nil
}

func parseSweepFlags(args []string) (sweepOptions, error) {
	fs := newFlagSet("sweep")
	opts := sweepOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration of the sweep")

	if err := fs.Parse(args); err != nil {
		return sweepOptions{}, err
	}
	if err := requirePositive(opts.Timeout); err != nil {
		return sweepOptions{}, err
	}
	return opts, nil
}

func parseSystemExitsFlags(args []string) (systemExitsOptions, error) {
	fs := newFlagSet("system-exits")
	opts := systemExitsOptions{}
	fs.IntVar(&opts.Days, "days", 7, "Look back this many days")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to print")

	if err := fs.Parse(args); err != nil {
		return systemExitsOptions{}, err
	}
	if opts.Days < 1 || opts.Days > 90 {
		return systemExitsOptions{}, errors.New("--days must be between 1 and 90")
	}
	if opts.Limit < 1 || opts.Limit > 1000 {
		return systemExitsOptions{}, errors.New("--limit must be between 1 and 1000")
	}
	return opts, nil
}

func parseSetPINFlags(args []string) (setPINOptions, error) {
	fs := newFlagSet("set-pin")
	opts := setPINOptions{}
	fs.Int64Var(&opts.EmployeeID, "employee", 0, "Employee id")
	fs.Int64Var(&opts.DepartmentID, "department", 0, "Department id")
	fs.StringVar(&opts.PIN, "pin", "", "New PIN (4 digits)")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false,
		"Permit running against database hosts that do not look local")

	if err := fs.Parse(args); err != nil {
		return setPINOptions{}, err
	}
	if (opts.EmployeeID > 0) == (opts.DepartmentID > 0) {
		return setPINOptions{}, errors.New("exactly one of --employee or --department is required")
	}
	opts.PIN = strings.TrimSpace(opts.PIN)
	if !validPIN(opts.PIN) {
		return setPINOptions{}, errors.New("--pin must be exactly 4 digits")
	}
	return opts, nil
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseClearSessionFlags(args []string) (clearSessionOptions, error) {
	fs := newFlagSet("clear-session")
	opts := clearSessionOptions{}
	fs.StringVar(&opts.ContextID, "context", "", "Browser context id (kiosk_ctx cookie value)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return clearSessionOptions{}, err
	}
	opts.ContextID = strings.TrimSpace(opts.ContextID)
	if opts.ContextID == "" {
		return clearSessionOptions{}, errors.New("--context is required")
	}
	return opts, nil
}

func describeDatabase(cfg config.DBConfig) string {
	return fmt.Sprintf("database %q on %s:%d", cfg.Name, cfg.Host, cfg.Port)
}
