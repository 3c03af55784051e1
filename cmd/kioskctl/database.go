package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kmn/visitor-kiosk/internal/bootstrap"
	"github.com/kmn/visitor-kiosk/internal/data"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	"github.com/kmn/visitor-kiosk/internal/facilitytime"
	"github.com/kmn/visitor-kiosk/internal/service"
)

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}

	remote, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "drop and recreate the public schema")
	if err != nil {
		return err
	}
	confirmOpts := dbResetConfirmOptions{yes: opts.Yes, target: describeDatabase(cmdCtx.Config.Postgres)}
	if remote {
		confirmOpts.remoteHost = cmdCtx.Config.Postgres.Host
	}
	if confirmErr := confirmAction(confirmOpts, "reset database schema"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", cmdCtx.Config.Postgres.Name)
		if resetErr := cmdCtx.resetDatabase(ctx, db); resetErr != nil {
			return resetErr
		}
		cmdCtx.Logger.Info("re-running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		cmdCtx.Logger.Info("database reset completed successfully")
		return nil
	})
}

func runSweep(cmdCtx *commandContext, args []string) error {
	opts, err := parseSweepFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		sweeps, buildErr := newSweepService(cmdCtx, db)
		if buildErr != nil {
			return buildErr
		}
		result, sweepErr := sweeps.Sweep(ctx, service.TriggerCLI)
		if sweepErr != nil {
			return sweepErr
		}
		return writef(os.Stdout, "%s (closed %d)\n", result.Message, result.Count)
	})
}

func runSystemExits(cmdCtx *commandContext, args []string) error {
	opts, err := parseSystemExitsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		sweeps, buildErr := newSweepService(cmdCtx, db)
		if buildErr != nil {
			return buildErr
		}
		now := time.Now()
		visits, listErr := sweeps.SystemExits(ctx, model.SystemExitListOptions{
			From:  now.AddDate(0, 0, -opts.Days),
			To:    now,
			Limit: opts.Limit,
		})
		if listErr != nil {
			return listErr
		}
		return printSystemExits(visits)
	})
}

func printSystemExits(visits []model.Visit) error {
	if len(visits) == 0 {
		return writeln(os.Stdout, "(no system exits)")
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tVISITOR\tENTRY\tEXIT"); err != nil {
		return err
	}
	for _, v := range visits {
		exit := "-"
		if v.ExitTime != nil {
			exit = v.ExitTime.Format(time.RFC3339)
		}
		if err := writef(tw, "%d\t%s\t%s\t%s\n", v.ID, v.VisitorName, v.EntryTime.Format(time.RFC3339), exit); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return writef(os.Stdout, "\nTotal: %d\n", len(visits))
}

func newSweepService(cmdCtx *commandContext, db *sql.DB) (*service.AutoExitSweepService, error) {
	zone, err := facilitytime.Load(cmdCtx.Config.AutoExit.SweepTimezone)
	if err != nil {
		return nil, fmt.Errorf("sweep timezone: %w", err)
	}
	return service.NewAutoExitSweepService(service.AutoExitSweepServiceOptions{
		Visits:     data.NewVisitRepo(db),
		Zone:       zone,
		CutoffHour: cmdCtx.Config.Facility.CutoffHour,
		Config:     cmdCtx.Config.AutoExit,
		Logger:     cmdCtx.Logger,
	})
}

func runSetPIN(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetPINFlags(args)
	if err != nil {
		return err
	}
	if _, guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote, "change a login PIN"); guardErr != nil {
		return guardErr
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewEmployeeRepo(db)
		if opts.EmployeeID > 0 {
			if setErr := repo.SetEmployeePIN(ctx, opts.EmployeeID, opts.PIN); setErr != nil {
				return fmt.Errorf("set employee pin: %w", setErr)
			}
			cmdCtx.Logger.Info("employee pin updated", "employee_id", opts.EmployeeID)
			return nil
		}
		if setErr := repo.SetDepartmentPIN(ctx, opts.DepartmentID, opts.PIN); setErr != nil {
			return fmt.Errorf("set department pin: %w", setErr)
		}
		cmdCtx.Logger.Info("department pin updated", "department_id", opts.DepartmentID)
		return nil
	})
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) (bool, error) {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			host,
		)
	}
	if err := requireRemoteHostConfirmation(action, host); err != nil {
		return true, err
	}
	return true, nil
}

func (cmdCtx *commandContext) resetDatabase(ctx context.Context, db *sql.DB) error {
	if cmdCtx == nil {
		return errors.New("command context is required")
	}
	for _, stmt := range resetStatements(cmdCtx.Config.Postgres.User) {
		cmdCtx.Logger.DebugContext(ctx, "executing reset statement", "sql", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func resetStatements(user string) []string {
	statements := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if user = strings.TrimSpace(user); user != "" && !strings.EqualFold(user, "public") {
		statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(user))
	}
	return statements
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
