package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kmn/visitor-kiosk/internal/data/pgxutil"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var _ ports.VisitRepository = (*VisitRepo)(nil)

// Advisory lock namespace for auto-exit writes.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockAutoExitMajor = 2000
	advisoryLockAutoExitSweep = 1
)

const visitColumns = `id, entry_time, exit_time, is_system_exit, employee_id, visitor_name,
	purpose_id, badge_id, notes, signature, exit_employee_id, created_at`

// VisitRepo provides the visit queries used by auto-exit.
type VisitRepo struct {
	DB *sql.DB
}

// NewVisitRepo creates a new VisitRepo.
func NewVisitRepo(db *sql.DB) *VisitRepo {
	return &VisitRepo{DB: db}
}

// CloseOpenInWindow closes every open visit whose entry_time lies in
// [Window.Start, Window.End) in a single conditional update. Visits that
// entered after ExitTime are skipped so no exit precedes its entry; the sweep
// closes them at the end of their day.
func (r *VisitRepo) CloseOpenInWindow(ctx context.Context, req model.CloseOpenVisitsRequest) (int64, error) {
	if !req.Window.Start.Before(req.Window.End) {
		return 0, apperrors.Validation("window start must be before end")
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE visits
		SET exit_time = $1, is_system_exit = TRUE
		WHERE exit_time IS NULL
		  AND entry_time >= $2
		  AND entry_time < $3
		  AND entry_time <= $1
	`, req.ExitTime.UTC(), req.Window.Start.UTC(), req.Window.End.UTC())
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListOpen returns every visit without an exit time, oldest first.
func (r *VisitRepo) ListOpen(ctx context.Context) ([]model.Visit, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE exit_time IS NULL
		ORDER BY entry_time, id
	`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return scanVisits(rows)
}

// UpsertClosed writes visits in one pgx batch inside a transaction. Rows that
// gained an exit time since they were read are left alone. When another
// sweep holds the advisory lock nothing is written.
func (r *VisitRepo) UpsertClosed(ctx context.Context, visits []model.Visit) (int64, error) {
	if len(visits) == 0 {
		return 0, nil
	}

	var written int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockAutoExitMajor, advisoryLockAutoExitSweep)
			if err != nil {
				return err
			}
			if !locked {
				return nil
			}

			batch := &pgx.Batch{}
			for _, v := range visits {
				batch.Queue(`
					INSERT INTO visits (`+visitColumns+`)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
					ON CONFLICT (id) DO UPDATE SET
						exit_time = EXCLUDED.exit_time,
						is_system_exit = EXCLUDED.is_system_exit,
						employee_id = EXCLUDED.employee_id,
						visitor_name = EXCLUDED.visitor_name,
						purpose_id = EXCLUDED.purpose_id,
						badge_id = EXCLUDED.badge_id,
						notes = EXCLUDED.notes,
						signature = EXCLUDED.signature,
						exit_employee_id = EXCLUDED.exit_employee_id
					WHERE visits.exit_time IS NULL
				`,
					v.ID, v.EntryTime.UTC(), utcPtr(v.ExitTime), v.IsSystemExit, v.EmployeeID, v.VisitorName,
					v.PurposeID, v.BadgeID, v.Notes, v.Signature, v.ExitEmployeeID, v.CreatedAt.UTC(),
				)
			}

			results := tx.SendBatch(ctx, batch)
			for range visits {
				tag, err := results.Exec()
				if err != nil {
					_ = results.Close()
					return fmt.Errorf("upsert visit: %w", err)
				}
				written += tag.RowsAffected()
			}
			return results.Close()
		},
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return written, nil
}

// ListSystemExits returns visits closed by the system with exit_time in [From, To).
func (r *VisitRepo) ListSystemExits(ctx context.Context, opts model.SystemExitListOptions) ([]model.Visit, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE is_system_exit
		  AND exit_time >= $1
		  AND exit_time < $2
		ORDER BY exit_time DESC, id DESC
		LIMIT $3
	`, opts.From.UTC(), opts.To.UTC(), opts.Limit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return scanVisits(rows)
}

func scanVisits(rows *sql.Rows) (out []model.Visit, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var v model.Visit
		if err := rows.Scan(
			&v.ID, &v.EntryTime, &v.ExitTime, &v.IsSystemExit, &v.EmployeeID, &v.VisitorName,
			&v.PurposeID, &v.BadgeID, &v.Notes, &v.Signature, &v.ExitEmployeeID, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
