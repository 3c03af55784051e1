package ports

import (
	"context"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
)

// VisitRepository is the slice of the visit store used by auto-exit.
type VisitRepository interface {
	// CloseOpenInWindow sets exit_time and is_system_exit on every open visit
	// whose entry_time falls in the request window, returning rows affected.
	CloseOpenInWindow(ctx context.Context, req model.CloseOpenVisitsRequest) (int64, error)
	// ListOpen returns every visit with a null exit_time.
	ListOpen(ctx context.Context) ([]model.Visit, error)
	// UpsertClosed writes the given visits in one batch, preserving all
	// columns, and only where exit_time is still null. Returns rows written.
	UpsertClosed(ctx context.Context, visits []model.Visit) (int64, error)
	// ListSystemExits returns visits closed by the system in a time range.
	ListSystemExits(ctx context.Context, opts model.SystemExitListOptions) ([]model.Visit, error)
}
