package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
)

type sweepFault struct{}

func (sweepFault) Error() string { return "sweep fault" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: apperrors.AutoExitUpdateFailure(context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: fmt.Errorf("sweep: %w", context.Canceled), want: "canceled"},
		{name: "postgres", err: apperrors.AutoExitUpdateFailure(&pgconn.PgError{Code: "40001"}), want: "pg_40001"},
		{name: "app code", err: apperrors.InvalidCredential(), want: "invalid_credential"},
		{name: "type fallback", err: fmt.Errorf("run: %w", sweepFault{}), want: "errors_sweepfault"},
		{name: "plain", err: errors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
