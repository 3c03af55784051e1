package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "visit not found"},
			want: "visit not found",
		},
		{
			name: "error with cause",
			err:  AutoExitUpdateFailure(errors.New("connection reset")),
			want: "auto-exit update failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("login: %w", InvalidCredential())
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatal("expected wrapped InvalidCredential to match sentinel")
	}
	if errors.Is(Validation("bad"), ErrInvalidCredential) {
		t.Fatal("did not expect validation error to match sentinel")
	}
	if !IsInvalidCredential(err) {
		t.Fatal("expected IsInvalidCredential to be true")
	}
}

func TestWrap_NilError(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Fatal("expected nil for nil cause")
	}
}

func TestTaxonomyCodes(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{StorageCorrupt(cause, "ctx-1"), ErrCodeStorageCorrupt},
		{RemoteSignOutFailure(cause), ErrCodeRemoteSignOut},
		{AutoExitUpdateFailure(cause), ErrCodeAutoExitUpdate},
		{AuditLogFailure(cause), ErrCodeAuditLog},
		{InvalidCredential(), ErrCodeInvalidCredential},
	}
	for _, tt := range tests {
		if got := GetCode(tt.err); got != tt.want {
			t.Errorf("GetCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
		if tt.want != ErrCodeInvalidCredential && !errors.Is(tt.err, cause) {
			t.Errorf("expected %v to unwrap to cause", tt.err)
		}
	}
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique from detail",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (badge_number)=(12) already exists."},
			wantCode:  ErrCodeConflict,
			wantField: "badge_number",
		},
		{
			name:     "foreign key",
			err:      &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, TableName: "visits"},
			wantCode: ErrCodeValidation,
		},
		{
			name:      "not null",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "employee_id"},
			wantCode:  ErrCodeValidation,
			wantField: "employee_id",
		},
		{
			name:     "other pg error",
			err:      &pgconn.PgError{Code: pgerrcode.DiskFull},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Fatalf("MapDBError() code = %q, want %q", got, tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Fatalf("MapDBError() field = %q, want %q", got, tt.wantField)
			}
		})
	}

	if MapDBError(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
	plain := errors.New("plain")
	if MapDBError(plain) != plain {
		t.Fatal("expected unrecognised error to pass through")
	}
}
