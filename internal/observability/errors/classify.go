// Package errors derives low-cardinality error labels for metrics and failure notices.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
)

// Classify returns a label for err. Context errors and driver errors win over
// the application code wrapped around them, because a sweep failure is always
// an auto_exit_update_failure and the cause is what an operator needs.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return "pg_" + pgErr.Code
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return "network"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return typeName(err)
}

// typeName falls back to the innermost concrete type, e.g. "errors_errorstring".
func typeName(err error) string {
	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
