package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var _ ports.CredentialLookup = (*EmployeeRepo)(nil)

var pinDigits = regexp.MustCompile(`^[0-9]{4}$`)

// EmployeeRepo resolves PINs and manages stored PIN hashes.
// Hashes are bcrypt so that pgcrypto's crypt() can verify them in-database.
type EmployeeRepo struct {
	DB *sql.DB
	// Cost is the bcrypt cost for new hashes; zero uses bcrypt.DefaultCost.
	Cost int
}

// NewEmployeeRepo creates a new EmployeeRepo.
func NewEmployeeRepo(db *sql.DB) *EmployeeRepo {
	return &EmployeeRepo{DB: db}
}

// LookupPIN calls verify_employee_pin and maps the first row. Employee PINs
// take priority over department PINs.
func (r *EmployeeRepo) LookupPIN(ctx context.Context, pin string) (ports.CredentialMatch, bool, error) {
	var (
		id, name, role, userType string
		department               sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, role, department_name, user_type FROM verify_employee_pin($1)`, pin,
	).Scan(&id, &name, &role, &department, &userType)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.CredentialMatch{}, false, nil
	}
	if err != nil {
		return ports.CredentialMatch{}, false, apperrors.MapDBError(err)
	}

	parsed, ok := domainauth.ParseRole(role)
	if !ok {
		return ports.CredentialMatch{}, false, nil
	}

	identity := domainauth.Identity{ID: id, Name: name, Role: parsed}
	if department.Valid && department.String != "" {
		d := department.String
		identity.Department = &d
	}
	return ports.CredentialMatch{Identity: identity, UserType: model.LoginUserType(userType)}, true, nil
}

// SetEmployeePIN stores a new PIN hash for the employee.
func (r *EmployeeRepo) SetEmployeePIN(ctx context.Context, employeeID int64, pin string) error {
	return r.setPIN(ctx, `UPDATE employees SET pin = $1 WHERE id = $2`, employeeID, pin, ErrEmployeeNotFound)
}

// SetDepartmentPIN stores a new general PIN hash for the department.
func (r *EmployeeRepo) SetDepartmentPIN(ctx context.Context, departmentID int64, pin string) error {
	return r.setPIN(ctx, `UPDATE departments SET general_pin = $1 WHERE id = $2`, departmentID, pin, ErrDepartmentNotFound)
}

func (r *EmployeeRepo) setPIN(ctx context.Context, query string, id int64, pin string, notFound error) error {
	if !pinDigits.MatchString(pin) {
		return ErrPINFormat
	}
	hash, err := r.hash(pin)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, hash, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (r *EmployeeRepo) hash(pin string) (string, error) {
	cost := r.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(b), nil
}
