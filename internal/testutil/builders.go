package testutil

import (
	"context"
	"database/sql"
	"time"
)

// EmployeeBuilder inserts an employee row for integration tests.
type EmployeeBuilder struct {
	name         string
	role         string
	pin          string
	departmentID *int64
	active       bool
}

// NewEmployee returns a builder for an active user with no PIN.
func NewEmployee(name string) *EmployeeBuilder {
	return &EmployeeBuilder{name: name, role: "user", active: true}
}

// WithRole sets the stored role string.
func (b *EmployeeBuilder) WithRole(role string) *EmployeeBuilder {
	b.role = role
	return b
}

// WithPIN stores pin hashed with pgcrypto bcrypt.
func (b *EmployeeBuilder) WithPIN(pin string) *EmployeeBuilder {
	b.pin = pin
	return b
}

// InDepartment links the employee to a department.
func (b *EmployeeBuilder) InDepartment(id int64) *EmployeeBuilder {
	b.departmentID = &id
	return b
}

// Inactive marks the employee disabled.
func (b *EmployeeBuilder) Inactive() *EmployeeBuilder {
	b.active = false
	return b
}

// Insert writes the employee and returns its id.
func (b *EmployeeBuilder) Insert(t TestingTB, db *sql.DB) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO employees (name, role, pin, department_id, is_active)
		VALUES ($1, $2, CASE WHEN $3 = '' THEN NULL ELSE crypt($3, gen_salt('bf')) END, $4, $5)
		RETURNING id
	`, b.name, b.role, b.pin, b.departmentID, b.active).Scan(&id)
	if err != nil {
		t.Fatalf("insert employee %q: %v", b.name, err)
	}
	return id
}

// InsertDepartment writes a department with an optional general PIN and returns its id.
func InsertDepartment(t TestingTB, db *sql.DB, name, generalPIN string, active bool) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO departments (name, general_pin, is_active)
		VALUES ($1, CASE WHEN $2 = '' THEN NULL ELSE crypt($2, gen_salt('bf')) END, $3)
		RETURNING id
	`, name, generalPIN, active).Scan(&id)
	if err != nil {
		t.Fatalf("insert department %q: %v", name, err)
	}
	return id
}

// VisitBuilder inserts a visit row for integration tests.
type VisitBuilder struct {
	employeeID int64
	visitor    string
	entry      time.Time
	exit       *time.Time
	system     bool
	notes      *string
}

// NewVisit returns a builder for an open visit hosted by employeeID.
func NewVisit(employeeID int64, entry time.Time) *VisitBuilder {
	return &VisitBuilder{employeeID: employeeID, visitor: "Jan Kowalski", entry: entry}
}

// WithVisitor sets the visitor name.
func (b *VisitBuilder) WithVisitor(name string) *VisitBuilder {
	b.visitor = name
	return b
}

// WithNotes sets the free-text notes.
func (b *VisitBuilder) WithNotes(notes string) *VisitBuilder {
	b.notes = &notes
	return b
}

// ExitedAt closes the visit manually at t.
func (b *VisitBuilder) ExitedAt(t time.Time) *VisitBuilder {
	b.exit = &t
	return b
}

// SystemExitedAt closes the visit as an automatic exit at t.
func (b *VisitBuilder) SystemExitedAt(t time.Time) *VisitBuilder {
	b.exit = &t
	b.system = true
	return b
}

// Insert writes the visit and returns its id.
func (b *VisitBuilder) Insert(t TestingTB, db *sql.DB) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO visits (employee_id, visitor_name, entry_time, exit_time, is_system_exit, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, b.employeeID, b.visitor, b.entry.UTC(), b.exit, b.system, b.notes).Scan(&id)
	if err != nil {
		t.Fatalf("insert visit: %v", err)
	}
	return id
}

// VisitExit reads exit_time and is_system_exit for a visit.
func VisitExit(t TestingTB, db *sql.DB, id int64) (*time.Time, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		exit   sql.NullTime
		system bool
	)
	if err := db.QueryRowContext(ctx,
		`SELECT exit_time, is_system_exit FROM visits WHERE id = $1`, id,
	).Scan(&exit, &system); err != nil {
		t.Fatalf("read visit %d: %v", id, err)
	}
	if !exit.Valid {
		return nil, system
	}
	at := exit.Time
	return &at, system
}
