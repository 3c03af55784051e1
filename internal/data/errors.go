package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Credential repository sentinels.
	ErrPINFormat          = errors.New("pin must be exactly 4 digits")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrDepartmentNotFound = errors.New("department not found")
)
