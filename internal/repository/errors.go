package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrInvalid is a row rejected by a table constraint.
	ErrInvalid = errors.New("invalid row")
)
