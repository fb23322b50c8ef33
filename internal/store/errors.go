package store

import "errors"

var (
	// ErrRowExists means the identity already holds an active reservation.
	ErrRowExists = errors.New("active reservation already exists")
	ErrNotFound  = errors.New("not found")
)
