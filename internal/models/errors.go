package models

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrStateConflict is returned when a compare-and-swap on a payout state loses.
	ErrStateConflict = errors.New("payout state changed concurrently")
	ErrDuplicate     = errors.New("record already exists")
)
