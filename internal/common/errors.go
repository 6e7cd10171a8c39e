// Package common defines shared sentinel errors used across the storage and
// service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrConditionalCheckFailed is returned by the target store when an
	// update's version precondition does not hold (the record is missing or
	// was written with a different migration version).
	ErrConditionalCheckFailed = errors.New("conditional check failed")
)
