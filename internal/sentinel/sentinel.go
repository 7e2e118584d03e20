package sentinel

import (
	"context"
	"errors"
)

// Sentinel dependency errors. Blob store, ledger and cache clients return these
// (optionally wrapped) so the lifecycle service can translate them exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)

// IsTimeout reports whether err came from an expired or cancelled call context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
