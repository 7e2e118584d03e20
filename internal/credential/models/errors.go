package models

import (
	"fmt"

	dErrors "certledger/pkg/domain-errors"
)

// Targets for errors.Is; domain errors match by code.
var (
	ErrStorageUnavailable = dErrors.New(dErrors.CodeStorageUnavailable, "blob store unavailable")
	ErrLedgerUnavailable  = dErrors.New(dErrors.CodeLedgerUnavailable, "ledger unavailable")
	ErrLedgerConflict     = dErrors.New(dErrors.CodeLedgerConflict, "ledger rejected conflicting write")
	ErrCacheUnavailable   = dErrors.New(dErrors.CodeCacheUnavailable, "cache unavailable")
	ErrNotFound           = dErrors.New(dErrors.CodeNotFound, "certificate not found")
	ErrInvalidTransition  = dErrors.New(dErrors.CodeInvalidTransition, "invalid status transition")
	ErrIntegrityMismatch  = dErrors.New(dErrors.CodeIntegrityMismatch, "content hash mismatch")
	ErrPartialSupersede   = dErrors.New(dErrors.CodePartialSupersede, "supersede partially applied")
)

// AbortStage names the issuance step that failed before the ledger commit.
type AbortStage string

const (
	StageCachePrecheck AbortStage = "cache_precheck"
	StageStorage       AbortStage = "storage"
	StageLedger        AbortStage = "ledger"
)

// IssuanceAbortedError reports an issuance that committed nothing to the ledger.
// Err carries the coded domain error for the failing stage.
type IssuanceAbortedError struct {
	Stage AbortStage
	Err   error
}

func (e *IssuanceAbortedError) Error() string {
	return fmt.Sprintf("issuance aborted at %s: %v", e.Stage, e.Err)
}

func (e *IssuanceAbortedError) Unwrap() error {
	return e.Err
}

// PartialSupersedeError reports that the old certificate was marked SUPERSEDED
// but the replacement could not be confirmed ACTIVE. Nothing was rolled back.
// Warnings holds cache steps that failed while mirroring the old record.
type PartialSupersedeError struct {
	OldCertID CertID
	NewCertID CertID
	Err       error
	Warnings  []Warning
}

func (e *PartialSupersedeError) Error() string {
	return fmt.Sprintf("supersede %s -> %s partially applied: %v", e.OldCertID, e.NewCertID, e.Err)
}

// Unwrap exposes a partial_supersede domain error wrapping the cause.
func (e *PartialSupersedeError) Unwrap() error {
	return &dErrors.Error{
		Code:    dErrors.CodePartialSupersede,
		Message: fmt.Sprintf("%s superseded but %s not confirmed active; retry activation", e.OldCertID, e.NewCertID),
		Err:     e.Err,
	}
}
