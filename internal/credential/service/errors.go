package service

import (
	"errors"
	"fmt"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
	dErrors "certledger/pkg/domain-errors"
)

// Dependency errors are translated to domain errors exactly once, here.

type errorMapping struct {
	sentinel error
	code     dErrors.Code
	msg      string
}

// ledgerErrorMappings is checked in order; first match wins.
var ledgerErrorMappings = []errorMapping{
	{sentinel.ErrNotFound, dErrors.CodeNotFound, "certificate %s not found"},
	{sentinel.ErrInvalidState, dErrors.CodeInvalidTransition, "certificate %s cannot make this transition"},
	{sentinel.ErrConflict, dErrors.CodeLedgerConflict, "ledger rejected conflicting write for %s"},
	{sentinel.ErrInvalidInput, dErrors.CodeInvalidInput, "ledger rejected record %s"},
}

func translateLedgerError(err error, certID models.CertID) error {
	if err == nil {
		return nil
	}
	for _, m := range ledgerErrorMappings {
		if errors.Is(err, m.sentinel) {
			return dErrors.Classify(err, m.code, fmt.Sprintf(m.msg, certID))
		}
	}
	if sentinel.IsTimeout(err) {
		return dErrors.Classify(err, dErrors.CodeLedgerUnavailable, "ledger call timed out")
	}
	return dErrors.Classify(err, dErrors.CodeLedgerUnavailable, "ledger unavailable")
}

// translateStoreError classifies every blob write failure as unavailability.
func translateStoreError(err error) error {
	if sentinel.IsTimeout(err) {
		return dErrors.Classify(err, dErrors.CodeStorageUnavailable, "blob store call timed out")
	}
	return dErrors.Classify(err, dErrors.CodeStorageUnavailable, "blob store unavailable")
}

func translateBlobError(err error, contentID string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Classify(err, dErrors.CodeNotFound, fmt.Sprintf("content %s not found in blob store", contentID))
	}
	if sentinel.IsTimeout(err) {
		return dErrors.Classify(err, dErrors.CodeStorageUnavailable, "blob store call timed out")
	}
	return dErrors.Classify(err, dErrors.CodeStorageUnavailable, "blob store unavailable")
}

func translateCacheError(err error) error {
	if err == nil {
		return nil
	}
	if sentinel.IsTimeout(err) {
		return dErrors.Classify(err, dErrors.CodeCacheUnavailable, "cache call timed out")
	}
	return dErrors.Classify(err, dErrors.CodeCacheUnavailable, "cache unavailable")
}

func invalidInput(format string, args ...any) error {
	return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf(format, args...))
}

func invalidTransition(certID models.CertID, from, to models.Status) error {
	return dErrors.New(dErrors.CodeInvalidTransition,
		fmt.Sprintf("certificate %s is %s and cannot become %s", certID, from, to))
}
