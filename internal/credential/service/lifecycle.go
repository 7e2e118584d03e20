package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/credential/tracer"
	"certledger/internal/sentinel"
	"certledger/pkg/platform/middleware/requesttime"
)

// MaxRevocationReasonLength bounds the free-text revocation reason.
const MaxRevocationReasonLength = 512

// Revoke moves an ACTIVE certificate to REVOKED on the ledger, then mirrors
// the change to the cache.
//
// Errors: not_found when the ledger has no such record, invalid_transition when
// it is not ACTIVE, ledger_unavailable or ledger_conflict when the write fails.
func (s *Service) Revoke(ctx context.Context, certID models.CertID, reason string) (result *models.MutationResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanRevoke, tracer.String(tracer.AttrCertID, certID.String()))
	defer func() {
		s.observe("revoke", start, warningCount(result), err)
		span.End(err)
	}()

	reason = strings.TrimSpace(reason)
	if certID.IsZero() {
		return nil, invalidInput("cert_id is required")
	}
	if len(reason) > MaxRevocationReasonLength {
		return nil, invalidInput("reason exceeds %d characters", MaxRevocationReasonLength)
	}

	// Read-check-write on one certificate is serialized within this process.
	defer s.locks.Lock(certID.String())()

	current, err := s.query(ctx, certID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(models.StatusRevoked) {
		return nil, invalidTransition(certID, current.Status, models.StatusRevoked)
	}

	// The ledger re-checks the transition, so a concurrent revoke loses there.
	if err := s.submit(ctx, models.OpRevoke, models.CertificateRecord{
		CertID:           certID,
		Status:           models.StatusRevoked,
		RevocationReason: reason,
	}); err != nil {
		s.logFailure(ctx, "revoke failed", err, "cert_id", certID.String())
		return nil, err
	}

	revoked := current
	revoked.Status = models.StatusRevoked
	revoked.RevocationReason = reason

	result = &models.MutationResult{CertID: certID, Status: models.StatusRevoked}
	result.Warnings = appendWarning(result.Warnings, s.mirrorStatus(ctx, revoked, models.StatusChange{
		Status:           models.StatusRevoked,
		RevocationReason: reason,
		At:               requesttime.Now(ctx),
	}))

	s.emit(ctx, span, events.Event{
		Type:             events.TypeRevoked,
		CertID:           certID,
		Status:           models.StatusRevoked,
		RevocationReason: reason,
	})
	s.logger.InfoContext(ctx, "certificate revoked",
		"cert_id", certID.String(),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// Supersede marks oldID SUPERSEDED by newID and then confirms newID ACTIVE,
// both on the ledger.
//
// Both records are read first so that a missing or terminal record fails
// before anything is written. When the first write commits and the second
// fails, the first is not rolled back: the result is a
// *models.PartialSupersedeError and the caller must retry the activation.
func (s *Service) Supersede(ctx context.Context, oldID, newID models.CertID) (result *models.MutationResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanSupersede,
		tracer.String(tracer.AttrCertID, oldID.String()),
		tracer.String(tracer.AttrNewCertID, newID.String()),
	)
	defer func() {
		s.observe("supersede", start, warningCount(result), err)
		span.End(err)
	}()

	if oldID.IsZero() || newID.IsZero() {
		return nil, invalidInput("both certificate ids are required")
	}
	if oldID == newID {
		return nil, invalidInput("a certificate cannot supersede itself")
	}

	defer s.locks.Lock(oldID.String())()

	oldRecord, err := s.query(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newRecord, err := s.query(ctx, newID)
	if err != nil {
		return nil, err
	}
	if !oldRecord.Status.CanTransitionTo(models.StatusSuperseded) {
		return nil, invalidTransition(oldID, oldRecord.Status, models.StatusSuperseded)
	}
	if !newRecord.Status.CanTransitionTo(models.StatusActive) {
		return nil, invalidTransition(newID, newRecord.Status, models.StatusActive)
	}

	if err := s.submit(ctx, models.OpSupersede, models.CertificateRecord{
		CertID:       oldID,
		Status:       models.StatusSuperseded,
		SupersededBy: newID,
	}); err != nil {
		s.logFailure(ctx, "supersede failed", err, "cert_id", oldID.String(), "new_cert_id", newID.String())
		return nil, err
	}

	superseded := oldRecord
	superseded.Status = models.StatusSuperseded
	superseded.SupersededBy = newID
	now := requesttime.Now(ctx)

	// The first write is committed: mirror and announce it whatever happens next.
	var warnings []models.Warning
	warnings = appendWarning(warnings, s.mirrorStatus(ctx, superseded, models.StatusChange{
		Status:       models.StatusSuperseded,
		SupersededBy: newID,
		At:           now,
	}))
	s.emit(ctx, span, events.Event{
		Type:         events.TypeSuperseded,
		CertID:       oldID,
		Status:       models.StatusSuperseded,
		SupersededBy: newID,
	})

	if err := s.submit(ctx, models.OpActivate, newRecord); err != nil {
		s.logFailure(ctx, "supersede partially applied", err,
			"cert_id", oldID.String(),
			"new_cert_id", newID.String(),
			"warnings", len(warnings),
		)
		return nil, &models.PartialSupersedeError{OldCertID: oldID, NewCertID: newID, Err: err, Warnings: warnings}
	}

	warnings = appendWarning(warnings, s.cacheStep(ctx, models.StepCacheUpsert, newID, func(ctx context.Context) error {
		return s.cache.Upsert(ctx, newRecord)
	}))

	s.logger.InfoContext(ctx, "certificate superseded",
		"cert_id", oldID.String(),
		"new_cert_id", newID.String(),
		"warnings", len(warnings),
	)
	return &models.MutationResult{CertID: oldID, Status: models.StatusSuperseded, Warnings: warnings}, nil
}

// mirrorStatus applies change to the cached row, falling back to a full
// upsert of the ledger record when the row is missing.
func (s *Service) mirrorStatus(ctx context.Context, record models.CertificateRecord, change models.StatusChange) *models.Warning {
	return s.cacheStep(ctx, models.StepCacheMark, record.CertID, func(ctx context.Context) error {
		err := s.cache.MarkStatus(ctx, record.CertID, change)
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.cache.Upsert(ctx, record)
		}
		return err
	})
}

func warningCount(result *models.MutationResult) int {
	if result == nil {
		return 0
	}
	return len(result.Warnings)
}
