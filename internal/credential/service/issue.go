package service

import (
	"context"
	"strings"
	"time"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/credential/tracer"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/middleware/requesttime"
)

// Issue hashes the payload, stores it, commits an ACTIVE record to the ledger
// and mirrors it to the cache.
//
// Nothing is committed to the ledger unless the blob store accepted the
// payload; any failure up to and including the ledger commit returns an
// *models.IssuanceAbortedError naming the stage. A stored blob is left in
// place when the ledger commit fails. The cache write is best-effort.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (result *models.IssueResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrSubjectID, tracer.HashSubjectID(req.Subject.ID)),
		tracer.Int64(tracer.AttrPayloadSize, int64(len(req.Payload))),
	)
	defer func() {
		warnings := 0
		if result != nil {
			warnings = len(result.Warnings)
		}
		s.observe("issue", start, warnings, err)
		span.End(err)
	}()

	if err := validateIssueRequest(req); err != nil {
		return nil, err
	}

	if s.requireCache {
		if err := s.precheckCache(ctx); err != nil {
			s.logFailure(ctx, "issuance aborted: cache unavailable", err)
			span.SetAttributes(tracer.String(tracer.AttrStage, string(models.StageCachePrecheck)))
			return nil, &models.IssuanceAbortedError{Stage: models.StageCachePrecheck, Err: err}
		}
	}

	certID, err := s.newID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate certificate id")
	}
	span.SetAttributes(tracer.String(tracer.AttrCertID, certID.String()))

	// The digest is taken over the same slice handed to the blob store.
	contentHash := models.ContentDigest(req.Payload)

	contentID, err := s.storeBlob(ctx, req.Payload, models.StoreHint{CertID: certID, FileName: req.FileName})
	if err != nil {
		s.logFailure(ctx, "issuance aborted: blob store", err, "cert_id", certID.String())
		span.SetAttributes(tracer.String(tracer.AttrStage, string(models.StageStorage)))
		return nil, &models.IssuanceAbortedError{Stage: models.StageStorage, Err: err}
	}
	span.SetAttributes(tracer.String(tracer.AttrContentID, contentID))

	record := models.CertificateRecord{
		CertID:      certID,
		SubjectID:   req.Subject.ID,
		SubjectName: req.Subject.Name,
		Major:       req.Subject.Major,
		Program:     req.Subject.Program,
		ContentID:   contentID,
		ContentHash: contentHash,
		Status:      models.StatusActive,
		IssuedAt:    requesttime.Now(ctx).UTC().Truncate(time.Millisecond),
	}

	if err := s.submit(ctx, models.OpIssue, record); err != nil {
		s.logFailure(ctx, "issuance aborted: ledger", err,
			"cert_id", certID.String(),
			"content_id", contentID,
		)
		span.SetAttributes(tracer.String(tracer.AttrStage, string(models.StageLedger)))
		return nil, &models.IssuanceAbortedError{Stage: models.StageLedger, Err: err}
	}

	result = &models.IssueResult{Record: record}
	result.Warnings = appendWarning(result.Warnings, s.cacheStep(ctx, models.StepCacheUpsert, certID, func(ctx context.Context) error {
		return s.cache.Upsert(ctx, record)
	}))
	if len(result.Warnings) > 0 {
		span.AddEvent(tracer.EventCacheDegraded)
	}

	s.emit(ctx, span, events.Event{
		Type:        events.TypeIssued,
		CertID:      record.CertID,
		Status:      record.Status,
		ContentID:   record.ContentID,
		ContentHash: record.ContentHash,
		Timestamp:   record.IssuedAt,
	})

	s.logger.InfoContext(ctx, "certificate issued",
		"cert_id", certID.String(),
		"content_id", contentID,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

func (s *Service) precheckCache(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeouts.Cache)
	defer cancel()
	if err := s.cache.Ping(cctx); err != nil {
		s.recordCacheFailure(ctx, err)
		return translateCacheError(err)
	}
	s.recordCacheSuccess(ctx)
	return nil
}

func (s *Service) storeBlob(ctx context.Context, payload []byte, hint models.StoreHint) (string, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanBlobStore)
	bctx, cancel := context.WithTimeout(ctx, s.timeouts.Blob)
	defer cancel()

	contentID, err := s.blobs.Store(bctx, payload, hint)
	span.End(err)
	if err != nil {
		return "", translateStoreError(err)
	}
	return contentID, nil
}

func (s *Service) submit(ctx context.Context, op models.Operation, record models.CertificateRecord) error {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerSubmit,
		tracer.String(tracer.AttrOperation, string(op)),
		tracer.String(tracer.AttrCertID, record.CertID.String()),
	)
	lctx, cancel := context.WithTimeout(ctx, s.timeouts.Ledger)
	defer cancel()

	err := s.ledger.Submit(lctx, op, record)
	span.End(err)
	return translateLedgerError(err, record.CertID)
}

func (s *Service) query(ctx context.Context, certID models.CertID) (models.CertificateRecord, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerQuery, tracer.String(tracer.AttrCertID, certID.String()))
	lctx, cancel := context.WithTimeout(ctx, s.timeouts.Ledger)
	defer cancel()

	record, err := s.ledger.Query(lctx, certID)
	span.End(err)
	if err != nil {
		return models.CertificateRecord{}, translateLedgerError(err, certID)
	}
	return record, nil
}

func validateIssueRequest(req models.IssueRequest) error {
	switch {
	case strings.TrimSpace(req.Subject.ID) == "":
		return invalidInput("subject id (nim) is required")
	case strings.TrimSpace(req.Subject.Name) == "":
		return invalidInput("subject name is required")
	case strings.TrimSpace(req.Subject.Major) == "":
		return invalidInput("major is required")
	case strings.TrimSpace(req.Subject.Program) == "":
		return invalidInput("program is required")
	case len(req.Payload) == 0:
		return invalidInput("certificate payload is empty")
	}
	return nil
}
