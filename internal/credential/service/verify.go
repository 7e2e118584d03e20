package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"certledger/internal/credential/models"
	"certledger/internal/credential/tracer"
	"certledger/internal/sentinel"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/middleware/requesttime"
)

const (
	verifyCacheMissing = "cache_missing"
	verifyConsistent   = "consistent"
	verifyMismatch     = "cache_mismatch"
)

// Verify reads the ledger record and reconciles it with the cache.
//
// The returned view always carries the ledger copy. A cache that is down, or
// that has no row, yields CacheFound=false; a cached hash that differs from the
// ledger sets Mismatch. The cache is never used to answer on its own.
func (s *Service) Verify(ctx context.Context, certID models.CertID) (view *models.ReconciledView, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrCertID, certID.String()))
	defer func() {
		warnings := 0
		if view != nil {
			warnings = len(view.Warnings)
		}
		s.observe("verify", start, warnings, err)
		span.End(err)
	}()

	if certID.IsZero() {
		return nil, invalidInput("cert_id is required")
	}

	record, err := s.query(ctx, certID)
	if err != nil {
		return nil, err
	}

	view = &models.ReconciledView{Record: record}
	view.Warnings = appendWarning(view.Warnings, s.cacheStep(ctx, models.StepCacheRead, certID, func(ctx context.Context) error {
		cached, err := s.cache.FindByID(ctx, certID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		view.CacheFound = true
		view.CachedHash = cached.ContentHash
		view.Mismatch = cached.ContentHash != record.ContentHash
		view.StatusDrift = cached.Status != record.Status
		return nil
	}))

	outcome := verifyConsistent
	switch {
	case !view.CacheFound:
		view.Note = models.NoteCacheMissing
		outcome = verifyCacheMissing
	case view.Mismatch:
		view.Note = models.NoteCacheMismatch
		outcome = verifyMismatch
		s.logger.WarnContext(ctx, "cache hash differs from ledger",
			"cert_id", certID.String(),
			"ledger_hash", record.ContentHash,
			"cache_hash", view.CachedHash,
		)
	default:
		view.Note = models.NoteCacheConsistent
	}
	if s.metrics != nil {
		s.metrics.RecordVerifyOutcome(outcome)
	}
	span.SetAttributes(
		tracer.Bool(tracer.AttrCacheFound, view.CacheFound),
		tracer.Bool(tracer.AttrMismatch, view.Mismatch),
		tracer.Int64(tracer.AttrWarnings, int64(len(view.Warnings))),
	)
	return view, nil
}

// VerifyIntegrity re-fetches the payload from the blob store and recomputes
// its digest. A digest that differs from the ledger's contentHash is reported
// as integrity_mismatch and never repaired.
func (s *Service) VerifyIntegrity(ctx context.Context, certID models.CertID) (report *models.IntegrityReport, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanIntegrity, tracer.String(tracer.AttrCertID, certID.String()))
	defer func() {
		s.observe("verify_integrity", start, 0, err)
		span.End(err)
	}()

	if certID.IsZero() {
		return nil, invalidInput("cert_id is required")
	}

	record, err := s.query(ctx, certID)
	if err != nil {
		return nil, err
	}

	payload, err := s.fetchBlob(ctx, record.ContentID)
	if err != nil {
		s.logFailure(ctx, "integrity check could not fetch content", err,
			"cert_id", certID.String(),
			"content_id", record.ContentID,
		)
		return nil, err
	}

	computed := models.ContentDigest(payload)
	if computed != record.ContentHash {
		err := dErrors.New(dErrors.CodeIntegrityMismatch, fmt.Sprintf(
			"content %s hashes to %s but the ledger records %s", record.ContentID, computed, record.ContentHash))
		s.logFailure(ctx, "certificate content integrity mismatch", err,
			"cert_id", certID.String(),
			"content_id", record.ContentID,
		)
		return nil, err
	}

	return &models.IntegrityReport{
		CertID:       certID,
		ContentID:    record.ContentID,
		RecordedHash: record.ContentHash,
		ComputedHash: computed,
		Size:         len(payload),
		CheckedAt:    requesttime.Now(ctx).UTC(),
	}, nil
}

// List returns every ledger record.
func (s *Service) List(ctx context.Context) (records []models.CertificateRecord, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, 0, err) }()

	lctx, cancel := context.WithTimeout(ctx, s.timeouts.Ledger)
	defer cancel()
	records, err = s.ledger.QueryAll(lctx)
	if err != nil {
		return nil, translateLedgerError(err, "*")
	}
	return records, nil
}

// SubjectIndex is implemented by caches that can list a student's
// certificates without a ledger scan.
type SubjectIndex interface {
	FindBySubject(ctx context.Context, subjectID string) ([]models.CertificateRecord, error)
}

// FindBySubject lists the certificates issued to one student.
//
// When the cache keeps a subject index it supplies the candidate ids and each
// one is re-read from the ledger, so the records returned are never cache
// copies. Rows not yet mirrored are missed until Sync or Resync repairs them.
// Without an index, or when the index fails, the ledger is scanned instead.
func (s *Service) FindBySubject(ctx context.Context, subjectID string) (lookup *models.SubjectLookup, err error) {
	start := time.Now()
	defer func() {
		warnings := 0
		if lookup != nil {
			warnings = len(lookup.Warnings)
		}
		s.observe("find_by_subject", start, warnings, err)
	}()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, invalidInput("nim is required")
	}
	lookup = &models.SubjectLookup{SubjectID: subjectID}

	if index, ok := s.cache.(SubjectIndex); ok {
		var candidates []models.CertificateRecord
		warning := s.cacheStep(ctx, models.StepCacheSubject, "", func(ctx context.Context) error {
			var err error
			candidates, err = index.FindBySubject(ctx, subjectID)
			return err
		})
		if warning == nil {
			lookup.Source = models.LookupSourceCache
			for _, candidate := range candidates {
				record, err := s.query(ctx, candidate.CertID)
				if dErrors.HasCode(err, dErrors.CodeNotFound) {
					s.logger.WarnContext(ctx, "cached certificate missing from ledger",
						"cert_id", candidate.CertID.String(),
						"nim", subjectID,
					)
					continue
				}
				if err != nil {
					return nil, err
				}
				if record.SubjectID == subjectID {
					lookup.Records = append(lookup.Records, record)
				}
			}
			sortNewestFirst(lookup.Records)
			return lookup, nil
		}
		lookup.Warnings = append(lookup.Warnings, *warning)
	}

	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	lookup.Source = models.LookupSourceLedger
	for _, record := range all {
		if record.SubjectID == subjectID {
			lookup.Records = append(lookup.Records, record)
		}
	}
	sortNewestFirst(lookup.Records)
	return lookup, nil
}

func sortNewestFirst(records []models.CertificateRecord) {
	slices.SortFunc(records, func(a, b models.CertificateRecord) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return strings.Compare(b.CertID.String(), a.CertID.String())
	})
}

func (s *Service) fetchBlob(ctx context.Context, contentID string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanBlobFetch, tracer.String(tracer.AttrContentID, contentID))
	bctx, cancel := context.WithTimeout(ctx, s.timeouts.Blob)
	defer cancel()

	payload, err := s.blobs.Fetch(bctx, contentID)
	span.End(err)
	if err != nil {
		return nil, translateBlobError(err, contentID)
	}
	return payload, nil
}
