package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"certledger/internal/credential/models"
	"certledger/internal/credential/tracer"
	"certledger/internal/sentinel"
)

// Sync copies one ledger record into the cache. Unlike the advisory mirrors in
// the mutating operations, the cache write is the point of this call, so its
// failure is returned as cache_unavailable.
func (s *Service) Sync(ctx context.Context, certID models.CertID) (record models.CertificateRecord, err error) {
	start := time.Now()
	defer func() { s.observe("sync", start, 0, err) }()

	if certID.IsZero() {
		return models.CertificateRecord{}, invalidInput("cert_id is required")
	}
	record, err = s.query(ctx, certID)
	if err != nil {
		return models.CertificateRecord{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeouts.Cache)
	defer cancel()
	if err := s.cache.Upsert(cctx, record); err != nil {
		s.recordCacheFailure(ctx, err)
		err = translateCacheError(err)
		s.logFailure(ctx, "cache sync failed", err, "cert_id", certID.String())
		return models.CertificateRecord{}, err
	}
	s.recordCacheSuccess(ctx)
	s.logger.InfoContext(ctx, "certificate synced to cache", "cert_id", certID.String())
	return record, nil
}

// Resync walks every ledger record and rewrites cache rows that are missing or
// differ from the ledger. Per-record cache failures are counted, not returned;
// only a failed ledger scan or a cancelled context fails the pass.
func (s *Service) Resync(ctx context.Context) (report *models.ResyncReport, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanResync)
	defer func() {
		s.observe("resync", start, 0, err)
		span.End(err)
	}()

	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var consistent, upserted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.resyncLimit)
	for _, record := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			switch s.reconcile(gctx, record) {
			case reconcileConsistent:
				consistent.Add(1)
			case reconcileUpserted:
				upserted.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report = &models.ResyncReport{
		Scanned:    len(records),
		Consistent: int(consistent.Load()),
		Upserted:   int(upserted.Load()),
		Failed:     int(failed.Load()),
		StartedAt:  start.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if s.metrics != nil {
		s.metrics.RecordResync(report.Consistent, report.Upserted, report.Failed)
	}
	s.logger.InfoContext(ctx, "cache resync finished",
		"scanned", report.Scanned,
		"consistent", report.Consistent,
		"upserted", report.Upserted,
		"failed", report.Failed,
	)
	return report, nil
}

type reconcileResult int

const (
	reconcileFailed reconcileResult = iota
	reconcileConsistent
	reconcileUpserted
)

func (s *Service) reconcile(ctx context.Context, record models.CertificateRecord) reconcileResult {
	cctx, cancel := context.WithTimeout(ctx, s.timeouts.Cache)
	defer cancel()

	cached, err := s.cache.FindByID(cctx, record.CertID)
	switch {
	case err == nil && cached.Equivalent(record):
		s.recordCacheSuccess(ctx)
		return reconcileConsistent
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		s.recordCacheFailure(ctx, err)
		s.logger.WarnContext(ctx, "resync could not read cache", "cert_id", record.CertID.String(), "error", err)
		return reconcileFailed
	}

	if err := s.cache.Upsert(cctx, record); err != nil {
		s.recordCacheFailure(ctx, err)
		s.logger.WarnContext(ctx, "resync could not write cache", "cert_id", record.CertID.String(), "error", err)
		return reconcileFailed
	}
	s.recordCacheSuccess(ctx)
	return reconcileUpserted
}
