package service

import (
	"context"
	"errors"

	"go.uber.org/mock/gomock"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
	"certledger/pkg/testutil"
)

func (s *ServiceSuite) TestSync() {
	ctx := context.Background()
	certID := testutil.TestIDs.CertID1

	s.Run("copies the ledger record into the cache", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), activeRecord(certID)).Return(nil)

		record, err := s.service.Sync(ctx, certID)

		s.Require().NoError(err)
		s.Equal(activeRecord(certID), record)
	})

	s.Run("cache failure is returned", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("read-only transaction"))

		_, err := s.service.Sync(ctx, certID)

		s.ErrorIs(err, models.ErrCacheUnavailable)
	})

	s.Run("never writes a record the ledger lacks", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(models.CertificateRecord{}, sentinel.ErrNotFound)

		_, err := s.service.Sync(ctx, certID)

		s.ErrorIs(err, models.ErrNotFound)
	})
}

func (s *ServiceSuite) TestResync() {
	ctx := context.Background()
	consistent := activeRecord(testutil.TestIDs.CertID1)
	missing := activeRecord(testutil.TestIDs.CertID2)
	stale := activeRecord(testutil.TestIDs.CertID3)
	staleCached := testutil.NewCertificateBuilder().WithID(stale.CertID).WithContent(stale.ContentID, models.ContentDigest([]byte("old"))).Build()

	s.Run("upserts missing and divergent rows", func() {
		s.mockLedger.EXPECT().QueryAll(gomock.Any()).Return([]models.CertificateRecord{consistent, missing, stale}, nil)
		s.mockCache.EXPECT().FindByID(gomock.Any(), consistent.CertID).Return(consistent, nil)
		s.mockCache.EXPECT().FindByID(gomock.Any(), missing.CertID).Return(models.CertificateRecord{}, sentinel.ErrNotFound)
		s.mockCache.EXPECT().FindByID(gomock.Any(), stale.CertID).Return(staleCached, nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), missing).Return(nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), stale).Return(nil)

		report, err := s.service.Resync(ctx)

		s.Require().NoError(err)
		s.Equal(3, report.Scanned)
		s.Equal(1, report.Consistent)
		s.Equal(2, report.Upserted)
		s.Zero(report.Failed)
		s.False(report.FinishedAt.Before(report.StartedAt))
	})

	s.Run("per-record cache failures are counted", func() {
		s.mockLedger.EXPECT().QueryAll(gomock.Any()).Return([]models.CertificateRecord{consistent, missing}, nil)
		s.mockCache.EXPECT().FindByID(gomock.Any(), consistent.CertID).Return(models.CertificateRecord{}, errors.New("timeout"))
		s.mockCache.EXPECT().FindByID(gomock.Any(), missing.CertID).Return(models.CertificateRecord{}, sentinel.ErrNotFound)
		s.mockCache.EXPECT().Upsert(gomock.Any(), missing).Return(errors.New("timeout"))

		report, err := s.service.Resync(ctx)

		s.Require().NoError(err)
		s.Equal(2, report.Failed)
		s.Zero(report.Upserted)
	})

	s.Run("ledger scan failure fails the pass", func() {
		s.mockLedger.EXPECT().QueryAll(gomock.Any()).Return(nil, errors.New("gateway closed"))

		_, err := s.service.Resync(ctx)

		s.ErrorIs(err, models.ErrLedgerUnavailable)
	})

	s.Run("cancelled context stops the pass", func() {
		cctx, cancel := context.WithCancel(ctx)
		s.mockLedger.EXPECT().QueryAll(gomock.Any()).DoAndReturn(func(context.Context) ([]models.CertificateRecord, error) {
			cancel()
			return []models.CertificateRecord{consistent}, nil
		})

		_, err := s.service.Resync(cctx)

		s.ErrorIs(err, context.Canceled)
	})
}
