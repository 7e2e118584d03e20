package service

import (
	"context"
	"errors"

	"go.uber.org/mock/gomock"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/testutil"
)

func (s *ServiceSuite) TestVerify() {
	ctx := context.Background()
	certID := testutil.TestIDs.CertID1
	ledgerCopy := activeRecord(certID)

	tests := []struct {
		name        string
		cached      models.CertificateRecord
		cacheErr    error
		wantFound   bool
		wantMatch   bool
		wantDrift   bool
		wantNote    string
		wantWarning bool
	}{
		{
			name:      "consistent cache",
			cached:    ledgerCopy,
			wantFound: true,
			wantNote:  models.NoteCacheConsistent,
		},
		{
			name:     "cache row missing",
			cacheErr: sentinel.ErrNotFound,
			wantNote: models.NoteCacheMissing,
		},
		{
			name:        "cache unreachable",
			cacheErr:    errors.New("dial tcp 10.0.0.3:5432: refused"),
			wantNote:    models.NoteCacheMissing,
			wantWarning: true,
		},
		{
			name:      "divergent hash",
			cached:    testutil.NewCertificateBuilder().WithID(certID).WithContent(testutil.HelloCID, models.ContentDigest([]byte("tampered"))).Build(),
			wantFound: true,
			wantMatch: true,
			wantNote:  models.NoteCacheMismatch,
		},
		{
			name:      "stale status only",
			cached:    testutil.NewCertificateBuilder().WithID(certID).Revoked("").Build(),
			wantFound: true,
			wantDrift: true,
			wantNote:  models.NoteCacheConsistent,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(ledgerCopy, nil)
			s.mockCache.EXPECT().FindByID(gomock.Any(), certID).Return(tt.cached, tt.cacheErr)

			view, err := s.service.Verify(ctx, certID)

			s.Require().NoError(err)
			s.Equal(ledgerCopy, view.Record, "ledger copy is always returned")
			s.Equal(tt.wantFound, view.CacheFound)
			s.Equal(tt.wantMatch, view.Mismatch)
			s.Equal(tt.wantDrift, view.StatusDrift)
			s.Equal(tt.wantNote, view.Note)
			if tt.wantWarning {
				s.Require().Len(view.Warnings, 1)
				s.Equal(models.StepCacheRead, view.Warnings[0].Step)
			} else {
				s.Empty(view.Warnings)
			}
		})
	}

	s.Run("ledger miss is not found even if cached", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(models.CertificateRecord{}, sentinel.ErrNotFound)

		_, err := s.service.Verify(ctx, certID)

		s.ErrorIs(err, models.ErrNotFound)
	})

	s.Run("ledger outage fails verification", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(models.CertificateRecord{}, context.DeadlineExceeded)

		_, err := s.service.Verify(ctx, certID)

		s.ErrorIs(err, models.ErrLedgerUnavailable)
	})
}

func (s *ServiceSuite) TestVerifyIntegrity() {
	ctx := context.Background()
	certID := testutil.TestIDs.CertID1

	s.Run("payload matches recorded hash", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockBlobs.EXPECT().Fetch(gomock.Any(), testutil.HelloCID).Return(testutil.HelloPayload, nil)

		report, err := s.service.VerifyIntegrity(ctx, certID)

		s.Require().NoError(err)
		s.Equal(testutil.HelloDigest, report.ComputedHash)
		s.Equal(report.RecordedHash, report.ComputedHash)
		s.Equal(len(testutil.HelloPayload), report.Size)
	})

	s.Run("divergent payload is an integrity mismatch", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockBlobs.EXPECT().Fetch(gomock.Any(), testutil.HelloCID).Return([]byte("hello!"), nil)

		_, err := s.service.VerifyIntegrity(ctx, certID)

		s.ErrorIs(err, models.ErrIntegrityMismatch)
	})

	s.Run("content missing from blob store", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockBlobs.EXPECT().Fetch(gomock.Any(), testutil.HelloCID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.VerifyIntegrity(ctx, certID)

		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("blob store unreachable", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockBlobs.EXPECT().Fetch(gomock.Any(), testutil.HelloCID).Return(nil, errors.New("connection reset"))

		_, err := s.service.VerifyIntegrity(ctx, certID)

		s.ErrorIs(err, models.ErrStorageUnavailable)
	})
}

func (s *ServiceSuite) TestList() {
	records := []models.CertificateRecord{activeRecord(testutil.TestIDs.CertID1), activeRecord(testutil.TestIDs.CertID2)}

	s.Run("returns ledger records", func() {
		s.mockLedger.EXPECT().QueryAll(gomock.Any()).Return(records, nil)

		got, err := s.service.List(context.Background())

		s.Require().NoError(err)
		s.Equal(records, got)
	})

	s.Run("ledger failure", func() {
		s.mockLedger.EXPECT().QueryAll(gomock.Any()).Return(nil, errors.New("gateway closed"))

		_, err := s.service.List(context.Background())

		s.ErrorIs(err, models.ErrLedgerUnavailable)
	})
}
