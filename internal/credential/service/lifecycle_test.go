package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/mock/gomock"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/testutil"
)

func (s *ServiceSuite) TestRevoke() {
	ctx := context.Background()
	certID := testutil.TestIDs.CertID1

	s.Run("revokes on ledger and marks the cache", func() {
		gomock.InOrder(
			s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil),
			s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpRevoke, gomock.Cond(func(r models.CertificateRecord) bool {
				return r.CertID == certID && r.RevocationReason == "forged transcript"
			})).Return(nil),
			s.mockCache.EXPECT().MarkStatus(gomock.Any(), certID, gomock.Cond(func(c models.StatusChange) bool {
				return c.Status == models.StatusRevoked && c.RevocationReason == "forged transcript"
			})).Return(nil),
			s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e events.Event) bool {
				return e.Type == events.TypeRevoked && e.CertID == certID
			})).Return(nil),
		)

		result, err := s.service.Revoke(ctx, certID, "  forged transcript ")

		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, result.Status)
		s.Empty(result.Warnings)
	})

	s.Run("missing cache row is backfilled from the ledger copy", func() {
		s.expectEvents()
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpRevoke, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().MarkStatus(gomock.Any(), certID, gomock.Any()).Return(sentinel.ErrNotFound)
		s.mockCache.EXPECT().Upsert(gomock.Any(), gomock.Cond(func(r models.CertificateRecord) bool {
			return r.Status == models.StatusRevoked && r.ContentHash == testutil.HelloDigest
		})).Return(nil)

		result, err := s.service.Revoke(ctx, certID, "")

		s.Require().NoError(err)
		s.Empty(result.Warnings)
	})

	s.Run("cache failure is a warning", func() {
		s.expectEvents()
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpRevoke, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().MarkStatus(gomock.Any(), certID, gomock.Any()).Return(errors.New("pool exhausted"))

		result, err := s.service.Revoke(ctx, certID, "")

		s.Require().NoError(err)
		s.Require().Len(result.Warnings, 1)
		s.Equal(models.StepCacheMark, result.Warnings[0].Step)
	})

	s.Run("unknown certificate", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(models.CertificateRecord{}, sentinel.ErrNotFound)

		_, err := s.service.Revoke(ctx, certID, "")

		s.ErrorIs(err, models.ErrNotFound)
	})

	for _, status := range []models.Status{models.StatusRevoked, models.StatusSuperseded} {
		s.Run("rejects "+string(status), func() {
			record := testutil.NewCertificateBuilder().WithID(certID).WithStatus(status).Build()
			s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(record, nil)

			_, err := s.service.Revoke(ctx, certID, "")

			s.ErrorIs(err, models.ErrInvalidTransition)
		})
	}

	s.Run("ledger rejects a concurrent revoke", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), certID).Return(activeRecord(certID), nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpRevoke, gomock.Any()).
			Return(fmt.Errorf("revoke from REVOKED: %w", sentinel.ErrInvalidState))

		_, err := s.service.Revoke(ctx, certID, "")

		s.ErrorIs(err, models.ErrInvalidTransition)
	})

	s.Run("input validation", func() {
		_, err := s.service.Revoke(ctx, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.Revoke(ctx, certID, strings.Repeat("x", MaxRevocationReasonLength+1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestSupersede() {
	ctx := context.Background()
	oldID, newID := testutil.TestIDs.CertID1, testutil.TestIDs.CertID2

	s.Run("both ledger steps succeed", func() {
		s.expectEvents()
		s.mockLedger.EXPECT().Query(gomock.Any(), oldID).Return(activeRecord(oldID), nil)
		s.mockLedger.EXPECT().Query(gomock.Any(), newID).Return(activeRecord(newID), nil)
		gomock.InOrder(
			s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpSupersede, gomock.Cond(func(r models.CertificateRecord) bool {
				return r.CertID == oldID && r.SupersededBy == newID
			})).Return(nil),
			s.mockCache.EXPECT().MarkStatus(gomock.Any(), oldID, gomock.Any()).Return(nil),
			s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpActivate, activeRecord(newID)).Return(nil),
			s.mockCache.EXPECT().Upsert(gomock.Any(), activeRecord(newID)).Return(nil),
		)

		result, err := s.service.Supersede(ctx, oldID, newID)

		s.Require().NoError(err)
		s.Equal(oldID, result.CertID)
		s.Equal(models.StatusSuperseded, result.Status)
		s.Empty(result.Warnings)
	})

	s.Run("second step failure is a partial supersede", func() {
		s.expectEvents()
		s.mockLedger.EXPECT().Query(gomock.Any(), oldID).Return(activeRecord(oldID), nil)
		s.mockLedger.EXPECT().Query(gomock.Any(), newID).Return(activeRecord(newID), nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpSupersede, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().MarkStatus(gomock.Any(), oldID, gomock.Any()).Return(nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpActivate, gomock.Any()).Return(context.DeadlineExceeded)

		result, err := s.service.Supersede(ctx, oldID, newID)

		s.Nil(result)
		s.ErrorIs(err, models.ErrPartialSupersede)
		var partial *models.PartialSupersedeError
		s.Require().ErrorAs(err, &partial)
		s.Equal(oldID, partial.OldCertID)
		s.Equal(newID, partial.NewCertID)
		s.ErrorIs(partial.Err, models.ErrLedgerUnavailable)
	})

	s.Run("first step failure writes nothing else", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), oldID).Return(activeRecord(oldID), nil)
		s.mockLedger.EXPECT().Query(gomock.Any(), newID).Return(activeRecord(newID), nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpSupersede, gomock.Any()).Return(errors.New("peer unreachable"))

		_, err := s.service.Supersede(ctx, oldID, newID)

		s.ErrorIs(err, models.ErrLedgerUnavailable)
		s.NotErrorIs(err, models.ErrPartialSupersede)
	})

	s.Run("old certificate already revoked", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), oldID).Return(testutil.NewCertificateBuilder().WithID(oldID).Revoked("x").Build(), nil)
		s.mockLedger.EXPECT().Query(gomock.Any(), newID).Return(activeRecord(newID), nil)

		_, err := s.service.Supersede(ctx, oldID, newID)

		s.ErrorIs(err, models.ErrInvalidTransition)
	})

	s.Run("replacement is terminal", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), oldID).Return(activeRecord(oldID), nil)
		s.mockLedger.EXPECT().Query(gomock.Any(), newID).Return(testutil.NewCertificateBuilder().WithID(newID).SupersededBy(testutil.TestIDs.CertID3).Build(), nil)

		_, err := s.service.Supersede(ctx, oldID, newID)

		s.ErrorIs(err, models.ErrInvalidTransition)
	})

	s.Run("replacement does not exist", func() {
		s.mockLedger.EXPECT().Query(gomock.Any(), oldID).Return(activeRecord(oldID), nil)
		s.mockLedger.EXPECT().Query(gomock.Any(), newID).Return(models.CertificateRecord{}, sentinel.ErrNotFound)

		_, err := s.service.Supersede(ctx, oldID, newID)

		s.ErrorIs(err, models.ErrNotFound)
	})

	s.Run("ids must be distinct and present", func() {
		_, err := s.service.Supersede(ctx, oldID, oldID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.Supersede(ctx, oldID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
