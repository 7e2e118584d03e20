package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/mock/gomock"

	"certledger/internal/credential/events"
	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/middleware/requesttime"
	"certledger/pkg/testutil"
)

func helloRequest() models.IssueRequest {
	return models.IssueRequest{
		Subject:  models.Subject{ID: "123", Name: "Test Student", Major: "Informatics", Program: "Bachelor"},
		FileName: "diploma.pdf",
		Payload:  testutil.HelloPayload,
	}
}

func (s *ServiceSuite) TestIssue() {
	issuedAt := time.Date(2024, 7, 1, 9, 30, 0, 123456789, time.UTC)
	ctx := requesttime.WithTime(context.Background(), issuedAt)

	s.Run("commits to ledger then mirrors to cache", func() {
		hint := models.StoreHint{CertID: testutil.TestIDs.CertID1, FileName: "diploma.pdf"}
		want := models.CertificateRecord{
			CertID:      testutil.TestIDs.CertID1,
			SubjectID:   "123",
			SubjectName: "Test Student",
			Major:       "Informatics",
			Program:     "Bachelor",
			ContentID:   testutil.HelloCID,
			ContentHash: testutil.HelloDigest,
			Status:      models.StatusActive,
			IssuedAt:    issuedAt.Truncate(time.Millisecond),
		}

		gomock.InOrder(
			s.mockBlobs.EXPECT().Store(gomock.Any(), testutil.HelloPayload, hint).Return(testutil.HelloCID, nil),
			s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, want).Return(nil),
			s.mockCache.EXPECT().Upsert(gomock.Any(), want).Return(nil),
			s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e events.Event) bool {
				return e.Type == events.TypeIssued && e.CertID == want.CertID && e.ContentHash == testutil.HelloDigest
			})).Return(nil),
		)

		result, err := s.service.Issue(ctx, helloRequest())

		s.Require().NoError(err)
		s.Equal(want, result.Record)
		s.Empty(result.Warnings)
	})

	s.Run("blob store failure aborts before the ledger", func() {
		s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).
			Return("", fmt.Errorf("ipfs add: %w", sentinel.ErrUnavailable))

		result, err := s.service.Issue(ctx, helloRequest())

		s.Nil(result)
		var aborted *models.IssuanceAbortedError
		s.Require().ErrorAs(err, &aborted)
		s.Equal(models.StageStorage, aborted.Stage)
		s.ErrorIs(err, models.ErrStorageUnavailable)
	})

	s.Run("ledger timeout aborts and skips the cache", func() {
		s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(testutil.HelloCID, nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, gomock.Any()).Return(context.DeadlineExceeded)

		_, err := s.service.Issue(ctx, helloRequest())

		var aborted *models.IssuanceAbortedError
		s.Require().ErrorAs(err, &aborted)
		s.Equal(models.StageLedger, aborted.Stage)
		s.ErrorIs(err, models.ErrLedgerUnavailable)
	})

	s.Run("duplicate id on ledger is a conflict", func() {
		s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(testutil.HelloCID, nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, gomock.Any()).
			Return(fmt.Errorf("exists: %w", sentinel.ErrConflict))

		_, err := s.service.Issue(ctx, helloRequest())

		s.ErrorIs(err, models.ErrLedgerConflict)
		s.Equal(dErrors.CodeLedgerConflict, dErrors.CodeOf(err))
	})

	s.Run("cache failure becomes a warning", func() {
		s.expectEvents()
		s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(testutil.HelloCID, nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

		result, err := s.service.Issue(ctx, helloRequest())

		s.Require().NoError(err)
		s.Equal(models.StatusActive, result.Record.Status)
		s.Require().Len(result.Warnings, 1)
		s.Equal(dErrors.CodeCacheUnavailable, result.Warnings[0].Code)
		s.Equal(models.StepCacheUpsert, result.Warnings[0].Step)
	})

	s.Run("event publish failure is not surfaced", func() {
		s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(testutil.HelloCID, nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
		s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		result, err := s.service.Issue(ctx, helloRequest())

		s.Require().NoError(err)
		s.Empty(result.Warnings)
	})
}

func (s *ServiceSuite) TestIssueValidation() {
	tests := []struct {
		name   string
		mutate func(*models.IssueRequest)
	}{
		{"missing nim", func(r *models.IssueRequest) { r.Subject.ID = " " }},
		{"missing name", func(r *models.IssueRequest) { r.Subject.Name = "" }},
		{"missing major", func(r *models.IssueRequest) { r.Subject.Major = "" }},
		{"missing program", func(r *models.IssueRequest) { r.Subject.Program = "" }},
		{"empty payload", func(r *models.IssueRequest) { r.Payload = nil }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := helloRequest()
			tt.mutate(&req)

			_, err := s.service.Issue(context.Background(), req)

			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *ServiceSuite) TestIssueRequireCache() {
	s.Run("unreachable cache aborts before any write", func() {
		svc := s.newService(WithRequireCache(true))
		s.mockCache.EXPECT().Ping(gomock.Any()).Return(errors.New("dial tcp: refused"))

		_, err := svc.Issue(context.Background(), helloRequest())

		var aborted *models.IssuanceAbortedError
		s.Require().ErrorAs(err, &aborted)
		s.Equal(models.StageCachePrecheck, aborted.Stage)
		s.ErrorIs(err, models.ErrCacheUnavailable)
	})

	s.Run("reachable cache proceeds", func() {
		svc := s.newService(WithRequireCache(true))
		s.expectEvents()
		s.mockCache.EXPECT().Ping(gomock.Any()).Return(nil)
		s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(testutil.HelloCID, nil)
		s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

		_, err := svc.Issue(context.Background(), helloRequest())

		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestIssueCacheBreaker() {
	s.expectEvents()
	s.mockBlobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(testutil.HelloCID, nil).Times(4)
	s.mockLedger.EXPECT().Submit(gomock.Any(), models.OpIssue, gomock.Any()).Return(nil).Times(4)
	// Threshold is 3: the fourth issuance must not touch the cache.
	s.mockCache.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("timeout")).Times(3)

	for i := range 4 {
		result, err := s.service.Issue(context.Background(), helloRequest())
		s.Require().NoError(err, "issuance %d", i)
		s.Require().Len(result.Warnings, 1)
	}

	s.True(s.service.CacheBreaker().IsOpen())
}
