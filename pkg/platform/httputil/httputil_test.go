package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"certledger/internal/credential/models"
	dErrors "certledger/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       ErrorResponse
	}{
		{
			name:       "not found",
			err:        dErrors.New(dErrors.CodeNotFound, "certificate CERT-1 not found"),
			wantStatus: http.StatusNotFound,
			want:       ErrorResponse{Error: "not_found", Description: "certificate CERT-1 not found"},
		},
		{
			name: "aborted at storage",
			err: &models.IssuanceAbortedError{
				Stage: models.StageStorage,
				Err:   dErrors.Classify(errors.New("dial tcp"), dErrors.CodeStorageUnavailable, "blob store unavailable"),
			},
			wantStatus: http.StatusServiceUnavailable,
			want:       ErrorResponse{Error: "storage_unavailable", Description: "blob store unavailable", Stage: "storage"},
		},
		{
			name: "aborted at cache precheck",
			err: &models.IssuanceAbortedError{
				Stage: models.StageCachePrecheck,
				Err:   dErrors.Classify(errors.New("refused"), dErrors.CodeCacheUnavailable, "cache unavailable"),
			},
			wantStatus: http.StatusServiceUnavailable,
			want:       ErrorResponse{Error: "cache_unavailable", Description: "cache unavailable", Stage: "cache_precheck"},
		},
		{
			name:       "partial supersede",
			err:        &models.PartialSupersedeError{OldCertID: "CERT-old", NewCertID: "CERT-new", Err: errors.New("timeout")},
			wantStatus: http.StatusBadGateway,
			want: ErrorResponse{
				Error:       "partial_supersede",
				Description: "CERT-old superseded but CERT-new not confirmed active; retry activation",
				CertID:      "CERT-old",
				NewCertID:   "CERT-new",
			},
		},
		{
			name: "partial supersede with cache drift",
			err: &models.PartialSupersedeError{
				OldCertID: "CERT-old",
				NewCertID: "CERT-new",
				Err:       errors.New("timeout"),
				Warnings:  []models.Warning{{Code: dErrors.CodeCacheUnavailable, Step: models.StepCacheMark, Message: "cache unavailable"}},
			},
			wantStatus: http.StatusBadGateway,
			want: ErrorResponse{
				Error:       "partial_supersede",
				Description: "CERT-old superseded but CERT-new not confirmed active; retry activation",
				CertID:      "CERT-old",
				NewCertID:   "CERT-new",
				Warnings:    []models.Warning{{Code: dErrors.CodeCacheUnavailable, Step: models.StepCacheMark, Message: "cache unavailable"}},
			},
		},
		{
			name:       "integrity mismatch",
			err:        dErrors.New(dErrors.CodeIntegrityMismatch, "hash differs"),
			wantStatus: http.StatusUnprocessableEntity,
			want:       ErrorResponse{Error: "integrity_mismatch", Description: "hash differs"},
		},
		{
			name:       "uncoded error hides detail",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			want:       ErrorResponse{Error: "internal_error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.want, decodeResponse(t, w))
		})
	}
}

func TestDomainCodeToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, DomainCodeToHTTPStatus(dErrors.CodeLedgerConflict))
	assert.Equal(t, http.StatusConflict, DomainCodeToHTTPStatus(dErrors.CodeInvalidTransition))
	assert.Equal(t, http.StatusServiceUnavailable, DomainCodeToHTTPStatus(dErrors.CodeLedgerUnavailable))
	assert.Equal(t, http.StatusInternalServerError, DomainCodeToHTTPStatus("something_new"))
}
