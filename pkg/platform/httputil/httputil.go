package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"certledger/internal/credential/models"
	dErrors "certledger/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Stage       string `json:"stage,omitempty"`
	CertID      string `json:"cert_id,omitempty"`
	NewCertID   string `json:"new_cert_id,omitempty"`

	Warnings []models.Warning `json:"warnings,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are sent; an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates a domain error into its HTTP status and envelope.
// Aborted issuances carry the failing stage; partial supersedes carry both ids.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) && code != dErrors.CodeInternal {
		resp.Description = domainErr.Message
	}

	var aborted *models.IssuanceAbortedError
	if errors.As(err, &aborted) {
		resp.Stage = string(aborted.Stage)
	}
	var partial *models.PartialSupersedeError
	if errors.As(err, &partial) {
		resp.CertID = partial.OldCertID.String()
		resp.NewCertID = partial.NewCertID.String()
		resp.Warnings = partial.Warnings
	}

	WriteJSON(w, DomainCodeToHTTPStatus(code), resp)
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeTooLarge:           http.StatusRequestEntityTooLarge,
	dErrors.CodeStorageUnavailable: http.StatusServiceUnavailable,
	dErrors.CodeLedgerUnavailable:  http.StatusServiceUnavailable,
	dErrors.CodeCacheUnavailable:   http.StatusServiceUnavailable,
	dErrors.CodeLedgerConflict:     http.StatusConflict,
	dErrors.CodeInvalidTransition:  http.StatusConflict,
	dErrors.CodeIntegrityMismatch:  http.StatusUnprocessableEntity,
	dErrors.CodePartialSupersede:   http.StatusBadGateway,
}

// DomainCodeToHTTPStatus maps a domain code to its HTTP status; unknown codes are 500.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
