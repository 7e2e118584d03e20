package handler

import (
	"strings"
	"time"

	"certledger/internal/credential/models"
)

// issueForm holds the multipart text fields of POST /certificates.
type issueForm struct {
	NIM     string `form:"nim" validate:"required,notblank,max=32"`
	Name    string `form:"name" validate:"required,notblank,max=200"`
	Major   string `form:"major" validate:"required,notblank,max=200"`
	Program string `form:"program" validate:"required,notblank,max=100"`
}

func (f *issueForm) subject() models.Subject {
	return models.Subject{
		ID:      strings.TrimSpace(f.NIM),
		Name:    strings.TrimSpace(f.Name),
		Major:   strings.TrimSpace(f.Major),
		Program: strings.TrimSpace(f.Program),
	}
}

// VerifyRequest is the request body for POST /verify.
type VerifyRequest struct {
	CertID string `json:"cert_id" validate:"required,certid"`
}

// RevokeRequest is the optional body for POST /certificates/{certID}/revoke.
type RevokeRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

// SupersedeRequest is the request body for POST /certificates/{certID}/supersede.
type SupersedeRequest struct {
	NewCertID string `json:"new_cert_id" validate:"required,certid"`
}

// CertificateResponse is the wire form of a ledger record.
type CertificateResponse struct {
	CertID           string `json:"cert_id"`
	NIM              string `json:"nim"`
	Name             string `json:"name"`
	Major            string `json:"major"`
	Program          string `json:"program"`
	ContentID        string `json:"content_id"`
	ContentHash      string `json:"content_hash"`
	Status           string `json:"status"`
	IssuedAt         string `json:"issued_at"`
	SupersededBy     string `json:"superseded_by,omitempty"`
	RevocationReason string `json:"revocation_reason,omitempty"`
}

// IssueResponse is returned by a committed issuance.
type IssueResponse struct {
	Certificate CertificateResponse `json:"certificate"`
	FileName    string              `json:"file_name,omitempty"`
	Size        int                 `json:"size"`
	Warnings    []models.Warning    `json:"warnings"`
}

// VerifyResponse flattens the ledger record next to the reconciliation flags.
type VerifyResponse struct {
	CertificateResponse
	OnChain       bool             `json:"on_chain"`
	CacheFound    bool             `json:"cache_found"`
	CacheMismatch bool             `json:"cache_mismatch"`
	StatusDrift   bool             `json:"status_drift"`
	CachedHash    string           `json:"cached_hash,omitempty"`
	Note          string           `json:"note"`
	Warnings      []models.Warning `json:"warnings"`
}

// MutationResponse is returned by revoke and supersede.
type MutationResponse struct {
	CertID   string           `json:"cert_id"`
	Status   string           `json:"status"`
	Warnings []models.Warning `json:"warnings"`
}

// SubjectQuery is the query string of GET /certificates?nim=.
type SubjectQuery struct {
	NIM string `form:"nim" validate:"required,max=32"`
}

// SubjectListResponse is returned by GET /certificates?nim=.
type SubjectListResponse struct {
	NIM          string                `json:"nim"`
	Source       string                `json:"source"`
	Count        int                   `json:"count"`
	Certificates []CertificateResponse `json:"certificates"`
	Warnings     []models.Warning      `json:"warnings"`
}

// ListResponse is returned by GET /certificates.
type ListResponse struct {
	Count        int                   `json:"count"`
	Certificates []CertificateResponse `json:"certificates"`
}

// IntegrityResponse is returned when stored content matches the ledger hash.
type IntegrityResponse struct {
	CertID       string    `json:"cert_id"`
	ContentID    string    `json:"content_id"`
	RecordedHash string    `json:"recorded_hash"`
	ComputedHash string    `json:"computed_hash"`
	Size         int       `json:"size"`
	CheckedAt    time.Time `json:"checked_at"`
}

// ResyncResponse summarizes a cache resync pass.
type ResyncResponse struct {
	Scanned    int   `json:"scanned"`
	Consistent int   `json:"consistent"`
	Upserted   int   `json:"upserted"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}
