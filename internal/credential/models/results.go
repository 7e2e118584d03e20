package models

import (
	"time"

	dErrors "certledger/pkg/domain-errors"
)

// Verification notes, one per row of the reconciliation table.
const (
	NoteCacheMissing    = "verified on ledger; cache metadata missing (needs sync)"
	NoteCacheConsistent = "verified on ledger; consistent with cache"
	NoteCacheMismatch   = "verified on ledger; cache hash mismatch — ledger is authoritative"
)

// Steps that may produce a best-effort warning.
const (
	StepCacheUpsert  = "cache_upsert"
	StepCacheMark    = "cache_mark_status"
	StepCacheRead    = "cache_read"
	StepCacheSubject = "cache_find_subject"
)

// Warning records a best-effort step that failed without failing the operation.
type Warning struct {
	Code    dErrors.Code `json:"code"`
	Step    string       `json:"step"`
	Message string       `json:"message"`
}

// IssueResult is returned by a committed issuance.
type IssueResult struct {
	Record   CertificateRecord
	Warnings []Warning
}

// MutationResult is returned by a committed revoke or supersede.
type MutationResult struct {
	CertID   CertID
	Status   Status
	Warnings []Warning
}

// ReconciledView is the outcome of Verify. Record always holds the ledger copy.
type ReconciledView struct {
	Record      CertificateRecord
	CacheFound  bool
	Mismatch    bool
	StatusDrift bool
	CachedHash  string
	Note        string
	Warnings    []Warning
}

// Where a subject lookup found its candidate ids.
const (
	LookupSourceCache  = "cache"
	LookupSourceLedger = "ledger"
)

// SubjectLookup lists one student's certificates, newest first. Records are
// always the ledger copies.
type SubjectLookup struct {
	SubjectID string
	Source    string
	Records   []CertificateRecord
	Warnings  []Warning
}

// IntegrityReport describes a successful content re-check.
type IntegrityReport struct {
	CertID       CertID
	ContentID    string
	RecordedHash string
	ComputedHash string
	Size         int
	CheckedAt    time.Time
}

// ResyncReport summarizes one ledger-to-cache reconciliation pass.
type ResyncReport struct {
	Scanned    int
	Consistent int
	Upserted   int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}
