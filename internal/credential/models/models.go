package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CertID identifies a certificate across the ledger, blob store labels and cache.
type CertID string

const certIDPrefix = "CERT-"

// MaxCertIDLength bounds identifiers accepted from callers.
const MaxCertIDLength = 128

var validCertID = regexp.MustCompile(`^CERT-[A-Za-z0-9._-]+$`)

// NewCertID returns a time-ordered identifier: a UUIDv7 (millisecond timestamp
// plus random bits) behind the CERT- prefix.
func NewCertID() (CertID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate cert id: %w", err)
	}
	return CertID(certIDPrefix + u.String()), nil
}

// ParseCertID validates a caller-supplied identifier. Every id carries the
// CERT- prefix; ids issued by earlier deployments need not end in a UUID.
func ParseCertID(raw string) (CertID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("cert_id is required")
	}
	if len(raw) > MaxCertIDLength {
		return "", fmt.Errorf("cert_id exceeds %d characters", MaxCertIDLength)
	}
	if !validCertID.MatchString(raw) {
		return "", fmt.Errorf("cert_id must be CERT- followed by letters, digits, '.', '_' or '-'")
	}
	return CertID(raw), nil
}

func (c CertID) String() string {
	return string(c)
}

// IsZero reports whether the id is unset.
func (c CertID) IsZero() bool {
	return c == ""
}

// Subject is the student a certificate is issued to.
type Subject struct {
	ID      string // student number (NIM)
	Name    string
	Major   string
	Program string
}

// CertificateRecord is the ledger's view of one certificate. The cache holds a
// projection of the same fields.
type CertificateRecord struct {
	CertID           CertID
	SubjectID        string
	SubjectName      string
	Major            string
	Program          string
	ContentID        string
	ContentHash      string
	Status           Status
	IssuedAt         time.Time
	SupersededBy     CertID
	RevocationReason string
}

// Equivalent reports whether two copies of a record agree. IssuedAt is compared
// at microsecond precision, the finest any cache backend stores.
func (r CertificateRecord) Equivalent(o CertificateRecord) bool {
	a, b := r, o
	a.IssuedAt = r.IssuedAt.UTC().Truncate(time.Microsecond)
	b.IssuedAt = o.IssuedAt.UTC().Truncate(time.Microsecond)
	return a == b
}

// Validate checks the fields every stored record must carry.
func (r CertificateRecord) Validate() error {
	if r.CertID.IsZero() {
		return fmt.Errorf("cert_id is required")
	}
	if r.ContentID == "" {
		return fmt.Errorf("content_id is required")
	}
	if !IsContentHash(r.ContentHash) {
		return fmt.Errorf("content_hash must be 64 lowercase hex characters")
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.IssuedAt.IsZero() {
		return fmt.Errorf("issued_at is required")
	}
	return nil
}

// ContentDigest returns the lowercase hex SHA-256 of payload.
func ContentDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// IsContentHash reports whether s looks like a ContentDigest output.
func IsContentHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IssueRequest carries everything needed to issue one certificate.
type IssueRequest struct {
	Subject  Subject
	FileName string
	Payload  []byte
}

// StatusChange describes a forward transition mirrored into the cache.
type StatusChange struct {
	Status           Status
	RevocationReason string
	SupersededBy     CertID
	At               time.Time
}

// Operation names a ledger write. Values match the chaincode function names.
type Operation string

const (
	OpIssue     Operation = "IssueCertificate"
	OpRevoke    Operation = "RevokeCertificate"
	OpSupersede Operation = "SupersedeCertificate"
	OpActivate  Operation = "ActivateCertificate"
)

// StoreHint labels a payload in blob stores that keep a browsable copy.
type StoreHint struct {
	CertID   CertID
	FileName string
}
