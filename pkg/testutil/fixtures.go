package testutil

import (
	"time"

	"certledger/internal/credential/models"
)

// TestIDs provides fixed certificate ids for deterministic test data.
var TestIDs = struct {
	CertID1 models.CertID
	CertID2 models.CertID
	CertID3 models.CertID
}{
	CertID1: models.CertID("CERT-0190b6a2-0000-7000-8000-000000000001"),
	CertID2: models.CertID("CERT-0190b6a2-0000-7000-8000-000000000002"),
	CertID3: models.CertID("CERT-0190b6a2-0000-7000-8000-000000000003"),
}

// FixedTime is the issuance timestamp used by builders.
var FixedTime = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

// HelloPayload is a payload with a well-known SHA-256.
var HelloPayload = []byte("hello")

// HelloDigest is the lowercase hex SHA-256 of HelloPayload.
const HelloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// HelloCID is the raw-codec CIDv1 of HelloPayload.
const HelloCID = "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq"

// CertificateBuilder provides a fluent interface for building certificate records.
type CertificateBuilder struct {
	record models.CertificateRecord
}

// NewCertificateBuilder creates a builder for an ACTIVE record over HelloPayload.
func NewCertificateBuilder() *CertificateBuilder {
	return &CertificateBuilder{
		record: models.CertificateRecord{
			CertID:      TestIDs.CertID1,
			SubjectID:   "123",
			SubjectName: "Test Student",
			Major:       "Informatics",
			Program:     "Bachelor",
			ContentID:   HelloCID,
			ContentHash: HelloDigest,
			Status:      models.StatusActive,
			IssuedAt:    FixedTime,
		},
	}
}

func (b *CertificateBuilder) WithID(certID models.CertID) *CertificateBuilder {
	b.record.CertID = certID
	return b
}

func (b *CertificateBuilder) WithSubject(subject models.Subject) *CertificateBuilder {
	b.record.SubjectID = subject.ID
	b.record.SubjectName = subject.Name
	b.record.Major = subject.Major
	b.record.Program = subject.Program
	return b
}

func (b *CertificateBuilder) WithContent(contentID, contentHash string) *CertificateBuilder {
	b.record.ContentID = contentID
	b.record.ContentHash = contentHash
	return b
}

func (b *CertificateBuilder) WithStatus(status models.Status) *CertificateBuilder {
	b.record.Status = status
	return b
}

func (b *CertificateBuilder) IssuedAt(t time.Time) *CertificateBuilder {
	b.record.IssuedAt = t
	return b
}

func (b *CertificateBuilder) Revoked(reason string) *CertificateBuilder {
	b.record.Status = models.StatusRevoked
	b.record.RevocationReason = reason
	return b
}

func (b *CertificateBuilder) SupersededBy(certID models.CertID) *CertificateBuilder {
	b.record.Status = models.StatusSuperseded
	b.record.SupersededBy = certID
	return b
}

func (b *CertificateBuilder) Build() models.CertificateRecord {
	return b.record
}

// NewTestCertificate returns an ACTIVE record for certID.
func NewTestCertificate(certID models.CertID) models.CertificateRecord {
	return NewCertificateBuilder().WithID(certID).Build()
}
