// Package tracer provides the tracing abstraction used by the certificate
// lifecycle. Spans are started through a small interface so the service does
// not import OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a span; the returned context carries it to child calls.
	//
	// Example:
	//   ctx, span := tracer.Start(ctx, tracer.SpanIssue,
	//       tracer.String(tracer.AttrSubjectID, tracer.HashSubjectID(nim)),
	//   )
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubjectID returns a short SHA-256 prefix of a student number so traces
// can be correlated without carrying the number itself.
func HashSubjectID(subjectID string) string {
	if subjectID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(subjectID))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanIssue        = "certificate.issue"
	SpanRevoke       = "certificate.revoke"
	SpanSupersede    = "certificate.supersede"
	SpanVerify       = "certificate.verify"
	SpanIntegrity    = "certificate.integrity"
	SpanResync       = "certificate.resync"
	SpanBlobStore    = "blob.store"
	SpanBlobFetch    = "blob.fetch"
	SpanLedgerSubmit = "ledger.submit"
	SpanLedgerQuery  = "ledger.query"
	SpanCacheWrite   = "cache.write"
	SpanCacheRead    = "cache.read"
)

// Attribute keys.
const (
	AttrCertID      = "cert.id"
	AttrNewCertID   = "cert.new_id"
	AttrSubjectID   = "subject.id_hash"
	AttrContentID   = "content.cid"
	AttrOperation   = "ledger.operation"
	AttrCacheFound  = "cache.found"
	AttrMismatch    = "cache.mismatch"
	AttrWarnings    = "warnings"
	AttrPayloadSize = "payload.bytes"
	AttrStage       = "abort.stage"
)

// Event names.
const (
	EventCacheDegraded = "cache.degraded"
	EventPublished     = "event.published"
)
