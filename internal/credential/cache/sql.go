// Package cache keeps a queryable projection of ledger certificate records.
// It is advisory: the ledger stays authoritative and every cache failure is
// recoverable by the caller.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"certledger/internal/credential/metrics"
	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

// Dialect selects placeholder syntax for the relational store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore persists the cache in a relational database (PostgreSQL or SQLite).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	metrics *metrics.Metrics
	now     func() time.Time
}

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithSQLMetrics records lookup hit/miss metrics.
func WithSQLMetrics(m *metrics.Metrics) SQLOption {
	return func(s *SQLStore) {
		s.metrics = m
	}
}

// WithSQLClock overrides the clock used for updated_at.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// NewSQL constructs a relational cache store.
func NewSQL(db *sql.DB, dialect Dialect, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const upsertQuery = `
	INSERT INTO certificates (
		cert_id, subject_id, subject_name, major, program, content_id, content_hash,
		status, issued_at, superseded_by, revocation_reason, revoked_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (cert_id) DO UPDATE SET
		subject_id = EXCLUDED.subject_id,
		subject_name = EXCLUDED.subject_name,
		major = EXCLUDED.major,
		program = EXCLUDED.program,
		content_id = EXCLUDED.content_id,
		content_hash = EXCLUDED.content_hash,
		status = EXCLUDED.status,
		issued_at = EXCLUDED.issued_at,
		superseded_by = EXCLUDED.superseded_by,
		revocation_reason = EXCLUDED.revocation_reason,
		revoked_at = COALESCE(certificates.revoked_at, EXCLUDED.revoked_at),
		updated_at = EXCLUDED.updated_at
`

// Upsert inserts or replaces the cached copy of record.
func (s *SQLStore) Upsert(ctx context.Context, record models.CertificateRecord) error {
	now := s.now().UTC()
	var revokedAt sql.NullTime
	if record.Status == models.StatusRevoked {
		revokedAt = sql.NullTime{Time: now, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(upsertQuery),
		record.CertID.String(),
		record.SubjectID,
		record.SubjectName,
		record.Major,
		record.Program,
		record.ContentID,
		record.ContentHash,
		record.Status.String(),
		record.IssuedAt.UTC(),
		nullString(record.SupersededBy.String()),
		nullString(record.RevocationReason),
		revokedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert certificate cache: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT cert_id, subject_id, subject_name, major, program, content_id, content_hash,
		status, issued_at, superseded_by, revocation_reason
	FROM certificates
`

// FindByID loads the cached copy of certID.
func (s *SQLStore) FindByID(ctx context.Context, certID models.CertID) (models.CertificateRecord, error) {
	start := time.Now()
	record, err := scanCertificate(s.db.QueryRowContext(ctx, s.rebind(selectColumns+" WHERE cert_id = ?"), certID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordLookup("miss", start)
			return models.CertificateRecord{}, sentinel.ErrNotFound
		}
		s.recordLookup("error", start)
		return models.CertificateRecord{}, fmt.Errorf("find certificate cache: %w", err)
	}
	s.recordLookup("hit", start)
	return record, nil
}

// FindBySubject lists cached certificates for a student, newest first.
func (s *SQLStore) FindBySubject(ctx context.Context, subjectID string) ([]models.CertificateRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectColumns+" WHERE subject_id = ? ORDER BY issued_at DESC, cert_id DESC"), subjectID)
	if err != nil {
		return nil, fmt.Errorf("find certificates by subject: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var records []models.CertificateRecord
	for rows.Next() {
		record, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate cache: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificate cache: %w", err)
	}
	return records, nil
}

const markStatusQuery = `
	UPDATE certificates SET
		status = ?,
		revocation_reason = COALESCE(?, revocation_reason),
		superseded_by = COALESCE(?, superseded_by),
		revoked_at = COALESCE(revoked_at, ?),
		updated_at = ?
	WHERE cert_id = ?
`

// MarkStatus mirrors a ledger transition. Returns ErrNotFound when the row is
// absent so callers can fall back to a full upsert.
func (s *SQLStore) MarkStatus(ctx context.Context, certID models.CertID, change models.StatusChange) error {
	at := change.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	var revokedAt sql.NullTime
	if change.Status == models.StatusRevoked {
		revokedAt = sql.NullTime{Time: at, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.rebind(markStatusQuery),
		change.Status.String(),
		nullString(change.RevocationReason),
		nullString(change.SupersededBy.String()),
		revokedAt,
		at,
		certID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark certificate status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark certificate status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Backend names the store for metrics and logs.
func (s *SQLStore) Backend() string {
	return string(s.dialect)
}

type certificateRow interface {
	Scan(dest ...any) error
}

func scanCertificate(row certificateRow) (models.CertificateRecord, error) {
	var record models.CertificateRecord
	var certID, status string
	var supersededBy, revocationReason sql.NullString
	if err := row.Scan(
		&certID,
		&record.SubjectID,
		&record.SubjectName,
		&record.Major,
		&record.Program,
		&record.ContentID,
		&record.ContentHash,
		&status,
		&record.IssuedAt,
		&supersededBy,
		&revocationReason,
	); err != nil {
		return models.CertificateRecord{}, err
	}
	parsed, err := models.ParseStatus(status)
	if err != nil {
		return models.CertificateRecord{}, err
	}
	record.CertID = models.CertID(certID)
	record.Status = parsed
	record.IssuedAt = record.IssuedAt.UTC()
	record.SupersededBy = models.CertID(supersededBy.String)
	record.RevocationReason = revocationReason.String
	return record, nil
}

// rebind rewrites '?' placeholders to $1..$n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) recordLookup(result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCacheLookup(s.Backend(), result, time.Since(start).Seconds())
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
