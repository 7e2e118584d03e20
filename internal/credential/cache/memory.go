package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

// MemoryStore is an in-process cache store.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[models.CertID]models.CertificateRecord
	unavailable bool
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[models.CertID]models.CertificateRecord)}
}

// SetUnavailable makes every call fail until reset, mimicking a lost database.
func (s *MemoryStore) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *MemoryStore) Upsert(_ context.Context, record models.CertificateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return fmt.Errorf("upsert certificate cache: %w", sentinel.ErrUnavailable)
	}
	s.records[record.CertID] = record
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, certID models.CertID) (models.CertificateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return models.CertificateRecord{}, fmt.Errorf("find certificate cache: %w", sentinel.ErrUnavailable)
	}
	record, ok := s.records[certID]
	if !ok {
		return models.CertificateRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

// FindBySubject lists cached certificates for a student, newest first.
func (s *MemoryStore) FindBySubject(_ context.Context, subjectID string) ([]models.CertificateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, fmt.Errorf("find certificates by subject: %w", sentinel.ErrUnavailable)
	}
	var records []models.CertificateRecord
	for _, record := range s.records {
		if record.SubjectID == subjectID {
			records = append(records, record)
		}
	}
	slices.SortFunc(records, func(a, b models.CertificateRecord) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return strings.Compare(string(b.CertID), string(a.CertID))
	})
	return records, nil
}

func (s *MemoryStore) MarkStatus(_ context.Context, certID models.CertID, change models.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return fmt.Errorf("mark certificate status: %w", sentinel.ErrUnavailable)
	}
	record, ok := s.records[certID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = change.Status
	if change.RevocationReason != "" {
		record.RevocationReason = change.RevocationReason
	}
	if !change.SupersededBy.IsZero() {
		record.SupersededBy = change.SupersededBy
	}
	s.records[certID] = record
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return sentinel.ErrUnavailable
	}
	return nil
}

// Backend names the store for metrics and logs.
func (s *MemoryStore) Backend() string {
	return "memory"
}

// Put overwrites a cached record directly. Tests use it to plant stale or
// divergent rows.
func (s *MemoryStore) Put(record models.CertificateRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.CertID] = record
}
