package blobstore

import (
	"context"
	"fmt"
	"sync"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

// MemoryStore is a content-addressed store held in process memory.
// Identical payloads share one entry.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	files map[string]string
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		files: make(map[string]string),
	}
}

func (s *MemoryStore) Store(ctx context.Context, payload []byte, hint models.StoreHint) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("store blob: %w: %w", sentinel.ErrUnavailable, err)
	}
	contentID, err := ComputeCID(payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[contentID]; !ok {
		s.blobs[contentID] = append([]byte(nil), payload...)
	}
	if hint.CertID != "" {
		s.files[MFSPath("", hint)] = contentID
	}
	return contentID, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch blob: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.blobs[contentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Lookup returns the content id filed under the given MFS path.
func (s *MemoryStore) Lookup(mfsPath string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contentID, ok := s.files[mfsPath]
	return contentID, ok
}

// Corrupt replaces the bytes behind contentID without changing the id.
// Tests use it to simulate a blob that no longer matches its recorded hash.
func (s *MemoryStore) Corrupt(contentID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[contentID] = append([]byte(nil), payload...)
}
