package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

// Entry is one committed write in a record's history.
type Entry struct {
	Op        models.Operation
	Record    models.CertificateRecord
	Committed time.Time
}

// MemoryLedger is an append-only ledger held in memory. It applies the same
// transition rules as the chaincode so single-node deployments and tests see
// identical conflict behavior.
type MemoryLedger struct {
	mu      sync.Mutex
	current map[models.CertID]models.CertificateRecord
	history map[models.CertID][]Entry
	faults  map[models.Operation]error
	now     func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{
		current: make(map[models.CertID]models.CertificateRecord),
		history: make(map[models.CertID][]Entry),
		faults:  make(map[models.Operation]error),
		now:     time.Now,
	}
}

// FailNext makes the next Submit of op return err without committing.
func (l *MemoryLedger) FailNext(op models.Operation, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[op] = err
}

func (l *MemoryLedger) Submit(ctx context.Context, op models.Operation, record models.CertificateRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit %s: %w: %w", op, sentinel.ErrUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err, ok := l.faults[op]; ok {
		delete(l.faults, op)
		return err
	}

	existing, exists := l.current[record.CertID]
	var next models.CertificateRecord
	switch op {
	case models.OpIssue:
		if exists {
			return fmt.Errorf("certificate %s already exists: %w", record.CertID, sentinel.ErrConflict)
		}
		if record.Status != models.StatusActive {
			return fmt.Errorf("issue with status %s: %w", record.Status, sentinel.ErrInvalidState)
		}
		if err := record.Validate(); err != nil {
			return fmt.Errorf("%w: %w", sentinel.ErrInvalidInput, err)
		}
		next = record
	case models.OpRevoke:
		if !exists {
			return fmt.Errorf("certificate %s does not exist: %w", record.CertID, sentinel.ErrNotFound)
		}
		if !existing.Status.CanTransitionTo(models.StatusRevoked) {
			return fmt.Errorf("revoke from %s: %w", existing.Status, sentinel.ErrInvalidState)
		}
		next = existing
		next.Status = models.StatusRevoked
		next.RevocationReason = record.RevocationReason
	case models.OpSupersede:
		if !exists {
			return fmt.Errorf("certificate %s does not exist: %w", record.CertID, sentinel.ErrNotFound)
		}
		if record.SupersededBy.IsZero() || record.SupersededBy == record.CertID {
			return fmt.Errorf("supersede requires a distinct replacement: %w", sentinel.ErrInvalidInput)
		}
		if !existing.Status.CanTransitionTo(models.StatusSuperseded) {
			return fmt.Errorf("supersede from %s: %w", existing.Status, sentinel.ErrInvalidState)
		}
		next = existing
		next.Status = models.StatusSuperseded
		next.SupersededBy = record.SupersededBy
	case models.OpActivate:
		if !exists {
			return fmt.Errorf("certificate %s does not exist: %w", record.CertID, sentinel.ErrNotFound)
		}
		if !existing.Status.CanTransitionTo(models.StatusActive) {
			return fmt.Errorf("activate from %s: %w", existing.Status, sentinel.ErrInvalidState)
		}
		next = existing
	default:
		return fmt.Errorf("unknown ledger operation %q: %w", op, sentinel.ErrInvalidInput)
	}

	l.current[next.CertID] = next
	l.history[next.CertID] = append(l.history[next.CertID], Entry{Op: op, Record: next, Committed: l.now().UTC()})
	return nil
}

func (l *MemoryLedger) Query(ctx context.Context, certID models.CertID) (models.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.CertificateRecord{}, fmt.Errorf("query %s: %w: %w", certID, sentinel.ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.current[certID]
	if !ok {
		return models.CertificateRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (l *MemoryLedger) QueryAll(ctx context.Context) ([]models.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query all: %w: %w", sentinel.ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]models.CertificateRecord, 0, len(l.current))
	for _, r := range l.current {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b models.CertificateRecord) int {
		return strings.Compare(a.CertID.String(), b.CertID.String())
	})
	return records, nil
}

// History returns every committed write for certID, oldest first.
func (l *MemoryLedger) History(certID models.CertID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.history[certID])
}

// Ping always succeeds.
func (l *MemoryLedger) Ping(context.Context) error {
	return nil
}
