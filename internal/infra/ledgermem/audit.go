package ledgermem

import (
	"context"
	"sync"

	"castgate/internal/domain"

	"github.com/google/uuid"
)

type AuditLogStore struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func NewAuditLogStore() *AuditLogStore {
	return &AuditLogStore{}
}

func (s *AuditLogStore) Append(_ context.Context, entry domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// Entries returns a snapshot in append order.
func (s *AuditLogStore) Entries() []domain.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

var _ domain.AuditLogStore = (*AuditLogStore)(nil)
