package ledgermem

import (
	"context"
	"sync"

	"castgate/internal/domain"
)

// AccountStore keeps account rows in memory. Scopes only see rows whose
// owner matches the caller, mirroring the row-level policy of the database.
type AccountStore struct {
	mu   sync.RWMutex
	rows map[string]domain.AccountRecord
}

func NewAccountStore(rows ...domain.AccountRecord) *AccountStore {
	s := &AccountStore{rows: make(map[string]domain.AccountRecord, len(rows))}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *AccountStore) Put(rec domain.AccountRecord) {
	s.mu.Lock()
	s.rows[rec.ID] = rec
	s.mu.Unlock()
}

func (s *AccountStore) ForCaller(p domain.Principal) domain.AccountScope {
	return accountScope{store: s, callerID: p.Subject}
}

type accountScope struct {
	store    *AccountStore
	callerID string
}

func (a accountScope) LookupAccount(_ context.Context, accountID string) (domain.AccountRecord, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	rec, ok := a.store.rows[accountID]
	if !ok || a.callerID == "" || rec.OwnerID != a.callerID {
		return domain.AccountRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

var _ domain.AccountStore = (*AccountStore)(nil)
