package ledgermem

import (
	"context"
	"errors"
	"sync"
	"time"

	"castgate/internal/domain"
)

type ledgerKey struct {
	key       string
	accountID string
}

type ledgerEntry struct {
	rec  domain.IdempotencyRecord
	done chan struct{}
}

// IdempotencyStore is a process-local ledger. Waiters on a pending key are
// released when the key is finalized.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[ledgerKey]*ledgerEntry
	now     func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{entries: make(map[ledgerKey]*ledgerEntry), now: time.Now}
}

func (s *IdempotencyStore) Claim(_ context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error) {
	if rec.Key == "" || rec.AccountID == "" {
		return domain.IdempotencyRecord{}, false, errors.New("idempotency key and account_id are required")
	}
	k := ledgerKey{key: rec.Key, accountID: rec.AccountID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[k]; ok {
		return existing.rec, false, nil
	}
	now := s.now().UTC()
	rec.Status = domain.IdempotencyPending
	rec.Hash = ""
	rec.FID = 0
	rec.ErrorCode = ""
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.entries[k] = &ledgerEntry{rec: rec, done: make(chan struct{})}
	return rec, true, nil
}

func (s *IdempotencyStore) Get(_ context.Context, key, accountID string) (domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ledgerKey{key: key, accountID: accountID}]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	return entry.rec, nil
}

func (s *IdempotencyStore) Finalize(_ context.Context, key, accountID string, outcome domain.IdempotencyOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ledgerKey{key: key, accountID: accountID}]
	if !ok {
		return domain.ErrNotFound
	}
	if entry.rec.Finalized() {
		return nil
	}
	entry.rec.Status = outcome.Status()
	entry.rec.Hash = outcome.Hash
	entry.rec.FID = outcome.FID
	entry.rec.ErrorCode = outcome.ErrorCode
	entry.rec.UpdatedAt = s.now().UTC()
	close(entry.done)
	return nil
}

func (s *IdempotencyStore) Reclaim(_ context.Context, rec domain.IdempotencyRecord, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ledgerKey{key: rec.Key, accountID: rec.AccountID}]
	if !ok {
		return false, domain.ErrNotFound
	}
	if entry.rec.Status != domain.IdempotencyPending || !entry.rec.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	entry.rec.UserID = rec.UserID
	entry.rec.Fingerprint = rec.Fingerprint
	entry.rec.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *IdempotencyStore) WaitFinalized(ctx context.Context, key, accountID string) (domain.IdempotencyRecord, error) {
	s.mu.Lock()
	entry, ok := s.entries[ledgerKey{key: key, accountID: accountID}]
	s.mu.Unlock()
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	select {
	case <-entry.done:
		return s.Get(ctx, key, accountID)
	case <-ctx.Done():
		return s.Get(context.Background(), key, accountID)
	}
}

var (
	_ domain.IdempotencyStore  = (*IdempotencyStore)(nil)
	_ domain.IdempotencyWaiter = (*IdempotencyStore)(nil)
)
