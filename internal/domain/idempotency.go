package domain

import (
	"context"
	"time"
)

type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"
	IdempotencySucceeded IdempotencyStatus = "succeeded"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// IdempotencyRecord is unique on (Key, AccountID).
type IdempotencyRecord struct {
	Key         string
	AccountID   string
	UserID      string
	Fingerprint string
	Status      IdempotencyStatus
	Hash        string
	FID         uint64
	ErrorCode   ErrorCode
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r IdempotencyRecord) Finalized() bool {
	return r.Status == IdempotencySucceeded || r.Status == IdempotencyFailed
}

type IdempotencyOutcome struct {
	Hash      string
	FID       uint64
	ErrorCode ErrorCode
}

func (o IdempotencyOutcome) Status() IdempotencyStatus {
	if o.ErrorCode != "" {
		return IdempotencyFailed
	}
	return IdempotencySucceeded
}

type IdempotencyStore interface {
	// Claim inserts rec as pending unless a row for (rec.Key, rec.AccountID)
	// already exists. claimed reports whether this call inserted it; when it
	// did not, existing is the stored row.
	Claim(ctx context.Context, rec IdempotencyRecord) (existing IdempotencyRecord, claimed bool, err error)
	Get(ctx context.Context, key, accountID string) (IdempotencyRecord, error)
	// Finalize moves a pending row to its terminal state. Finalized rows are
	// left untouched.
	Finalize(ctx context.Context, key, accountID string, outcome IdempotencyOutcome) error
	// Reclaim hands a pending row last touched before staleBefore to rec's
	// caller and refreshes its lease. It reports false when the row was
	// finalized or reclaimed by someone else first.
	Reclaim(ctx context.Context, rec IdempotencyRecord, staleBefore time.Time) (bool, error)
}

// IdempotencyWaiter is implemented by stores that can notify when a pending
// row is finalized instead of being polled.
type IdempotencyWaiter interface {
	WaitFinalized(ctx context.Context, key, accountID string) (IdempotencyRecord, error)
}
