package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"castgate/internal/domain"
	"castgate/internal/infra/metrics"

	"go.uber.org/zap"
)

const (
	defaultIdempotencyWait = 15 * time.Second
	defaultPollInterval    = 100 * time.Millisecond
)

// defaultLease must outlive the detached signing stages plus finalize.
const defaultLease = 2 * defaultDetachedTimeout

// IdempotencyLedger claims (key, account) slots before signing and replays
// finalized outcomes to later requests carrying the same key.
//
// A pending row whose holder has not finalized it within Lease is treated as
// abandoned and may be reclaimed by a request with the same parameters.
type IdempotencyLedger struct {
	Store        domain.IdempotencyStore
	Wait         time.Duration
	PollInterval time.Duration
	Lease        time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics

	now func() time.Time
}

// Claim reports claimed=true when the caller now owns the slot and must call
// Finalize. Otherwise it returns either a replayed result or an error.
func (l *IdempotencyLedger) Claim(ctx context.Context, rec domain.IdempotencyRecord) (replay *domain.SignResult, claimed bool, err error) {
	existing, claimed, err := l.Store.Claim(ctx, rec)
	if err != nil {
		return nil, false, domain.WrapError(domain.CodeInternal, "internal error", err)
	}
	if claimed {
		l.count("claimed")
		return nil, true, nil
	}
	if existing.UserID != "" && rec.UserID != "" && existing.UserID != rec.UserID {
		l.count("foreign")
		return nil, false, domain.NewError(domain.CodeAccountNotFound, "Account not found")
	}
	if existing.Fingerprint != "" && rec.Fingerprint != "" && existing.Fingerprint != rec.Fingerprint {
		l.count("conflict")
		return nil, false, domain.NewError(domain.CodeIdempotencyConflict, "Idempotency key was already used with different parameters").
			WithDetail("reason", "fingerprint_mismatch")
	}
	if !existing.Finalized() {
		reclaimed, err := l.reclaimStale(ctx, rec, existing)
		if err != nil {
			return nil, false, err
		}
		if reclaimed {
			return nil, true, nil
		}
		l.count("waited")
		existing, err = l.waitFinalized(ctx, rec.Key, rec.AccountID)
		if err != nil {
			return nil, false, domain.WrapError(domain.CodeInternal, "internal error", err)
		}
		if !existing.Finalized() {
			return nil, false, domain.NewError(domain.CodeIdempotencyConflict, "A request with this idempotency key is still in progress").
				WithDetail("state", string(domain.IdempotencyPending))
		}
	}
	if existing.Status == domain.IdempotencyFailed {
		l.count("conflict")
		return nil, false, domain.NewError(domain.CodeIdempotencyConflict, "A previous request with this idempotency key failed").
			WithDetail("original_code", string(existing.ErrorCode))
	}
	l.count("replayed")
	return &domain.SignResult{Hash: existing.Hash, FID: existing.FID}, false, nil
}

// Finalize records the outcome of a claimed slot. Failures are logged and
// counted; the caller's response is already decided.
func (l *IdempotencyLedger) Finalize(ctx context.Context, key, accountID string, outcome domain.IdempotencyOutcome) {
	if err := l.Store.Finalize(ctx, key, accountID, outcome); err != nil {
		l.logger().Error("idempotency finalize failed",
			zap.String("account_id", accountID),
			zap.String("idempotency_key", key),
			zap.String("status", string(outcome.Status())),
			zap.Error(err),
		)
		l.countFinalize("error")
		return
	}
	l.countFinalize("ok")
}

func (l *IdempotencyLedger) reclaimStale(ctx context.Context, rec, existing domain.IdempotencyRecord) (bool, error) {
	lease := l.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	staleBefore := now().Add(-lease)
	if !existing.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	ok, err := l.Store.Reclaim(ctx, rec, staleBefore)
	if err != nil {
		return false, domain.WrapError(domain.CodeInternal, "internal error", err)
	}
	if ok {
		l.logger().Warn("reclaimed abandoned idempotency claim",
			zap.String("account_id", rec.AccountID),
			zap.String("idempotency_key", rec.Key),
			zap.Time("last_updated", existing.UpdatedAt),
		)
		l.count("reclaimed")
	}
	return ok, nil
}

func (l *IdempotencyLedger) waitFinalized(ctx context.Context, key, accountID string) (domain.IdempotencyRecord, error) {
	wait := l.Wait
	if wait <= 0 {
		wait = defaultIdempotencyWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if waiter, ok := l.Store.(domain.IdempotencyWaiter); ok {
		return waiter.WaitFinalized(waitCtx, key, accountID)
	}

	interval := l.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, err := l.Store.Get(ctx, key, accountID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.IdempotencyRecord{}, err
		}
		if err == nil && rec.Finalized() {
			return rec, nil
		}
		select {
		case <-waitCtx.Done():
			return rec, nil
		case <-ticker.C:
		}
	}
}

func (l *IdempotencyLedger) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *IdempotencyLedger) count(outcome string) {
	if l.Metrics != nil {
		l.Metrics.IdempotencyOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (l *IdempotencyLedger) countFinalize(result string) {
	if l.Metrics != nil {
		l.Metrics.IdempotencyFinalize.WithLabelValues(result).Inc()
	}
}

// Fingerprint identifies the parameters of a write so that a key reused for
// a different write is detected. It is computed before reference resolution.
func Fingerprint(accountID string, op domain.Operation) (string, error) {
	payload, err := json.Marshal(struct {
		AccountID string           `json:"account_id"`
		Action    domain.Action    `json:"action"`
		Op        domain.Operation `json:"op"`
	}{accountID, op.Action(), op})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
