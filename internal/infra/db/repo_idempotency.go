package db

import (
	"context"
	"errors"
	"time"

	"castgate/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Claim(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error) {
	if r.db == nil {
		return domain.IdempotencyRecord{}, false, errDBUnavailable
	}
	if rec.Key == "" || rec.AccountID == "" {
		return domain.IdempotencyRecord{}, false, errors.New("idempotency key and account_id are required")
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	model := IdempotencyModel{
		IdempotencyKey: rec.Key,
		AccountID:      rec.AccountID,
		UserID:         rec.UserID,
		Fingerprint:    rec.Fingerprint,
		Status:         string(domain.IdempotencyPending),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if res.Error != nil {
		return domain.IdempotencyRecord{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return idempotencyFromModel(model), true, nil
	}
	existing, err := r.Get(ctx, rec.Key, rec.AccountID)
	if err != nil {
		return domain.IdempotencyRecord{}, false, err
	}
	return existing, false, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key, accountID string) (domain.IdempotencyRecord, error) {
	if r.db == nil {
		return domain.IdempotencyRecord{}, errDBUnavailable
	}
	var model IdempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND account_id = ?", key, accountID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.IdempotencyRecord{}, domain.ErrNotFound
		}
		return domain.IdempotencyRecord{}, err
	}
	return idempotencyFromModel(model), nil
}

func (r *IdempotencyRepository) Finalize(ctx context.Context, key, accountID string, outcome domain.IdempotencyOutcome) error {
	if r.db == nil {
		return errDBUnavailable
	}
	updates := map[string]any{
		"status":         string(outcome.Status()),
		"response_hash":  stringPtrIfNotEmpty(outcome.Hash),
		"response_error": stringPtrIfNotEmpty(string(outcome.ErrorCode)),
		"updated_at":     time.Now().UTC(),
	}
	if outcome.FID > 0 {
		updates["response_fid"] = int64(outcome.FID)
	}
	res := r.db.WithContext(ctx).
		Model(&IdempotencyModel{}).
		Where("idempotency_key = ? AND account_id = ? AND status = ?", key, accountID, string(domain.IdempotencyPending)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, key, accountID); err != nil {
			return err
		}
	}
	return nil
}

func (r *IdempotencyRepository) Reclaim(ctx context.Context, rec domain.IdempotencyRecord, staleBefore time.Time) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&IdempotencyModel{}).
		Where("idempotency_key = ? AND account_id = ? AND status = ? AND updated_at < ?",
			rec.Key, rec.AccountID, string(domain.IdempotencyPending), staleBefore.UTC()).
		Updates(map[string]any{
			"user_id":     rec.UserID,
			"fingerprint": rec.Fingerprint,
			"updated_at":  time.Now().UTC().Truncate(time.Microsecond),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteOlderThan prunes ledger rows past the retention window. Pending rows
// are pruned only once their lease has not been refreshed since cutoff.
func (r *IdempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND (status <> ? OR updated_at < ?)",
			cutoff.UTC(), string(domain.IdempotencyPending), cutoff.UTC()).
		Delete(&IdempotencyModel{})
	return res.RowsAffected, res.Error
}

func idempotencyFromModel(m IdempotencyModel) domain.IdempotencyRecord {
	rec := domain.IdempotencyRecord{
		Key:         m.IdempotencyKey,
		AccountID:   m.AccountID,
		UserID:      m.UserID,
		Fingerprint: m.Fingerprint,
		Status:      domain.IdempotencyStatus(m.Status),
		Hash:        derefString(m.ResponseHash),
		ErrorCode:   domain.ErrorCode(derefString(m.ResponseError)),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ResponseFID != nil && *m.ResponseFID > 0 {
		rec.FID = uint64(*m.ResponseFID)
	}
	return rec
}
