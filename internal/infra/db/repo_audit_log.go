package db

import (
	"context"
	"errors"
	"time"

	"castgate/internal/domain"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if entry.Action == "" {
		return errors.New("action is required")
	}
	if entry.ID == "" {
		entry.ID = newUUID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	model := AuditLogModel{
		ID:        entry.ID,
		AccountID: entry.AccountID,
		UserID:    entry.UserID,
		Action:    string(entry.Action),
		Success:   entry.Success,
		ErrorCode: stringPtrIfNotEmpty(string(entry.ErrorCode)),
		CreatedAt: entry.CreatedAt.UTC().Truncate(time.Microsecond),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}
