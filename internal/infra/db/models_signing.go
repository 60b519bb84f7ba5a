package db

import "time"

type IdempotencyModel struct {
	IdempotencyKey string `gorm:"primaryKey"`
	AccountID      string `gorm:"type:uuid;primaryKey"`
	UserID         string `gorm:"not null"`
	Fingerprint    string `gorm:"not null"`
	Status         string `gorm:"not null"`
	ResponseHash   *string
	ResponseFID    *int64 `gorm:"column:response_fid"`
	ResponseError  *string
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (IdempotencyModel) TableName() string { return "signing_idempotency" }

type AuditLogModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	AccountID string `gorm:"index;not null"`
	UserID    string `gorm:"index;not null"`
	Action    string `gorm:"not null"`
	Success   bool   `gorm:"not null"`
	ErrorCode *string
	CreatedAt time.Time `gorm:"not null"`
}

func (AuditLogModel) TableName() string { return "signing_audit_log" }
