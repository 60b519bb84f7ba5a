package domain

import (
	"context"
	"time"
)

type AuditLogEntry struct {
	ID        string
	AccountID string
	UserID    string
	Action    Action
	Success   bool
	ErrorCode ErrorCode
	CreatedAt time.Time
}

type AuditLogStore interface {
	Append(ctx context.Context, entry AuditLogEntry) error
}
