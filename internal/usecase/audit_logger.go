package usecase

import (
	"context"
	"sync"
	"time"

	"castgate/internal/domain"
	"castgate/internal/infra/metrics"

	"go.uber.org/zap"
)

const (
	defaultAuditQueueSize    = 1024
	defaultAuditWriteTimeout = 5 * time.Second
)

// AuditLogger records signing attempts in the background. Log never blocks:
// when the queue is full the entry is dropped and counted.
type AuditLogger struct {
	store        domain.AuditLogStore
	logger       *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	writeTimeout time.Duration

	queue     chan domain.AuditLogEntry
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewAuditLogger(store domain.AuditLogStore, queueSize int, logger *zap.Logger, m *metrics.Metrics) *AuditLogger {
	if queueSize <= 0 {
		queueSize = defaultAuditQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AuditLogger{
		store:        store,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
		writeTimeout: defaultAuditWriteTimeout,
		queue:        make(chan domain.AuditLogEntry, queueSize),
		done:         make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AuditLogger) Log(entry domain.AuditLogEntry) {
	if a == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(entry, "audit logger closed")
		return
	}
	select {
	case a.queue <- entry:
	default:
		a.drop(entry, "audit queue full")
	}
}

// Close stops accepting entries and waits for queued ones to be written or
// for ctx to end.
func (a *AuditLogger) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AuditLogger) run() {
	defer close(a.done)
	for entry := range a.queue {
		a.write(entry)
	}
}

func (a *AuditLogger) write(entry domain.AuditLogEntry) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()
	if err := a.store.Append(ctx, entry); err != nil {
		a.logger.Error("audit write failed",
			zap.String("account_id", entry.AccountID),
			zap.String("user_id", entry.UserID),
			zap.String("action", string(entry.Action)),
			zap.Bool("success", entry.Success),
			zap.String("error_code", string(entry.ErrorCode)),
			zap.Error(err),
		)
		if a.metrics != nil {
			a.metrics.AuditWriteFailures.Inc()
		}
	}
}

func (a *AuditLogger) drop(entry domain.AuditLogEntry, reason string) {
	a.logger.Warn("audit entry dropped",
		zap.String("reason", reason),
		zap.String("account_id", entry.AccountID),
		zap.String("action", string(entry.Action)),
	)
	if a.metrics != nil {
		a.metrics.AuditDropped.Inc()
	}
}
