//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"castgate/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestIdempotencyRepository_ClaimOnce(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	accountID := uuid.NewString()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Claim(ctx, domain.IdempotencyRecord{Key: "k1", AccountID: accountID, UserID: "u1", Fingerprint: "fp"})
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claimed != 1 {
		t.Fatalf("expected exactly one claim, got %d", claimed)
	}

	if err := repo.Finalize(ctx, "k1", accountID, domain.IdempotencyOutcome{Hash: "0xabc", FID: 7}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	existing, ok, err := repo.Claim(ctx, domain.IdempotencyRecord{Key: "k1", AccountID: accountID, UserID: "u1", Fingerprint: "fp"})
	if err != nil || ok {
		t.Fatalf("expected existing row, got claimed=%v err=%v", ok, err)
	}
	if existing.Status != domain.IdempotencySucceeded || existing.Hash != "0xabc" || existing.FID != 7 {
		t.Fatalf("unexpected stored record %+v", existing)
	}

	if err := repo.Finalize(ctx, "k1", accountID, domain.IdempotencyOutcome{ErrorCode: domain.CodeHubSubmissionFailed}); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	again, err := repo.Get(ctx, "k1", accountID)
	if err != nil || again.Status != domain.IdempotencySucceeded {
		t.Fatalf("finalized rows must not change, got %+v %v", again, err)
	}
}

func TestIdempotencyRepository_FinalizeMissing(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewIdempotencyRepository(db)
	err := repo.Finalize(context.Background(), "missing", uuid.NewString(), domain.IdempotencyOutcome{Hash: "0x1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIdempotencyRepository_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	accountID := uuid.NewString()

	for _, key := range []string{"old", "fresh"} {
		if _, _, err := repo.Claim(ctx, domain.IdempotencyRecord{Key: key, AccountID: accountID, UserID: "u1", Fingerprint: "fp"}); err != nil {
			t.Fatalf("claim %s: %v", key, err)
		}
		if err := repo.Finalize(ctx, key, accountID, domain.IdempotencyOutcome{Hash: "0x1", FID: 1}); err != nil {
			t.Fatalf("finalize %s: %v", key, err)
		}
	}
	if err := db.Exec("UPDATE signing_idempotency SET created_at = now() - interval '3 days' WHERE idempotency_key = 'old'").Error; err != nil {
		t.Fatalf("age row: %v", err)
	}
	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one pruned row, got %d %v", n, err)
	}
	if _, err := repo.Get(ctx, "old", accountID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected old row gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "fresh", accountID); err != nil {
		t.Fatalf("fresh row must survive: %v", err)
	}
}

func TestIdempotencyRepository_ReclaimStalePending(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	accountID := uuid.NewString()
	rec := domain.IdempotencyRecord{Key: "k1", AccountID: accountID, UserID: "u1", Fingerprint: "fp"}

	if _, claimed, err := repo.Claim(ctx, rec); err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}
	ok, err := repo.Reclaim(ctx, rec, time.Now().Add(-time.Minute))
	if err != nil || ok {
		t.Fatalf("fresh claim must not be reclaimed, got %v %v", ok, err)
	}
	if err := db.Exec("UPDATE signing_idempotency SET updated_at = now() - interval '10 minutes' WHERE idempotency_key = 'k1'").Error; err != nil {
		t.Fatalf("age row: %v", err)
	}
	staleBefore := time.Now().Add(-time.Minute)
	if ok, err := repo.Reclaim(ctx, rec, staleBefore); err != nil || !ok {
		t.Fatalf("expected reclaim, got %v %v", ok, err)
	}
	if ok, err := repo.Reclaim(ctx, rec, staleBefore); err != nil || ok {
		t.Fatalf("refreshed lease must not be reclaimed twice, got %v %v", ok, err)
	}
	if err := repo.Finalize(ctx, "k1", accountID, domain.IdempotencyOutcome{Hash: "0x1", FID: 1}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, err := repo.Get(ctx, "k1", accountID)
	if err != nil || got.Status != domain.IdempotencySucceeded {
		t.Fatalf("expected succeeded row, got %+v %v", got, err)
	}
}

func TestIdempotencyRepository_DeleteOlderThanDropsAbandonedPending(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	accountID := uuid.NewString()

	for _, key := range []string{"abandoned", "live"} {
		if _, _, err := repo.Claim(ctx, domain.IdempotencyRecord{Key: key, AccountID: accountID, UserID: "u1", Fingerprint: "fp"}); err != nil {
			t.Fatalf("claim %s: %v", key, err)
		}
	}
	if err := db.Exec("UPDATE signing_idempotency SET created_at = now() - interval '3 days', updated_at = now() - interval '3 days' WHERE idempotency_key = 'abandoned'").Error; err != nil {
		t.Fatalf("age abandoned row: %v", err)
	}
	if err := db.Exec("UPDATE signing_idempotency SET created_at = now() - interval '3 days' WHERE idempotency_key = 'live'").Error; err != nil {
		t.Fatalf("age live row: %v", err)
	}
	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one pruned row, got %d %v", n, err)
	}
	if _, err := repo.Get(ctx, "abandoned", accountID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected abandoned row gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "live", accountID); err != nil {
		t.Fatalf("recently refreshed pending row must survive: %v", err)
	}
}

func TestAuditLogRepository_Append(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()
	accountID := uuid.NewString()

	if err := repo.Append(ctx, domain.AuditLogEntry{AccountID: accountID, UserID: "u1", Action: domain.ActionCast, Success: true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(ctx, domain.AuditLogEntry{AccountID: accountID, UserID: "u1", Action: domain.ActionLike, ErrorCode: domain.CodeHubSubmissionFailed, CreatedAt: time.Now().Add(time.Second)}); err != nil {
		t.Fatalf("append failure: %v", err)
	}
	entries, err := listAuditByAccount(ctx, db, accountID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || !entries[0].Success || entries[1].ErrorCode != domain.CodeHubSubmissionFailed {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func listAuditByAccount(ctx context.Context, db *gorm.DB, accountID string) ([]domain.AuditLogEntry, error) {
	var models []AuditLogModel
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditLogEntry, 0, len(models))
	for _, m := range models {
		out = append(out, domain.AuditLogEntry{
			AccountID: m.AccountID,
			UserID:    m.UserID,
			Action:    domain.Action(m.Action),
			Success:   m.Success,
			ErrorCode: domain.ErrorCode(derefString(m.ErrorCode)),
		})
	}
	return out, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, db)
	applyMigrations(t, db)
	return db
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(424242)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(424242)")
		_ = conn.Close()
	})
}

func applyMigrations(t *testing.T, db *gorm.DB) {
	t.Helper()
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if err := db.Exec(string(sqlBytes)).Error; err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec("TRUNCATE signing_idempotency, signing_audit_log").Error; err != nil {
		t.Fatalf("reset db: %v", err)
	}
}
