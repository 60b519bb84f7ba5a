package accountdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"castgate/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultRole is the database role row-level policies are written against.
const DefaultRole = "authenticated"

const lookupAccountSQL = `
SELECT id::text, platform_account_id::text, decrypted_private_key, status, user_id::text
FROM decrypted_accounts
WHERE id = $1 AND user_id = $2
LIMIT 1`

// Store reads signing accounts. Every read happens inside a transaction that
// carries the caller's claims and role, so row-level policies apply as they
// would for the caller connecting directly.
type Store struct {
	Pool *pgxpool.Pool
	Role string
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{Pool: pool, Role: DefaultRole}, nil
}

func (s *Store) Close() {
	if s == nil || s.Pool == nil {
		return
	}
	s.Pool.Close()
}

func (s *Store) ForCaller(p domain.Principal) domain.AccountScope {
	return &callerScope{store: s, principal: p}
}

type callerScope struct {
	store     *Store
	principal domain.Principal
}

func (c *callerScope) LookupAccount(ctx context.Context, accountID string) (domain.AccountRecord, error) {
	if c.store == nil || c.store.Pool == nil {
		return domain.AccountRecord{}, domain.ErrUnavailable
	}
	callerID := strings.TrimSpace(c.principal.Subject)
	if callerID == "" {
		return domain.AccountRecord{}, domain.ErrNotFound
	}
	claims, err := claimsJSON(c.principal)
	if err != nil {
		return domain.AccountRecord{}, err
	}

	tx, err := c.store.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.AccountRecord{}, fmt.Errorf("begin account tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true), set_config('request.jwt.claim.sub', $2, true)", claims, callerID); err != nil {
		return domain.AccountRecord{}, fmt.Errorf("set caller claims: %w", err)
	}
	if role := strings.TrimSpace(c.store.Role); role != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{role}.Sanitize()); err != nil {
			return domain.AccountRecord{}, fmt.Errorf("set caller role: %w", err)
		}
	}

	var (
		id      string
		fid     *string
		key     *string
		status  *string
		ownerID *string
	)
	err = tx.QueryRow(ctx, lookupAccountSQL, accountID, callerID).Scan(&id, &fid, &key, &status, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AccountRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AccountRecord{}, fmt.Errorf("lookup account: %w", err)
	}

	rec := domain.AccountRecord{
		ID:         id,
		PrivateKey: domain.Secret(deref(key)),
		Status:     domain.AccountStatus(deref(status)),
		OwnerID:    deref(ownerID),
	}
	if raw := strings.TrimSpace(deref(fid)); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rec.FID = parsed
		}
	}
	return rec, nil
}

func claimsJSON(p domain.Principal) (string, error) {
	claims := make(map[string]any, len(p.RawClaims)+2)
	for k, v := range p.RawClaims {
		claims[k] = v
	}
	claims["sub"] = p.Subject
	if _, ok := claims["role"]; !ok && p.Role != "" {
		claims["role"] = p.Role
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode caller claims: %w", err)
	}
	return string(payload), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.AccountStore = (*Store)(nil)
