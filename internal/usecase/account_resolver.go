package usecase

import (
	"context"
	"errors"
	"fmt"

	"castgate/internal/domain"
)

// ResolveSigningAccount reads accountID through the caller's scope and
// returns it only if the caller may sign with it. Checks run in a fixed
// order: absent, not active, then structurally incomplete.
func ResolveSigningAccount(ctx context.Context, scope domain.AccountScope, callerID, accountID string) (domain.SigningAccount, error) {
	if scope == nil {
		return domain.SigningAccount{}, domain.NewError(domain.CodeInternal, "internal error")
	}
	rec, err := scope.LookupAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SigningAccount{}, accountNotFound("Account not found")
		}
		return domain.SigningAccount{}, domain.WrapError(domain.CodeInternal, "internal error", err)
	}
	// A row owned by someone else is indistinguishable from no row.
	if callerID != "" && rec.OwnerID != "" && rec.OwnerID != callerID {
		return domain.SigningAccount{}, accountNotFound("Account not found")
	}
	if rec.Status != domain.AccountStatusActive {
		return domain.SigningAccount{}, domain.NewError(domain.CodeAccountPending,
			fmt.Sprintf("Account is not active (current status: %s)", statusLabel(rec.Status))).
			WithDetail("status", statusLabel(rec.Status))
	}
	if rec.FID <= 0 {
		return domain.SigningAccount{}, accountNotFound("Account has no FID")
	}
	if rec.PrivateKey.Empty() {
		return domain.SigningAccount{}, accountNotFound("Account has no private key")
	}
	if rec.OwnerID == "" {
		return domain.SigningAccount{}, accountNotFound("Account has no user")
	}
	key, err := domain.ParseSigningKey(rec.PrivateKey)
	if err != nil {
		return domain.SigningAccount{}, domain.WrapError(domain.CodeAccountNotFound, "Account has no usable private key", err)
	}
	return domain.SigningAccount{
		AccountID: rec.ID,
		FID:       uint64(rec.FID),
		OwnerID:   rec.OwnerID,
		Key:       key,
	}, nil
}

func accountNotFound(msg string) *domain.Error {
	return domain.NewError(domain.CodeAccountNotFound, msg)
}

func statusLabel(s domain.AccountStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}
