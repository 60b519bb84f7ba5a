package domain

import (
	"context"
	"encoding/hex"
	"strings"
)

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusPending AccountStatus = "pending"
)

// AccountRecord is a row as returned from the account store, before any
// lifecycle or ownership checks.
type AccountRecord struct {
	ID         string
	FID        int64
	PrivateKey Secret
	Status     AccountStatus
	OwnerID    string
}

// AccountStore hands out scopes. Implementations must make every read through
// the returned scope subject to the caller's row-level authorization.
type AccountStore interface {
	ForCaller(p Principal) AccountScope
}

type AccountScope interface {
	LookupAccount(ctx context.Context, accountID string) (AccountRecord, error)
}

// SigningAccount is an account that passed resolution and may sign.
type SigningAccount struct {
	AccountID string
	FID       uint64
	OwnerID   string
	Key       *SigningKey
}

// Secret is a string that never renders its value.
type Secret string

func (Secret) String() string               { return "[REDACTED]" }
func (Secret) GoString() string             { return "[REDACTED]" }
func (Secret) MarshalJSON() ([]byte, error) { return []byte(`"[REDACTED]"`), nil }
func (s Secret) Reveal() string             { return string(s) }
func (s Secret) Empty() bool                { return strings.TrimSpace(string(s)) == "" }

const SigningKeySeedSize = 32

// SigningKey holds an Ed25519 seed. Call Zero once signing is finished.
type SigningKey struct {
	seed []byte
}

// ParseSigningKey accepts 64 hex characters with an optional 0x prefix.
func ParseSigningKey(s Secret) (*SigningKey, error) {
	raw := strings.TrimSpace(s.Reveal())
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(raw) != SigningKeySeedSize*2 {
		return nil, ErrInvalidSigningKey
	}
	seed, err := hex.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalidSigningKey
	}
	return &SigningKey{seed: seed}, nil
}

func NewSigningKey(seed []byte) (*SigningKey, error) {
	if len(seed) != SigningKeySeedSize {
		return nil, ErrInvalidSigningKey
	}
	cp := make([]byte, len(seed))
	copy(cp, seed)
	return &SigningKey{seed: cp}, nil
}

// Seed returns the live seed slice. Callers must not retain it.
func (k *SigningKey) Seed() []byte {
	if k == nil {
		return nil
	}
	return k.seed
}

func (k *SigningKey) Zero() {
	if k == nil {
		return
	}
	for i := range k.seed {
		k.seed[i] = 0
	}
	k.seed = nil
}

func (k *SigningKey) String() string   { return "[REDACTED]" }
func (k *SigningKey) GoString() string { return "[REDACTED]" }
