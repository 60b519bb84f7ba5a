package hub

import (
	"bytes"
	"crypto/ed25519"

	"castgate/internal/domain"

	"lukechampine.com/blake3"
)

const HashSize = 20

// SignedMessage is a Message envelope ready for submission.
type SignedMessage struct {
	DataBytes []byte
	Hash      domain.Hash
	Signature []byte
	Signer    ed25519.PublicKey
}

// MessageHash is BLAKE3 over data truncated to 160 bits.
func MessageHash(data []byte) domain.Hash {
	sum := blake3.Sum256(data)
	out := make([]byte, HashSize)
	copy(out, sum[:HashSize])
	return out
}

// Sign hashes dataBytes and signs the hash with key. The expanded private key
// is wiped before returning; the caller still owns key and must Zero it.
func Sign(key *domain.SigningKey, dataBytes []byte) (SignedMessage, error) {
	seed := key.Seed()
	if len(seed) != ed25519.SeedSize {
		return SignedMessage{}, domain.ErrInvalidSigningKey
	}
	priv := ed25519.NewKeyFromSeed(seed)
	defer func() {
		for i := range priv {
			priv[i] = 0
		}
	}()
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.SeedSize:])

	hash := MessageHash(dataBytes)
	return SignedMessage{
		DataBytes: dataBytes,
		Hash:      hash,
		Signature: ed25519.Sign(priv, hash),
		Signer:    pub,
	}, nil
}

// verify checks the hash and signature of m. Hubs perform the same checks.
func (m SignedMessage) verify() bool {
	if len(m.Signer) != ed25519.PublicKeySize {
		return false
	}
	if !bytes.Equal(MessageHash(m.DataBytes), m.Hash) {
		return false
	}
	return ed25519.Verify(m.Signer, m.Hash, m.Signature)
}

// Encode serializes the Message envelope. data and data_bytes carry the same
// bytes so hubs verify against exactly what was signed.
func (m SignedMessage) Encode() []byte {
	var b []byte
	b = appendMessageField(b, 1, m.DataBytes)
	b = appendMessageField(b, 2, m.Hash)
	b = appendVarintField(b, 3, hashSchemeBlake3)
	b = appendMessageField(b, 4, m.Signature)
	b = appendVarintField(b, 5, sigSchemeEd25519)
	b = appendMessageField(b, 6, m.Signer)
	b = appendMessageField(b, 7, m.DataBytes)
	return b
}
