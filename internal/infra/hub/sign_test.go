package hub

import (
	"encoding/hex"
	"testing"

	"castgate/internal/domain"
)

const (
	rfc8032Seed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	rfc8032Pub  = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
)

func TestMessageHashIsTruncatedBlake3(t *testing.T) {
	got := MessageHash(nil).String()
	if got != "0xaf1349b9f5f9a1a6a0404dea36dcc9499bcb25c9" {
		t.Fatalf("unexpected hash %s", got)
	}
}

func TestSignProducesVerifiableEnvelope(t *testing.T) {
	key, err := domain.ParseSigningKey(domain.Secret("0x" + rfc8032Seed))
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	data, err := EncodeMessageData(5, NetworkMainnet, testTime, domain.LinkAdd{TargetFID: 6})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Sign(key, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if hex.EncodeToString(msg.Signer) != rfc8032Pub {
		t.Fatalf("unexpected signer %x", msg.Signer)
	}
	if len(msg.Hash) != HashSize || !msg.verify() {
		t.Fatal("expected verifiable message")
	}
	msg.DataBytes = append([]byte{}, data...)
	msg.DataBytes[len(msg.DataBytes)-1] ^= 0xff
	if msg.verify() {
		t.Fatal("tampered data must not verify")
	}
}

func TestEncodeEnvelopeCarriesDataBytes(t *testing.T) {
	key, _ := domain.ParseSigningKey(domain.Secret(rfc8032Seed))
	data, _ := EncodeMessageData(5, NetworkMainnet, testTime, domain.LinkAdd{TargetFID: 6})
	msg, err := Sign(key, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	env := fields(t, msg.Encode())
	if string(env[7][0].([]byte)) != string(data) || string(env[1][0].([]byte)) != string(data) {
		t.Fatal("envelope must carry data and data_bytes")
	}
	if env[3][0].(uint64) != hashSchemeBlake3 || env[5][0].(uint64) != sigSchemeEd25519 {
		t.Fatalf("unexpected schemes %v %v", env[3], env[5])
	}
}

func TestSignRejectsZeroedKey(t *testing.T) {
	key, _ := domain.ParseSigningKey(domain.Secret(rfc8032Seed))
	key.Zero()
	if _, err := Sign(key, []byte("x")); err == nil {
		t.Fatal("expected error after zeroing")
	}
}
