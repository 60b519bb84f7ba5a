package hub

import (
	"encoding/hex"
	"testing"
	"time"

	"castgate/internal/domain"

	"google.golang.org/protobuf/encoding/protowire"
)

// fields decodes one level of a protobuf message into number -> raw values.
func fields(t *testing.T, b []byte) map[protowire.Number][]any {
	t.Helper()
	out := map[protowire.Number][]any{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			t.Fatalf("bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				t.Fatalf("bad varint: %v", protowire.ParseError(n))
			}
			out[num] = append(out[num], v)
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				t.Fatalf("bad bytes: %v", protowire.ParseError(n))
			}
			out[num] = append(out[num], v)
			b = b[n:]
		default:
			t.Fatalf("unexpected wire type %v", typ)
		}
	}
	return out
}

var testTime = FarcasterEpoch.Add(100 * time.Second)

func TestEncodeCastAdd(t *testing.T) {
	op := domain.CastAdd{
		Text:              "hello @a",
		ParentURL:         "https://warpcast.com/~/channel/dev",
		Mentions:          []uint64{7},
		MentionsPositions: []uint32{6},
		Embeds:            []domain.Embed{{URL: "https://example.com"}, {CastID: &domain.CastID{FID: 9, Hash: domain.Hash{0xab}}}},
	}
	data, err := EncodeMessageData(42, NetworkMainnet, testTime, op)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	top := fields(t, data)
	if top[1][0].(uint64) != uint64(MessageTypeCastAdd) {
		t.Fatalf("unexpected type %v", top[1])
	}
	if top[2][0].(uint64) != 42 || top[3][0].(uint64) != 100 || top[4][0].(uint64) != 1 {
		t.Fatalf("unexpected header fields %v %v %v", top[2], top[3], top[4])
	}
	body := fields(t, top[fieldCastAddBody][0].([]byte))
	if string(body[4][0].([]byte)) != "hello @a" {
		t.Fatalf("unexpected text %q", body[4][0])
	}
	if string(body[7][0].([]byte)) != op.ParentURL {
		t.Fatalf("unexpected parent url %q", body[7][0])
	}
	if len(body[6]) != 2 {
		t.Fatalf("expected two embeds, got %d", len(body[6]))
	}
	embed := fields(t, body[6][1].([]byte))
	castID := fields(t, embed[2][0].([]byte))
	if castID[1][0].(uint64) != 9 || hex.EncodeToString(castID[2][0].([]byte)) != "ab" {
		t.Fatalf("unexpected embed cast id %v", castID)
	}
	mentions, n := protowire.ConsumeVarint(body[2][0].([]byte))
	if n < 0 || mentions != 7 {
		t.Fatalf("unexpected packed mentions %v", body[2])
	}
}

func TestEncodeRejectsUnresolvedChannel(t *testing.T) {
	_, err := EncodeMessageData(1, NetworkMainnet, testTime, domain.CastAdd{Text: "x", ChannelID: "dev"})
	if err == nil {
		t.Fatal("expected error for unresolved channel")
	}
}

func TestEncodeReactionAndLink(t *testing.T) {
	target := domain.CastID{FID: 3, Hash: domain.Hash{0x01, 0x02}}
	data, err := EncodeMessageData(1, NetworkMainnet, testTime, domain.ReactionRemove{Type: domain.ReactionRecast, Target: target})
	if err != nil {
		t.Fatalf("encode reaction: %v", err)
	}
	top := fields(t, data)
	if top[1][0].(uint64) != uint64(MessageTypeReactionRemove) {
		t.Fatalf("unexpected type %v", top[1])
	}
	body := fields(t, top[fieldReactionBody][0].([]byte))
	if body[1][0].(uint64) != reactionTypeRecast {
		t.Fatalf("unexpected reaction type %v", body[1])
	}

	data, err = EncodeMessageData(1, NetworkMainnet, testTime, domain.LinkAdd{TargetFID: 77})
	if err != nil {
		t.Fatalf("encode link: %v", err)
	}
	link := fields(t, fields(t, data)[fieldLinkBody][0].([]byte))
	if string(link[1][0].([]byte)) != "follow" || link[3][0].(uint64) != 77 {
		t.Fatalf("unexpected link body %v", link)
	}
}

func TestEncodeUserData(t *testing.T) {
	data, err := EncodeMessageData(1, NetworkMainnet, testTime, domain.UserDataAdd{Type: domain.UserDataDisplay, Value: "Alice"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	body := fields(t, fields(t, data)[fieldUserDataBody][0].([]byte))
	if body[1][0].(uint64) != 2 || string(body[2][0].([]byte)) != "Alice" {
		t.Fatalf("unexpected user data body %v", body)
	}
}

func TestEncodeRejectsPreEpochTimestamp(t *testing.T) {
	_, err := EncodeMessageData(1, NetworkMainnet, FarcasterEpoch.Add(-time.Second), domain.LinkAdd{TargetFID: 2})
	if err == nil {
		t.Fatal("expected error for timestamp before epoch")
	}
}
