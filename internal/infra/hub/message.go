package hub

import (
	"errors"
	"fmt"
	"time"

	"castgate/internal/domain"

	"google.golang.org/protobuf/encoding/protowire"
)

// FarcasterEpoch is 2021-01-01T00:00:00Z. Message timestamps count seconds
// from it.
var FarcasterEpoch = time.Unix(1609459200, 0).UTC()

type Network int32

const (
	NetworkMainnet Network = 1
	NetworkTestnet Network = 2
	NetworkDevnet  Network = 3
)

func ParseNetwork(s string) (Network, error) {
	switch s {
	case "", "mainnet":
		return NetworkMainnet, nil
	case "testnet":
		return NetworkTestnet, nil
	case "devnet":
		return NetworkDevnet, nil
	default:
		return 0, fmt.Errorf("unknown farcaster network %q", s)
	}
}

// MessageType values from the Farcaster message schema.
type MessageType int32

const (
	MessageTypeCastAdd        MessageType = 1
	MessageTypeCastRemove     MessageType = 2
	MessageTypeReactionAdd    MessageType = 3
	MessageTypeReactionRemove MessageType = 4
	MessageTypeLinkAdd        MessageType = 5
	MessageTypeLinkRemove     MessageType = 6
	MessageTypeUserDataAdd    MessageType = 11
)

const (
	reactionTypeLike   = 1
	reactionTypeRecast = 2
	linkTypeFollow     = "follow"
	hashSchemeBlake3   = 1
	sigSchemeEd25519   = 1
)

// MessageData body field numbers.
const (
	fieldCastAddBody    protowire.Number = 5
	fieldCastRemoveBody protowire.Number = 6
	fieldReactionBody   protowire.Number = 7
	fieldUserDataBody   protowire.Number = 12
	fieldLinkBody       protowire.Number = 14
)

var userDataTypes = map[domain.UserDataType]uint64{
	domain.UserDataPFP:      1,
	domain.UserDataDisplay:  2,
	domain.UserDataBio:      3,
	domain.UserDataURL:      5,
	domain.UserDataUsername: 6,
	domain.UserDataLocation: 7,
	domain.UserDataTwitter:  8,
	domain.UserDataGithub:   9,
}

var (
	errUnresolvedChannel = errors.New("channel_id must be resolved before signing")
	errEmptyHash         = errors.New("hash must not be empty")
)

// MessageTypeOf maps an operation onto its protocol message type.
func MessageTypeOf(op domain.Operation) (MessageType, error) {
	switch op.(type) {
	case domain.CastAdd:
		return MessageTypeCastAdd, nil
	case domain.CastRemove:
		return MessageTypeCastRemove, nil
	case domain.ReactionAdd:
		return MessageTypeReactionAdd, nil
	case domain.ReactionRemove:
		return MessageTypeReactionRemove, nil
	case domain.LinkAdd:
		return MessageTypeLinkAdd, nil
	case domain.LinkRemove:
		return MessageTypeLinkRemove, nil
	case domain.UserDataAdd:
		return MessageTypeUserDataAdd, nil
	default:
		return 0, fmt.Errorf("unsupported operation %T", op)
	}
}

// EncodeMessageData produces the canonical MessageData bytes that get hashed
// and signed. Fields are written in field-number order and proto3 defaults
// are omitted.
func EncodeMessageData(fid uint64, network Network, ts time.Time, op domain.Operation) ([]byte, error) {
	if fid == 0 {
		return nil, errors.New("fid must be positive")
	}
	msgType, err := MessageTypeOf(op)
	if err != nil {
		return nil, err
	}
	secs := ts.Unix() - FarcasterEpoch.Unix()
	if secs < 0 || secs > int64(^uint32(0)) {
		return nil, fmt.Errorf("timestamp %s outside farcaster range", ts)
	}

	var b []byte
	b = appendVarintField(b, 1, uint64(msgType))
	b = appendVarintField(b, 2, fid)
	b = appendVarintField(b, 3, uint64(secs))
	b = appendVarintField(b, 4, uint64(network))

	switch o := op.(type) {
	case domain.CastAdd:
		body, err := encodeCastAdd(o)
		if err != nil {
			return nil, err
		}
		b = appendMessageField(b, fieldCastAddBody, body)
	case domain.CastRemove:
		if len(o.TargetHash) == 0 {
			return nil, errEmptyHash
		}
		b = appendMessageField(b, fieldCastRemoveBody, protowire.AppendBytes(protowire.AppendTag(nil, 1, protowire.BytesType), o.TargetHash))
	case domain.ReactionAdd:
		body, err := encodeReaction(o.Type, o.Target)
		if err != nil {
			return nil, err
		}
		b = appendMessageField(b, fieldReactionBody, body)
	case domain.ReactionRemove:
		body, err := encodeReaction(o.Type, o.Target)
		if err != nil {
			return nil, err
		}
		b = appendMessageField(b, fieldReactionBody, body)
	case domain.LinkAdd:
		b = appendMessageField(b, fieldLinkBody, encodeLink(o.TargetFID))
	case domain.LinkRemove:
		b = appendMessageField(b, fieldLinkBody, encodeLink(o.TargetFID))
	case domain.UserDataAdd:
		typ, ok := userDataTypes[o.Type]
		if !ok {
			return nil, fmt.Errorf("unknown user data type %q", o.Type)
		}
		var body []byte
		body = appendVarintField(body, 1, typ)
		body = appendStringField(body, 2, o.Value)
		b = appendMessageField(b, fieldUserDataBody, body)
	}
	return b, nil
}

func encodeCastAdd(o domain.CastAdd) ([]byte, error) {
	if o.ChannelID != "" && o.ParentURL == "" {
		return nil, errUnresolvedChannel
	}
	if o.ParentCastID != nil && o.ParentURL != "" {
		return nil, errors.New("cast may have a parent cast or a parent url, not both")
	}
	if len(o.Mentions) != len(o.MentionsPositions) {
		return nil, errors.New("mentions and mentions_positions differ in length")
	}
	var b []byte
	if len(o.Mentions) > 0 {
		var packed []byte
		for _, m := range o.Mentions {
			packed = protowire.AppendVarint(packed, m)
		}
		b = appendMessageField(b, 2, packed)
	}
	if o.ParentCastID != nil {
		id, err := encodeCastID(*o.ParentCastID)
		if err != nil {
			return nil, err
		}
		b = appendMessageField(b, 3, id)
	}
	b = appendStringField(b, 4, o.Text)
	if len(o.MentionsPositions) > 0 {
		var packed []byte
		for _, p := range o.MentionsPositions {
			packed = protowire.AppendVarint(packed, uint64(p))
		}
		b = appendMessageField(b, 5, packed)
	}
	for _, e := range o.Embeds {
		var embed []byte
		switch {
		case e.CastID != nil:
			id, err := encodeCastID(*e.CastID)
			if err != nil {
				return nil, err
			}
			embed = appendMessageField(embed, 2, id)
		case e.URL != "":
			embed = appendStringField(embed, 1, e.URL)
		default:
			return nil, errors.New("embed carries neither url nor cast_id")
		}
		b = appendMessageField(b, 6, embed)
	}
	b = appendStringField(b, 7, o.ParentURL)
	return b, nil
}

func encodeReaction(t domain.ReactionType, target domain.CastID) ([]byte, error) {
	var typ uint64
	switch t {
	case domain.ReactionLike:
		typ = reactionTypeLike
	case domain.ReactionRecast:
		typ = reactionTypeRecast
	default:
		return nil, fmt.Errorf("unknown reaction type %q", t)
	}
	id, err := encodeCastID(target)
	if err != nil {
		return nil, err
	}
	var b []byte
	b = appendVarintField(b, 1, typ)
	b = appendMessageField(b, 2, id)
	return b, nil
}

func encodeLink(target uint64) []byte {
	var b []byte
	b = appendStringField(b, 1, linkTypeFollow)
	b = appendVarintField(b, 3, target)
	return b
}

func encodeCastID(id domain.CastID) ([]byte, error) {
	if id.FID == 0 {
		return nil, errors.New("cast id fid must be positive")
	}
	if len(id.Hash) == 0 {
		return nil, errEmptyHash
	}
	var b []byte
	b = appendVarintField(b, 1, id.FID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, id.Hash)
	return b, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
