package domain

import (
	"encoding/hex"
	"strings"
)

// Action names the kind of signing operation. The values double as the audit
// log action vocabulary.
type Action string

const (
	ActionCast         Action = "cast"
	ActionRemoveCast   Action = "remove_cast"
	ActionLike         Action = "like"
	ActionRecast       Action = "recast"
	ActionRemoveLike   Action = "remove_like"
	ActionRemoveRecast Action = "remove_recast"
	ActionFollow       Action = "follow"
	ActionUnfollow     Action = "unfollow"
	ActionUserData     Action = "user_data"
)

// Hash is a Farcaster message hash. It renders as 0x-prefixed lowercase hex.
type Hash []byte

func ParseHash(s string) (Hash, error) {
	if !strings.HasPrefix(s, "0x") || len(s) <= 2 {
		return nil, ErrInvalidHash
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, ErrInvalidHash
	}
	return Hash(b), nil
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h)
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

type CastID struct {
	FID  uint64 `json:"fid"`
	Hash Hash   `json:"hash"`
}

// Embed carries exactly one of URL or CastID.
type Embed struct {
	URL    string  `json:"url,omitempty"`
	CastID *CastID `json:"cast_id,omitempty"`
}

type ReactionType string

const (
	ReactionLike   ReactionType = "like"
	ReactionRecast ReactionType = "recast"
)

type UserDataType string

const (
	UserDataPFP      UserDataType = "pfp"
	UserDataDisplay  UserDataType = "display"
	UserDataBio      UserDataType = "bio"
	UserDataURL      UserDataType = "url"
	UserDataUsername UserDataType = "username"
	UserDataLocation UserDataType = "location"
	UserDataTwitter  UserDataType = "twitter"
	UserDataGithub   UserDataType = "github"
)

// Operation is the closed set of signable intents. Values are produced only
// by request validation.
type Operation interface {
	Action() Action
	isOperation()
}

type CastAdd struct {
	Text              string   `json:"text"`
	Embeds            []Embed  `json:"embeds,omitempty"`
	Mentions          []uint64 `json:"mentions,omitempty"`
	MentionsPositions []uint32 `json:"mentions_positions,omitempty"`
	ParentCastID      *CastID  `json:"parent_cast_id,omitempty"`
	ParentURL         string   `json:"parent_url,omitempty"`
	// ChannelID is replaced by ParentURL during reference resolution.
	ChannelID string `json:"channel_id,omitempty"`
}

type CastRemove struct {
	TargetHash Hash `json:"cast_hash"`
}

type ReactionAdd struct {
	Type   ReactionType `json:"type"`
	Target CastID       `json:"target"`
}

type ReactionRemove struct {
	Type   ReactionType `json:"type"`
	Target CastID       `json:"target"`
}

type LinkAdd struct {
	TargetFID uint64 `json:"target_fid"`
}

type LinkRemove struct {
	TargetFID uint64 `json:"target_fid"`
}

type UserDataAdd struct {
	Type  UserDataType `json:"type"`
	Value string       `json:"value"`
}

func (CastAdd) Action() Action     { return ActionCast }
func (CastRemove) Action() Action  { return ActionRemoveCast }
func (LinkAdd) Action() Action     { return ActionFollow }
func (LinkRemove) Action() Action  { return ActionUnfollow }
func (UserDataAdd) Action() Action { return ActionUserData }

func (r ReactionAdd) Action() Action {
	if r.Type == ReactionRecast {
		return ActionRecast
	}
	return ActionLike
}

func (r ReactionRemove) Action() Action {
	if r.Type == ReactionRecast {
		return ActionRemoveRecast
	}
	return ActionRemoveLike
}

func (CastAdd) isOperation()        {}
func (CastRemove) isOperation()     {}
func (ReactionAdd) isOperation()    {}
func (ReactionRemove) isOperation() {}
func (LinkAdd) isOperation()        {}
func (LinkRemove) isOperation()     {}
func (UserDataAdd) isOperation()    {}

// SignRequest is a validated operation together with its routing fields.
type SignRequest struct {
	AccountID      string
	IdempotencyKey string
	Op             Operation
}

// SignResult is the success payload returned to clients.
type SignResult struct {
	Hash string `json:"hash"`
	FID  uint64 `json:"fid"`
}
