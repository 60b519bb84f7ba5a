package validation

// Wire shapes of the write endpoints. FIDs decode as int64 so that negative
// numbers surface as field errors rather than JSON type errors.

type castIDRequest struct {
	FID  int64  `json:"fid" validate:"gt=0"`
	Hash string `json:"hash" validate:"required,hexhash"`
}

type embedRequest struct {
	URL    string         `json:"url" validate:"omitempty,url"`
	CastID *castIDRequest `json:"cast_id" validate:"omitempty"`
}

type castRequest struct {
	AccountID         string         `json:"account_id" validate:"required,uuid"`
	Text              string         `json:"text" validate:"required,maxbytes=1024"`
	ChannelID         string         `json:"channel_id" validate:"omitempty,max=64"`
	ParentURL         string         `json:"parent_url" validate:"omitempty,url,maxbytes=256"`
	ParentCastID      *castIDRequest `json:"parent_cast_id" validate:"omitempty"`
	Embeds            []embedRequest `json:"embeds" validate:"omitempty,max=2,dive"`
	Mentions          []int64        `json:"mentions" validate:"omitempty,max=10,dive,gt=0"`
	MentionsPositions []int64        `json:"mentions_positions" validate:"omitempty,max=10,dive,gte=0"`
	IdempotencyKey    string         `json:"idempotency_key" validate:"omitempty,idemkey"`
}

type deleteCastRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	CastHash  string `json:"cast_hash" validate:"required,hexhash"`
}

type reactionRequest struct {
	AccountID string         `json:"account_id" validate:"required,uuid"`
	Type      string         `json:"type" validate:"required,oneof=like recast"`
	Target    *castIDRequest `json:"target" validate:"required"`
}

type followRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	TargetFID int64  `json:"target_fid" validate:"gt=0"`
}

type userDataRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
	Type      string `json:"type" validate:"required,oneof=pfp display bio url username location twitter github"`
	Value     string `json:"value"`
}
