package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"castgate/internal/domain"

	"github.com/go-playground/validator/v10"
)

const MaxIdempotencyKey = 255

const describeHash = "must be 0x followed by an even number of hex characters"

// userDataLimits are the per-type byte limits for profile values.
var userDataLimits = map[domain.UserDataType]int{
	domain.UserDataPFP:      256,
	domain.UserDataDisplay:  32,
	domain.UserDataBio:      256,
	domain.UserDataURL:      256,
	domain.UserDataUsername: 20,
	domain.UserDataLocation: 256,
	domain.UserDataTwitter:  15,
	domain.UserDataGithub:   39,
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator turns raw request bodies into domain operations. It performs no
// I/O and reports every violated field in a single INVALID_MESSAGE error.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hexhash", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseHash(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	_ = v.RegisterValidation("idemkey", func(fl validator.FieldLevel) bool {
		return validIdempotencyKey(fl.Field().String())
	})
	v.RegisterStructValidation(castRequestRules, castRequest{})
	v.RegisterStructValidation(embedRules, embedRequest{})
	v.RegisterStructValidation(userDataRules, userDataRequest{})
	return &Validator{v: v}
}

func castRequestRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(castRequest)
	if req.ChannelID != "" && req.ParentURL != "" {
		sl.ReportError(req.ChannelID, "channel_id", "ChannelID", "exclusive", "parent_url")
	}
	if len(req.Mentions) != len(req.MentionsPositions) {
		sl.ReportError(req.MentionsPositions, "mentions_positions", "MentionsPositions", "pairs", "mentions")
	}
	for i, pos := range req.MentionsPositions {
		if pos > int64(len(req.Text)) {
			sl.ReportError(pos, fmt.Sprintf("mentions_positions[%d]", i), "MentionsPositions", "position", "")
		}
		if i > 0 && pos < req.MentionsPositions[i-1] {
			sl.ReportError(pos, fmt.Sprintf("mentions_positions[%d]", i), "MentionsPositions", "ascending", "")
		}
	}
}

func embedRules(sl validator.StructLevel) {
	e := sl.Current().Interface().(embedRequest)
	if (e.URL == "") == (e.CastID == nil) {
		sl.ReportError(e.URL, "url", "URL", "oneembed", "")
	}
}

func userDataRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(userDataRequest)
	limit, ok := userDataLimits[domain.UserDataType(req.Type)]
	if !ok {
		return
	}
	if len(req.Value) > limit {
		sl.ReportError(req.Value, "value", "Value", "maxbytes", strconv.Itoa(limit))
	}
}

func validIdempotencyKey(key string) bool {
	if key == "" || len(key) > MaxIdempotencyKey {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

// IdempotencyKey checks a key supplied out of band, e.g. in a header.
func (v *Validator) IdempotencyKey(key string) error {
	if validIdempotencyKey(key) {
		return nil
	}
	return invalid([]FieldError{{Field: "idempotency_key", Message: "must be 1-255 printable ASCII characters"}})
}

func (v *Validator) Cast(body []byte) (domain.SignRequest, error) {
	var req castRequest
	if err := v.decode(body, &req); err != nil {
		return domain.SignRequest{}, err
	}
	op := domain.CastAdd{
		Text:      req.Text,
		ChannelID: req.ChannelID,
		ParentURL: req.ParentURL,
	}
	if req.ParentCastID != nil {
		id, err := toCastID(*req.ParentCastID, "parent_cast_id")
		if err != nil {
			return domain.SignRequest{}, err
		}
		op.ParentCastID = &id
	}
	for i, e := range req.Embeds {
		if e.CastID != nil {
			id, err := toCastID(*e.CastID, fmt.Sprintf("embeds[%d].cast_id", i))
			if err != nil {
				return domain.SignRequest{}, err
			}
			op.Embeds = append(op.Embeds, domain.Embed{CastID: &id})
			continue
		}
		op.Embeds = append(op.Embeds, domain.Embed{URL: e.URL})
	}
	for i := range req.Mentions {
		op.Mentions = append(op.Mentions, uint64(req.Mentions[i]))
		op.MentionsPositions = append(op.MentionsPositions, uint32(req.MentionsPositions[i]))
	}
	return domain.SignRequest{AccountID: req.AccountID, IdempotencyKey: req.IdempotencyKey, Op: op}, nil
}

func (v *Validator) DeleteCast(body []byte) (domain.SignRequest, error) {
	var req deleteCastRequest
	if err := v.decode(body, &req); err != nil {
		return domain.SignRequest{}, err
	}
	hash, err := domain.ParseHash(req.CastHash)
	if err != nil {
		return domain.SignRequest{}, invalid([]FieldError{{Field: "cast_hash", Message: describeHash}})
	}
	return domain.SignRequest{AccountID: req.AccountID, Op: domain.CastRemove{TargetHash: hash}}, nil
}

func (v *Validator) Reaction(body []byte, remove bool) (domain.SignRequest, error) {
	var req reactionRequest
	if err := v.decode(body, &req); err != nil {
		return domain.SignRequest{}, err
	}
	target, err := toCastID(*req.Target, "target")
	if err != nil {
		return domain.SignRequest{}, err
	}
	typ := domain.ReactionType(req.Type)
	var op domain.Operation = domain.ReactionAdd{Type: typ, Target: target}
	if remove {
		op = domain.ReactionRemove{Type: typ, Target: target}
	}
	return domain.SignRequest{AccountID: req.AccountID, Op: op}, nil
}

func (v *Validator) Follow(body []byte, remove bool) (domain.SignRequest, error) {
	var req followRequest
	if err := v.decode(body, &req); err != nil {
		return domain.SignRequest{}, err
	}
	var op domain.Operation = domain.LinkAdd{TargetFID: uint64(req.TargetFID)}
	if remove {
		op = domain.LinkRemove{TargetFID: uint64(req.TargetFID)}
	}
	return domain.SignRequest{AccountID: req.AccountID, Op: op}, nil
}

func (v *Validator) UserData(body []byte) (domain.SignRequest, error) {
	var req userDataRequest
	if err := v.decode(body, &req); err != nil {
		return domain.SignRequest{}, err
	}
	op := domain.UserDataAdd{Type: domain.UserDataType(req.Type), Value: req.Value}
	return domain.SignRequest{AccountID: req.AccountID, Op: op}, nil
}

func toCastID(r castIDRequest, field string) (domain.CastID, error) {
	hash, err := domain.ParseHash(r.Hash)
	if err != nil {
		return domain.CastID{}, invalid([]FieldError{{Field: field + ".hash", Message: describeHash}})
	}
	return domain.CastID{FID: uint64(r.FID), Hash: hash}, nil
}

func (v *Validator) decode(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.NewError(domain.CodeInvalidMessage, "Invalid request: body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return invalid([]FieldError{{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()}})
		}
		return domain.WrapError(domain.CodeInvalidMessage, "Invalid request: malformed JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.NewError(domain.CodeInvalidMessage, "Invalid request: trailing data after JSON body")
	}
	if err := v.v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.WrapError(domain.CodeInvalidMessage, "Invalid request", err)
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		return invalid(fields)
	}
	return nil
}

func invalid(fields []FieldError) error {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return domain.NewError(domain.CodeInvalidMessage, "Invalid request: "+strings.Join(parts, ", ")).
		WithDetail("fields", fields)
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "hexhash":
		return describeHash
	case "maxbytes":
		return "must not exceed " + fe.Param() + " bytes"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must contain at most " + fe.Param() + " items"
		}
		return "must not exceed " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		return "must be a valid URL"
	case "exclusive":
		return "use channel_id or parent_url, not both"
	case "pairs":
		return "must have the same length as mentions"
	case "position":
		return "must not exceed the text length"
	case "ascending":
		return "must be in ascending order"
	case "oneembed":
		return "embed must contain exactly one of url or cast_id"
	case "idemkey":
		return "must be 1-255 printable ASCII characters"
	default:
		return "is invalid"
	}
}
