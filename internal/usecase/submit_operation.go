package usecase

import (
	"context"
	"time"

	"castgate/internal/domain"
	"castgate/internal/infra/metrics"

	"go.uber.org/zap"
)

const (
	defaultDetachedTimeout = 30 * time.Second
	finalizeTimeout        = 5 * time.Second
)

type SubmitOperationRequest struct {
	Auth    domain.AuthContext
	Request domain.SignRequest
}

// SubmitOperation runs one validated write through policy, reference
// resolution, the idempotency ledger, account resolution and signing, and
// audits the outcome.
type SubmitOperation struct {
	Policy    domain.PolicyEngine
	Channels  ChannelResolver
	Ledger    *IdempotencyLedger
	Submitter MessageSubmitter
	Audit     *AuditLogger
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// DetachedTimeout bounds the stages that run after a ledger claim, which
	// no longer follow client cancellation.
	DetachedTimeout time.Duration
}

func (uc *SubmitOperation) Execute(ctx context.Context, req SubmitOperationRequest) (domain.SignResult, error) {
	op := req.Request.Op
	if op == nil {
		return domain.SignResult{}, domain.NewError(domain.CodeInvalidMessage, "Invalid request")
	}
	action := op.Action()
	result, replayed, err := uc.execute(ctx, req)

	code := domain.CodeOf(err)
	uc.countOutcome(action, code)
	if err != nil {
		uc.logFailure(req, action, err)
	}
	if !replayed {
		uc.Audit.Log(domain.AuditLogEntry{
			AccountID: req.Request.AccountID,
			UserID:    req.Auth.CallerID(),
			Action:    action,
			Success:   err == nil,
			ErrorCode: code,
		})
	}
	return result, err
}

func (uc *SubmitOperation) execute(ctx context.Context, req SubmitOperationRequest) (domain.SignResult, bool, error) {
	callerID := req.Auth.CallerID()
	accountID := req.Request.AccountID
	op := req.Request.Op

	if err := uc.checkPolicy(ctx, req); err != nil {
		return domain.SignResult{}, false, err
	}

	var fingerprint string
	key := req.Request.IdempotencyKey
	useLedger := key != "" && uc.Ledger != nil
	if useLedger {
		fp, err := Fingerprint(accountID, op)
		if err != nil {
			return domain.SignResult{}, false, domain.WrapError(domain.CodeInternal, "internal error", err)
		}
		fingerprint = fp
	}

	op, err := uc.resolveReferences(ctx, op)
	if err != nil {
		return domain.SignResult{}, false, err
	}

	if useLedger {
		replay, claimed, err := uc.Ledger.Claim(ctx, domain.IdempotencyRecord{
			Key:         key,
			AccountID:   accountID,
			UserID:      callerID,
			Fingerprint: fingerprint,
		})
		if err != nil {
			return domain.SignResult{}, false, err
		}
		if !claimed {
			return *replay, true, nil
		}
	}

	// From here on the outcome must be recorded even if the client leaves.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.detachedTimeout())
	defer cancel()

	if !useLedger {
		result, err := uc.signAndSubmit(dctx, req.Auth, accountID, op)
		return result, false, err
	}

	// The claim is settled on every exit. A panic leaves the INTERNAL_ERROR
	// outcome in place.
	outcome := domain.IdempotencyOutcome{ErrorCode: domain.CodeInternal}
	defer func() { uc.finalize(ctx, key, accountID, outcome) }()

	result, err := uc.signAndSubmit(dctx, req.Auth, accountID, op)
	if err != nil {
		outcome = domain.IdempotencyOutcome{ErrorCode: domain.CodeOf(err)}
	} else {
		outcome = domain.IdempotencyOutcome{Hash: result.Hash, FID: result.FID}
	}
	return result, false, err
}

// finalize runs on its own deadline so a signing stage that used up the
// detached budget still records its outcome.
func (uc *SubmitOperation) finalize(ctx context.Context, key, accountID string, outcome domain.IdempotencyOutcome) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	uc.Ledger.Finalize(fctx, key, accountID, outcome)
}

func (uc *SubmitOperation) signAndSubmit(ctx context.Context, auth domain.AuthContext, accountID string, op domain.Operation) (domain.SignResult, error) {
	account, err := ResolveSigningAccount(ctx, auth.Accounts, auth.CallerID(), accountID)
	if err != nil {
		return domain.SignResult{}, err
	}
	return uc.Submitter.SignAndSubmit(ctx, account, op)
}

func (uc *SubmitOperation) checkPolicy(ctx context.Context, req SubmitOperationRequest) error {
	if uc.Policy == nil {
		return nil
	}
	res, err := uc.Policy.Evaluate(ctx, domain.PolicyInput{
		CallerID:  req.Auth.CallerID(),
		AccountID: req.Request.AccountID,
		Action:    req.Request.Op.Action(),
		Operation: req.Request.Op,
		Claims:    req.Auth.Principal.RawClaims,
	})
	if err != nil {
		return domain.WrapError(domain.CodeInternal, "internal error", err)
	}
	if res.Allow && len(res.Deny) == 0 {
		return nil
	}
	derr := domain.NewError(domain.CodePolicyDenied, "Operation denied by signing policy")
	if len(res.Deny) > 0 {
		derr = derr.WithDetail("deny", res.Deny)
	}
	return derr
}

func (uc *SubmitOperation) resolveReferences(ctx context.Context, op domain.Operation) (domain.Operation, error) {
	cast, ok := op.(domain.CastAdd)
	if !ok || cast.ChannelID == "" {
		return op, nil
	}
	if cast.ParentURL != "" {
		return nil, domain.NewError(domain.CodeInvalidMessage, "Cannot specify both channel_id and parent_url")
	}
	if uc.Channels == nil {
		return nil, domain.NewError(domain.CodeChannelNotFound, "Channel not found: "+cast.ChannelID).
			WithDetail("channel_id", cast.ChannelID)
	}
	parentURL, err := uc.Channels.ResolveParentURL(ctx, cast.ChannelID)
	if err != nil {
		return nil, err
	}
	cast.ParentURL = parentURL
	cast.ChannelID = ""
	return cast, nil
}

func (uc *SubmitOperation) detachedTimeout() time.Duration {
	if uc.DetachedTimeout > 0 {
		return uc.DetachedTimeout
	}
	return defaultDetachedTimeout
}

func (uc *SubmitOperation) countOutcome(action domain.Action, code domain.ErrorCode) {
	if uc.Metrics == nil {
		return
	}
	label := string(code)
	if label == "" {
		label = "OK"
	}
	uc.Metrics.SigningOutcomes.WithLabelValues(string(action), label).Inc()
}

func (uc *SubmitOperation) logFailure(req SubmitOperationRequest, action domain.Action, err error) {
	if uc.Logger == nil {
		return
	}
	de := domain.AsError(err)
	fields := []zap.Field{
		zap.String("account_id", req.Request.AccountID),
		zap.String("user_id", req.Auth.CallerID()),
		zap.String("action", string(action)),
		zap.String("code", string(de.Code)),
	}
	switch de.Code {
	case domain.CodeInternal, domain.CodeHubSubmissionFailed:
		uc.Logger.Warn("signing request failed", append(fields, zap.Error(err))...)
	default:
		uc.Logger.Info("signing request rejected", fields...)
	}
}
