package usecase

import (
	"context"

	"castgate/internal/domain"
)

type ChannelResolver interface {
	ResolveParentURL(ctx context.Context, channelID string) (string, error)
}

// MessageSubmitter signs op with the account key and submits it. It owns the
// key from the moment it is called and zeroes it before returning.
type MessageSubmitter interface {
	SignAndSubmit(ctx context.Context, account domain.SigningAccount, op domain.Operation) (domain.SignResult, error)
}
