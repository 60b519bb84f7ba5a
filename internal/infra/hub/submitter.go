package hub

import (
	"context"
	"errors"
	"time"

	"castgate/internal/domain"
)

var errSelfCheck = errors.New("hub: signed message failed verification")

// Submitter builds, signs and submits protocol messages for one network.
type Submitter struct {
	Client  *Client
	Network Network
	Now     func() time.Time
}

func NewSubmitter(client *Client, network Network) *Submitter {
	return &Submitter{Client: client, Network: network, Now: time.Now}
}

// SignAndSubmit signs op for account and submits it. The account key is
// zeroed before the network call regardless of outcome.
func (s *Submitter) SignAndSubmit(ctx context.Context, account domain.SigningAccount, op domain.Operation) (domain.SignResult, error) {
	defer account.Key.Zero()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	data, err := EncodeMessageData(account.FID, s.Network, now(), op)
	if err != nil {
		return domain.SignResult{}, domain.WrapError(domain.CodeInvalidMessage, "Failed to build message", err)
	}
	msg, err := Sign(account.Key, data)
	account.Key.Zero()
	if err != nil {
		return domain.SignResult{}, domain.WrapError(domain.CodeInternal, "internal error", err)
	}
	if !msg.verify() {
		return domain.SignResult{}, domain.WrapError(domain.CodeInternal, "internal error", errSelfCheck)
	}

	hash, err := s.Client.Submit(ctx, msg)
	if err != nil {
		return domain.SignResult{}, err
	}
	return domain.SignResult{Hash: hash, FID: account.FID}, nil
}
