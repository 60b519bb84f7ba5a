package domain

import "context"

type Principal struct {
	Subject   string
	Email     string
	Role      string
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

// AuthContext is what a request carries after authentication. Accounts is
// bound to Principal and is the only path by which account rows are read.
type AuthContext struct {
	Principal Principal
	Accounts  AccountScope
}

func (a AuthContext) CallerID() string { return a.Principal.Subject }
