// Package gotrue authenticates bearer tokens by asking the identity provider
// who the token belongs to.
package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"castgate/internal/config"
	"castgate/internal/domain"
	"castgate/internal/infra/auth/jwt"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	userPath           = "/auth/v1/user"
	maxErrorBody       = 4096
)

type Authenticator struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

type Option func(*Authenticator)

func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		if client != nil {
			a.httpClient = client
		}
	}
}

func NewAuthenticator(cfg config.Config, opts ...Option) (*Authenticator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("SUPABASE_URL is required")
	}
	anonKey := strings.TrimSpace(cfg.SupabaseAnonKey)
	if anonKey == "" {
		return nil, errors.New("SUPABASE_ANON_KEY is required")
	}
	auth := &Authenticator{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth, nil
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Aud   string `json:"aud"`
}

type errorResponse struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Message, e.Msg, e.ErrorDescription, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	token := strings.TrimSpace(bearerToken)
	if a == nil || token == "" {
		return domain.Principal{}, invalidToken("Invalid token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+userPath, nil)
	if err != nil {
		return domain.Principal{}, domain.WrapError(domain.CodeInternal, "internal error", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", a.anonKey)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Principal{}, domain.WrapError(domain.CodeInternal, "identity provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&payload)
		msg := payload.text()
		if resp.StatusCode >= 500 {
			return domain.Principal{}, domain.WrapError(domain.CodeInternal, "identity provider unavailable", errors.New(resp.Status))
		}
		if strings.Contains(strings.ToLower(msg), "expired") {
			return domain.Principal{}, domain.NewError(domain.CodeExpiredToken, "Token has expired")
		}
		if msg == "" {
			msg = resp.Status
		}
		return domain.Principal{}, invalidToken("Invalid token: " + msg)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return domain.Principal{}, invalidToken("Invalid token: malformed user response")
	}
	if user.ID == "" {
		return domain.Principal{}, invalidToken("Invalid token: no user found")
	}

	// The provider accepted the token, so its payload is trusted as the claim set.
	claims, err := jwt.DecodeClaims(token)
	if err != nil || claims == nil {
		claims = map[string]any{}
	}
	principal := jwt.PrincipalFromClaims(claims)
	principal.Subject = user.ID
	if user.Email != "" {
		principal.Email = user.Email
	}
	if user.Role != "" {
		principal.Role = user.Role
	}
	return principal, nil
}

func invalidToken(msg string) *domain.Error {
	return domain.NewError(domain.CodeInvalidToken, msg)
}

var _ domain.Authenticator = (*Authenticator)(nil)
