package jwt

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"castgate/internal/config"
	"castgate/internal/domain"
)

const defaultHTTPTimeout = 5 * time.Second

var errTokenExpired = errors.New("token expired")

// Authenticator verifies access tokens locally. HS256 tokens are checked
// against the project secret and RS256 tokens against the JWKS endpoint.
type Authenticator struct {
	issuer    string
	audience  string
	secret    []byte
	clockSkew time.Duration
	jwks      *jwksCache
	now       func() time.Time
}

type Option func(*Authenticator)

func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		if client != nil && a.jwks != nil {
			a.jwks.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAuthenticator(cfg config.Config, opts ...Option) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	jwksURL := strings.TrimSpace(cfg.AuthJWKSURL)
	if secret == "" && jwksURL == "" {
		return nil, errors.New("AUTH_JWT_SECRET or AUTH_JWKS_URL is required")
	}
	auth := &Authenticator{
		issuer:    strings.TrimSpace(cfg.AuthIssuer),
		audience:  strings.TrimSpace(cfg.AuthAudience),
		clockSkew: time.Duration(cfg.AuthClockSkewSecs) * time.Second,
		now:       time.Now,
	}
	if secret != "" {
		auth.secret = []byte(secret)
	}
	if jwksURL != "" {
		auth.jwks = newJWKSCache(jwksURL, &http.Client{Timeout: defaultHTTPTimeout})
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth, nil
}

func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	if a == nil {
		return domain.Principal{}, invalidToken()
	}
	tokenString := strings.TrimSpace(bearerToken)
	if tokenString == "" {
		return domain.Principal{}, invalidToken()
	}
	header, claims, signingInput, signature, err := parseJWT(tokenString)
	if err != nil {
		return domain.Principal{}, invalidToken()
	}
	if typ, ok := header["typ"].(string); ok {
		if typ != "" && strings.ToUpper(typ) != "JWT" {
			return domain.Principal{}, invalidToken()
		}
	}
	alg, _ := header["alg"].(string)
	switch alg {
	case "HS256":
		if len(a.secret) == 0 || !verifyHS256(a.secret, signingInput, signature) {
			return domain.Principal{}, invalidToken()
		}
	case "RS256":
		if a.jwks == nil {
			return domain.Principal{}, invalidToken()
		}
		kid, _ := header["kid"].(string)
		pubKey, err := a.jwks.getKey(ctx, kid)
		if err != nil {
			return domain.Principal{}, invalidToken()
		}
		if err := verifyRS256(pubKey, signingInput, signature); err != nil {
			return domain.Principal{}, invalidToken()
		}
	default:
		return domain.Principal{}, invalidToken()
	}
	if err := a.validateClaims(claims); err != nil {
		if errors.Is(err, errTokenExpired) {
			return domain.Principal{}, domain.NewError(domain.CodeExpiredToken, "Token has expired")
		}
		return domain.Principal{}, invalidToken()
	}
	principal := PrincipalFromClaims(claims)
	if principal.Subject == "" {
		return domain.Principal{}, invalidToken()
	}
	return principal, nil
}

func invalidToken() *domain.Error {
	return domain.NewError(domain.CodeInvalidToken, "Invalid token")
}

// PrincipalFromClaims maps Supabase-style claims onto a principal.
func PrincipalFromClaims(claims map[string]any) domain.Principal {
	principal := domain.Principal{RawClaims: claims}
	principal.Subject, _ = claims["sub"].(string)
	principal.Email, _ = claims["email"].(string)
	principal.Role, _ = claims["role"].(string)
	return principal
}

// DecodeClaims returns the payload of a compact JWT without verifying it.
func DecodeClaims(token string) (map[string]any, error) {
	_, claims, _, _, err := parseJWT(strings.TrimSpace(token))
	return claims, err
}

func parseJWT(token string) (map[string]any, map[string]any, string, []byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, "", nil, errors.New("invalid token format")
	}
	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, "", nil, err
	}
	claimsBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, "", nil, err
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, "", nil, err
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, "", nil, err
	}
	var claims map[string]any
	if err := json.Unmarshal(claimsBytes, &claims); err != nil {
		return nil, nil, "", nil, err
	}
	return header, claims, parts[0] + "." + parts[1], signature, nil
}

func verifyHS256(secret []byte, signingInput string, signature []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signingInput))
	return hmac.Equal(mac.Sum(nil), signature)
}

func verifyRS256(pubKey *rsa.PublicKey, signingInput string, signature []byte) error {
	hash := sha256.Sum256([]byte(signingInput))
	return rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, hash[:], signature)
}

func (a *Authenticator) validateClaims(claims map[string]any) error {
	now := a.now()
	if a.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != a.issuer {
			return errors.New("issuer mismatch")
		}
	}
	if a.audience != "" {
		if !audienceMatches(claims["aud"], a.audience) {
			return errors.New("audience mismatch")
		}
	}
	exp, ok := parseNumericDate(claims["exp"])
	if !ok {
		return errors.New("exp claim required")
	}
	if now.After(exp.Add(a.clockSkew)) {
		return errTokenExpired
	}
	if nbf, ok := parseNumericDate(claims["nbf"]); ok {
		if now.Add(a.clockSkew).Before(nbf) {
			return errors.New("token not yet valid")
		}
	}
	return nil
}

func parseNumericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	default:
		return time.Time{}, false
	}
}

func audienceMatches(raw any, expected string) bool {
	switch v := raw.(type) {
	case string:
		return v == expected
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

var _ domain.Authenticator = (*Authenticator)(nil)
