package gotrue

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"castgate/internal/config"
	"castgate/internal/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != userPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("apikey") != "anon" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"No API key found in request"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("Authorization") {
		case "Bearer " + goodToken:
			_, _ = w.Write([]byte(`{"id":"user-1","email":"a@example.com","role":"authenticated","aud":"authenticated"}`))
		case "Bearer expired":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":403,"error_code":"bad_jwt","msg":"invalid JWT: unable to parse or verify signature, token has invalid claims: token is expired"}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
		}
	}))
}

var goodToken = "e30." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-1","session_id":"s1"}`)) + ".c2ln"

func TestAuthenticate(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	auth, err := NewAuthenticator(config.Config{SupabaseURL: srv.URL + "/", SupabaseAnonKey: "anon"}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}

	principal, err := auth.Authenticate(context.Background(), goodToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Subject != "user-1" || principal.Email != "a@example.com" || principal.Role != "authenticated" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if principal.RawClaims["session_id"] != "s1" {
		t.Fatalf("expected token claims to be carried, got %v", principal.RawClaims)
	}

	cases := []struct {
		token string
		code  domain.ErrorCode
	}{
		{"expired", domain.CodeExpiredToken},
		{"other", domain.CodeInvalidToken},
		{"broken", domain.CodeInternal},
		{"", domain.CodeInvalidToken},
	}
	for _, tc := range cases {
		_, err := auth.Authenticate(context.Background(), tc.token)
		if got := domain.CodeOf(err); got != tc.code {
			t.Fatalf("token %q: expected %s, got %s", tc.token, tc.code, got)
		}
	}
}

func TestNewAuthenticatorRequiresConfig(t *testing.T) {
	if _, err := NewAuthenticator(config.Config{SupabaseAnonKey: "anon"}); err == nil {
		t.Fatal("expected error without SUPABASE_URL")
	}
	if _, err := NewAuthenticator(config.Config{SupabaseURL: "http://x"}); err == nil {
		t.Fatal("expected error without SUPABASE_ANON_KEY")
	}
}
