package http

import (
	"strings"

	"castgate/internal/domain"

	"github.com/gin-gonic/gin"
)

const authContextKey = "auth"

// requireAuth authenticates the bearer token and binds an account scope to
// the caller. Nothing downstream sees an account row except through it.
func (s *Server) requireAuth(c *gin.Context) {
	if s.authInitErr != nil || s.authenticator == nil || s.accounts == nil {
		s.logger.Error("request rejected: authentication is not configured")
		abortWithError(c, domain.NewError(domain.CodeInternal, "internal error"))
		return
	}

	header := c.GetHeader("Authorization")
	if strings.TrimSpace(header) == "" {
		abortWithError(c, domain.NewError(domain.CodeMissingAuthHeader, "Missing Authorization header"))
		return
	}
	token := extractBearerToken(header)
	if token == "" {
		abortWithError(c, domain.NewError(domain.CodeInvalidToken, "Invalid Authorization header format"))
		return
	}

	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if principal.Subject == "" {
		abortWithError(c, domain.NewError(domain.CodeInvalidToken, "Invalid token"))
		return
	}
	c.Set(authContextKey, domain.AuthContext{
		Principal: principal,
		Accounts:  s.accounts.ForCaller(principal),
	})
	c.Next()
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getAuthContext(c *gin.Context) (domain.AuthContext, bool) {
	raw, ok := c.Get(authContextKey)
	if !ok {
		return domain.AuthContext{}, false
	}
	auth, ok := raw.(domain.AuthContext)
	return auth, ok
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}
