package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"castgate/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// rateLimit applies one budget per authenticated caller across all write
// routes. It must run after requireAuth.
func (s *Server) rateLimit(c *gin.Context) {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		c.Next()
		return
	}
	auth, ok := getAuthContext(c)
	if !ok {
		abortWithError(c, domain.NewError(domain.CodeInternal, "internal error"))
		return
	}
	sum := sha256.Sum256([]byte(auth.CallerID()))
	key := "caller:" + hex.EncodeToString(sum[:])

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.Bool("fail_closed", s.rateLimitFailClosed), zap.Error(err))
		if s.rateLimitFailClosed {
			abortWithError(c, domain.WrapError(domain.CodeRateLimited, "Rate limiter unavailable", err).
				WithDetail("reason", "limiter_unavailable"))
			return
		}
		c.Next()
		return
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		s.metrics.RateLimited.Inc()
		abortWithError(c, domain.NewError(domain.CodeRateLimited, "Rate limit exceeded"))
		return
	}
	c.Next()
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
