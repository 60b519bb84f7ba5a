package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"castgate/internal/domain"
	"castgate/internal/usecase"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 64 << 10

// requestParser turns a raw body into a validated request.
type requestParser func(body []byte) (domain.SignRequest, error)

type errorBody struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type signResponse struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash"`
	FID     uint64 `json:"fid"`
}

func (s *Server) handleWrite(parse requestParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, ok := getAuthContext(c)
		if !ok || s.submit == nil {
			writeError(c, domain.NewError(domain.CodeInternal, "internal error"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(c, domain.NewError(domain.CodeInvalidMessage,
					"Invalid request: body exceeds "+strconv.Itoa(maxBodyBytes)+" bytes"))
				return
			}
			writeError(c, domain.WrapError(domain.CodeInvalidMessage, "Invalid request: unreadable body", err))
			return
		}

		req, err := parse(body)
		if err != nil {
			writeError(c, err)
			return
		}
		if key := c.GetHeader("X-Idempotency-Key"); key != "" {
			if err := s.validator.IdempotencyKey(key); err != nil {
				writeError(c, err)
				return
			}
			req.IdempotencyKey = key
		}

		result, err := s.submit.Execute(c.Request.Context(), usecase.SubmitOperationRequest{
			Auth:    auth,
			Request: req,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, signResponse{Success: true, Hash: result.Hash, FID: result.FID})
	}
}

func (s *Server) reactionParser(remove bool) requestParser {
	return func(body []byte) (domain.SignRequest, error) {
		return s.validator.Reaction(body, remove)
	}
}

func (s *Server) followParser(remove bool) requestParser {
	return func(body []byte) (domain.SignRequest, error) {
		return s.validator.Follow(body, remove)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	mode := "no-db"
	if s.store != nil && s.store.DB != nil {
		mode = "db"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	path := c.Request.URL.Path
	if s.cfg.RoutePrefix != "" {
		path = strings.TrimPrefix(path, s.cfg.RoutePrefix)
	}
	if path == "" {
		path = "/"
	}
	writeError(c, domain.NewError(domain.CodeNotFound, "Route not found: "+c.Request.Method+" "+path))
}

func writeError(c *gin.Context, err error) {
	de := domain.AsError(err)
	_ = c.Error(err)
	c.JSON(statusFor(de.Code), errorResponse{
		Error: errorBody{
			Code:    de.Code,
			Message: de.Message,
			Details: de.Details,
		},
	})
}

// statusFor is the single mapping from error codes to HTTP statuses.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeMissingAuthHeader, domain.CodeInvalidToken, domain.CodeExpiredToken:
		return http.StatusUnauthorized
	case domain.CodeInvalidMessage, domain.CodeAccountPending:
		return http.StatusBadRequest
	case domain.CodePolicyDenied:
		return http.StatusForbidden
	case domain.CodeAccountNotFound, domain.CodeChannelNotFound, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeIdempotencyConflict:
		return http.StatusConflict
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeHubSubmissionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
