package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"castgate/internal/domain"
	"castgate/internal/infra/metrics"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type ClientConfig struct {
	HubURLs    []string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Client submits signed messages to hubs. Each configured hub is tried once,
// in order, inside a single overall deadline. Messages are never re-signed.
type Client struct {
	hubs    []string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.HubURLs) == 0 {
		return nil, errors.New("at least one hub url is required")
	}
	hubs := make([]string, 0, len(cfg.HubURLs))
	for _, u := range cfg.HubURLs {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u != "" {
			hubs = append(hubs, u)
		}
	}
	if len(hubs) == 0 {
		return nil, errors.New("at least one hub url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		hubs:    hubs,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		http:    httpClient,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

type submitResponse struct {
	Hash string `json:"hash"`
}

type hubError struct {
	ErrCode string `json:"errCode"`
	Message string `json:"message"`
}

// Submit posts msg to the configured hubs and returns the accepted message
// hash. The hub-reported hash wins when present.
func (c *Client) Submit(ctx context.Context, msg SignedMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := msg.Encode()
	var lastErr error
	for _, hubURL := range c.hubs {
		if ctx.Err() != nil {
			break
		}
		hash, err := c.submitOne(ctx, hubURL, payload)
		if err == nil {
			c.observe(hubURL, "ok")
			if hash == "" {
				hash = msg.Hash.String()
			}
			c.logger.Info("hub accepted message", zap.String("hub", hubURL), zap.String("hash", hash))
			return hash, nil
		}
		c.observe(hubURL, "error")
		c.logger.Warn("hub submission failed", zap.String("hub", hubURL), zap.Error(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", domain.WrapError(domain.CodeHubSubmissionFailed, "Hub submission timed out", lastErr).
			WithDetail("reason", "timeout")
	}
	return "", domain.WrapError(domain.CodeHubSubmissionFailed, "Failed to submit message to all Hub endpoints", lastErr).
		WithDetail("reason", errorSummary(lastErr))
}

func (c *Client) submitOne(ctx context.Context, hubURL string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hubURL+"/v1/submitMessage", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var he hubError
		if json.Unmarshal(body, &he) == nil && (he.ErrCode != "" || he.Message != "") {
			return "", fmt.Errorf("hub %s: status %d: %s %s", hubURL, resp.StatusCode, he.ErrCode, he.Message)
		}
		return "", fmt.Errorf("hub %s: status %d", hubURL, resp.StatusCode)
	}
	var out submitResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			c.logger.Debug("hub response not json", zap.String("hub", hubURL), zap.Error(err))
		}
	}
	return out.Hash, nil
}

func (c *Client) observe(hubURL, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.HubSubmissions.WithLabelValues(hubURL, result).Inc()
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
