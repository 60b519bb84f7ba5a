package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrChannelNotFound = errors.New("channel not found")

// NeynarDirectory looks channels up through the Neynar v2 API.
type NeynarDirectory struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewNeynarDirectory(baseURL, apiKey string) *NeynarDirectory {
	return &NeynarDirectory{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type channelResponse struct {
	Channel *struct {
		ID        string `json:"id"`
		ParentURL string `json:"parent_url"`
		URL       string `json:"url"`
	} `json:"channel"`
}

func (d *NeynarDirectory) LookupParentURL(ctx context.Context, channelID string) (string, error) {
	if d.APIKey == "" {
		return "", errors.New("neynar api key is not configured")
	}
	endpoint := d.BaseURL + "/v2/farcaster/channel?id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api_key", d.APIKey)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrChannelNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("neynar channel lookup: status %d", resp.StatusCode)
	}
	var out channelResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode channel response: %w", err)
	}
	if out.Channel == nil || out.Channel.ParentURL == "" {
		return "", ErrChannelNotFound
	}
	return out.Channel.ParentURL, nil
}
