package domain

import "context"

// PolicyInput is the document handed to the signing policy. It never carries
// key material.
type PolicyInput struct {
	CallerID  string         `json:"caller_id"`
	AccountID string         `json:"account_id"`
	Action    Action         `json:"action"`
	Operation Operation      `json:"operation"`
	Claims    map[string]any `json:"claims,omitempty"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input PolicyInput) (PolicyResult, error)
}
