package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken marks a token the account system rejected, as opposed to
// the account system being unreachable.
var ErrInvalidToken = errors.New("invalid token")

// UserContext describes the authenticated caller behind a bearer token.
type UserContext struct {
	UserID uint64
	Token  string
}

// Provider validates a bearer token against the upstream account system.
// The scheduling core treats authentication as a best-effort signal: callers
// swallow every error from here and fall back to anonymous identity.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*UserContext, error)
}

type httpProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider backed by the account system's HTTP API.
func NewHTTPProvider(baseURL string) Provider {
	return &httpProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *httpProvider) ValidateToken(ctx context.Context, token string) (*UserContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth provider returned status %d", resp.StatusCode)
	}

	var body struct {
		ID uint64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if body.ID == 0 {
		return nil, ErrInvalidToken
	}

	return &UserContext{UserID: body.ID, Token: token}, nil
}
