package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const refreshPath = "/accounts/token/refresh/"

var ErrRefreshRejected = errors.New("refresh rejected")

// Client calls the token refresh endpoint directly, outside of any retrying
// transport, so a failed refresh can never trigger another refresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

type RefreshResponse struct {
	Access string `json:"access"`
	// Refresh is set when the server rotates refresh tokens.
	Refresh string `json:"refresh,omitempty"`
}

func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+refreshPath,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("refresh failed with status %d: %w", resp.StatusCode, ErrRefreshRejected)
	}

	var result RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Access == "" {
		return nil, fmt.Errorf("refresh response without access token: %w", ErrRefreshRejected)
	}

	return &result, nil
}
