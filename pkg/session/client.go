package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is the HTTP/JSON transport for the session core. It injects the
// bearer token on authenticated calls and is the single place where a 401
// on a previously valid session is intercepted and converted into a forced
// logout; pages never handle that case themselves.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// tokenFn supplies the current bearer token, empty when logged out.
	tokenFn func() string
	// onUnauthorized runs exactly once per session on an intercepted 401.
	onUnauthorized func()
}

// NewClient creates a transport for the given backend base URL
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

// errorBody is the backend's error payload shape
type errorBody struct {
	Message string `json:"error"`
}

// doJSON performs a request and decodes the JSON response into out (which
// may be nil). authed controls bearer injection and 401 interception.
func (c *Client) doJSON(ctx context.Context, method, path string, authed bool, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if authed {
		token := ""
		if c.tokenFn != nil {
			token = c.tokenFn()
		}
		if token == "" {
			return ErrNotAuthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("network failure: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("network failure: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.mapError(method, path, authed, resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// mapError converts an HTTP error status into the client taxonomy
func (c *Client) mapError(method, path string, authed bool, status int, body []byte) error {
	var payload errorBody
	_ = json.Unmarshal(body, &payload)

	c.Logger.Warn("API request returned error status",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("message", payload.Message))

	switch status {
	case http.StatusUnauthorized:
		if authed {
			// The session was believed valid. Force a logout once and
			// report the expiry; never surface this as a page error.
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
			return ErrSessionExpired
		}
		return ErrAuthenticationFailed
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		if strings.HasPrefix(payload.Message, "seat limit") {
			return ErrSeatLimitReached
		}
		return ErrConflict
	case http.StatusGone:
		return ErrInviteNotRedeemable
	default:
		return &APIError{StatusCode: status, Message: payload.Message}
	}
}
