package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Typed failures the surrounding system maps to user-visible messages.
// The engine itself never sees these: it consumes normalized entities only.
var (
	ErrInvalidToken         = errors.New("bridge: access token invalid or expired")
	ErrSubscriptionRequired = errors.New("bridge: subscription required")
	ErrServerError          = errors.New("bridge: server error")
)

// HTTPError reports any other non-2xx response with its status code.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bridge: unexpected HTTP status %d", e.Status)
}

// Client fetches the read-only account payload from a bridge access URL.
// Credentials are encoded in the URL userinfo; the client never stores them
// elsewhere.
type Client struct {
	accessURL string
	http      *http.Client
}

// NewClient validates the access URL and builds a client with the given
// request timeout.
func NewClient(accessURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(accessURL))
	if err != nil {
		return nil, fmt.Errorf("parse access url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("access url must be http(s), got %q", u.Scheme)
	}
	return &Client{
		accessURL: u.String(),
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// Fetch implements AccountSource.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.accessURL+"/accounts", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch accounts: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return Snapshot{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read response: %w", err)
	}

	var payload rawPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode payload: %w", err)
	}

	snap := payload.normalize()
	for _, warning := range snap.Warnings {
		slog.WarnContext(ctx, "Bridge reported payload error", "message", warning)
	}
	slog.DebugContext(ctx, "Fetched bridge payload",
		"accounts", len(snap.Accounts),
		"transactions", len(snap.Transactions))
	return snap, nil
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrInvalidToken
	case status == http.StatusPaymentRequired:
		return ErrSubscriptionRequired
	case status >= 500:
		return fmt.Errorf("%w (status %d)", ErrServerError, status)
	default:
		return &HTTPError{Status: status}
	}
}
