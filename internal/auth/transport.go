package auth

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

	"github.com/erazemk/inventar/internal/wire"
)

var (
	// ErrInvalidCredentials is returned when the backend refuses a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshRejected is returned when the backend refuses a refresh token.
	ErrRefreshRejected = errors.New("refresh token rejected")
)

// Tokens is the token pair issued by the backend. Refresh is empty when the
// backend does not rotate refresh tokens.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Transport performs the token endpoints. It must not go through the request
// gateway, otherwise a failing refresh would trigger another refresh.
type Transport interface {
	Login(ctx context.Context, username, password string) (Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// HTTPTransport talks to the token endpoints over HTTP.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the API rooted at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login handles POST token/.
func (t *HTTPTransport) Login(ctx context.Context, username, password string) (Tokens, error) {
	var toks Tokens
	status, body, err := t.post(ctx, "token/", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return toks, fmt.Errorf("logging in: %w", err)
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return toks, fmt.Errorf("%w: %s", ErrInvalidCredentials, wire.ErrorMessage(body))
	case status != http.StatusOK:
		return toks, fmt.Errorf("logging in: unexpected status %d: %s", status, wire.ErrorMessage(body))
	}

	if err := wire.Decode(body, &toks); err != nil {
		return toks, fmt.Errorf("decoding login response: %w", err)
	}
	if toks.Access == "" || toks.Refresh == "" {
		return toks, fmt.Errorf("logging in: incomplete token pair")
	}
	return toks, nil
}

// Refresh handles POST token/refresh/.
func (t *HTTPTransport) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var toks Tokens
	status, body, err := t.post(ctx, "token/refresh/", map[string]string{"refresh": refreshToken})
	if err != nil {
		return toks, fmt.Errorf("refreshing token: %w", err)
	}
	if status != http.StatusOK {
		return toks, fmt.Errorf("%w: status %d: %s", ErrRefreshRejected, status, wire.ErrorMessage(body))
	}

	if err := wire.Decode(body, &toks); err != nil {
		return toks, fmt.Errorf("decoding refresh response: %w", err)
	}
	if toks.Access == "" {
		return toks, fmt.Errorf("%w: empty access token", ErrRefreshRejected)
	}
	return toks, nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}
