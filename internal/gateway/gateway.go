package gateway

import (
	"bytes"
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

	"github.com/google/uuid"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/wire"
)

// TokenSource supplies and renews access tokens. *auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context, observed string) (string, error)
	Terminate(ctx context.Context, cause error)
	OnEntrySurface() bool
}

// Request describes one API call. Path is relative to the API root.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a successful API response with the envelope removed.
type Response struct {
	Status  int
	Data    json.RawMessage
	Message string
}

// Empty reports whether the response carried no payload.
func (r *Response) Empty() bool {
	return len(r.Data) == 0
}

// Decode decodes the payload into out. Empty payloads leave out untouched.
func (r *Response) Decode(out any) error {
	if r.Empty() {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("invalid response from backend: %w", err)
	}
	return nil
}

// Gateway sends authenticated requests to the inventory backend.
type Gateway struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// New creates a gateway for the API rooted at baseURL.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do sends req with the current access token. A 401 triggers one token
// refresh and one replay; a second 401 terminates the session.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	path := wire.NormalizePath(req.Path)
	target := g.baseURL + path
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var payload []byte
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = data
	}

	requestID := uuid.NewString()

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, authError(err)
	}

	status, body, err := g.send(ctx, req.Method, target, payload, token, requestID)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, Path: path, Err: err}
	}

	if status == http.StatusUnauthorized {
		if g.tokens.OnEntrySurface() {
			return nil, fmt.Errorf("%w: %w", ErrAuthExpired, auth.ErrUnauthenticated)
		}

		slog.Info("access token rejected, refreshing", "method", req.Method, "path", path, "request_id", requestID)
		token, err = g.tokens.Refresh(ctx, token)
		if err != nil {
			return nil, authError(err)
		}

		status, body, err = g.send(ctx, req.Method, target, payload, token, requestID)
		if err != nil {
			return nil, &NetworkError{Method: req.Method, Path: path, Err: err}
		}
		if status == http.StatusUnauthorized {
			cause := fmt.Errorf("%s %s rejected after token refresh", req.Method, path)
			g.tokens.Terminate(ctx, cause)
			return nil, fmt.Errorf("%w: %w", ErrAuthExpired, cause)
		}
	}

	return decodeResponse(req.Method, path, status, body)
}

func (g *Gateway) send(ctx context.Context, method, target string, payload []byte, token, requestID string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	slog.Debug("api request", "method", method, "url", target, "status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond), "request_id", requestID)
	return resp.StatusCode, body, nil
}

func decodeResponse(method, path string, status int, body []byte) (*Response, error) {
	switch {
	case status >= 200 && status < 300:
		data, msg, err := wire.Unwrap(body)
		if err != nil {
			return nil, &StatusError{Method: method, Path: path, Code: status, Message: msg}
		}
		return &Response{Status: status, Data: data, Message: msg}, nil

	case status == http.StatusLocked:
		var lock struct {
			LockedBy model.Holder `json:"locked_by"`
			LockedAt string       `json:"locked_at"`
		}
		_ = json.Unmarshal(body, &lock)
		if lock.LockedBy == "" {
			// Some deployments wrap the holder in the error envelope.
			var env struct {
				Data struct {
					LockedBy model.Holder `json:"locked_by"`
					LockedAt string       `json:"locked_at"`
				} `json:"data"`
			}
			if json.Unmarshal(body, &env) == nil {
				lock = env.Data
			}
		}
		return nil, &LockedError{
			Path:     path,
			LockedBy: string(lock.LockedBy),
			LockedAt: parseTime(lock.LockedAt),
			Message:  wire.ErrorMessage(body),
		}

	default:
		return nil, &StatusError{Method: method, Path: path, Code: status, Message: wire.ErrorMessage(body)}
	}
}

// authError marks token failures as authentication failures. Cancellation is
// passed through untouched.
func authError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAuthExpired, err)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
