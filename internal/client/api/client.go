// Package api is the authenticated HTTP layer of the client. Every outbound
// request carries a valid access token; token expiry is invisible to callers
// except as added latency. Fatal auth failures are broadcast on the event bus
// rather than handled per call site, because several independent surfaces
// (pollers, session manager, shell) must all react.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulldeck/pulldeck/internal/client/events"
	"github.com/pulldeck/pulldeck/internal/client/token"
	"github.com/pulldeck/pulldeck/internal/common"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// DefaultRefreshThreshold is how close to expiry a token may get before a
// request proactively refreshes it.
const DefaultRefreshThreshold = 5 * time.Minute

type Client struct {
	baseURL string
	http    *http.Client
	tokens  token.Store
	bus     *events.Bus
	log     logging.Logger

	// refreshGroup collapses concurrent refreshes into one network call;
	// concurrent callers share the outcome.
	refreshGroup     singleflight.Group
	refreshThreshold time.Duration

	now func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRefreshThreshold(d time.Duration) Option {
	return func(c *Client) { c.refreshThreshold = d }
}

func NewClient(baseURL string, tokens token.Store, bus *events.Bus, log logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		http:             &http.Client{Timeout: 30 * time.Second},
		tokens:           tokens,
		bus:              bus,
		log:              log,
		refreshThreshold: DefaultRefreshThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption mutates the outgoing request (extra headers etc.).
type RequestOption func(*http.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends an authenticated JSON request. The flow is:
//
//  1. If the cached token is within the refresh threshold of its expiry,
//     refresh proactively (single-flight, shared with reactive refreshes).
//  2. Send with Authorization: Bearer when a token exists.
//  3. On a refreshable 401/403, refresh once and retry the request exactly
//     once. On a fatal 401/403, broadcast, clear credentials, return.
//
// Non-auth failures are returned as-is; retry policy for those belongs to
// the caller.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	cred, err := c.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if c.shouldRefreshProactively(cred) {
		// A failed proactive refresh is not fatal to this request: the
		// server sees the stale token and issues the authoritative answer.
		if refreshed, err := c.refreshCredential(ctx); err == nil {
			cred = refreshed
		} else {
			c.log.Warn(ctx, "proactive token refresh failed", "error", err)
		}
	}

	apiErr, err := c.send(ctx, method, path, body, out, cred, opts)
	if err != nil {
		return err
	}
	if apiErr == nil {
		return nil
	}

	if apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusForbidden {
		return apiErr
	}

	if apiErr.Fatal() {
		c.broadcastFatal(ctx, apiErr)
		return apiErr
	}

	if !apiErr.Refreshable() {
		// 401/403 without a recognized code: not refreshable, return as-is.
		return apiErr
	}

	cred, err = c.refreshCredential(ctx)
	if err != nil {
		return err
	}

	retryErr, err := c.send(ctx, method, path, body, out, cred, opts)
	if err != nil {
		return err
	}
	if retryErr != nil {
		return retryErr
	}
	return nil
}

func (c *Client) shouldRefreshProactively(cred *token.AccessCredential) bool {
	if cred == nil || cred.RefreshToken == "" || cred.ExpiresAt.IsZero() {
		return false
	}
	return c.now().Add(c.refreshThreshold).After(cred.ExpiresAt)
}

// send performs one HTTP exchange. A non-2xx response is returned as a typed
// *Error (first return value); transport failures come back as err.
func (c *Client) send(ctx context.Context, method, path string, body, out any,
	cred *token.AccessCredential, opts []RequestOption) (*Error, error) {

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != nil && cred.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get(common.HeaderRequestID)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, nil
	}

	apiErr := &Error{Status: resp.StatusCode, RequestID: requestID}
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	}

	c.log.Debug(ctx, "request failed", "method", method, "path", path,
		"status", resp.StatusCode, "code", apiErr.Code, "request_id", requestID)

	return apiErr, nil
}

// broadcastFatal publishes the typed auth event and clears stored
// credentials. It is a broadcast, not a return value: multiple independent
// surfaces must react without being wired together.
func (c *Client) broadcastFatal(ctx context.Context, apiErr *Error) {
	c.log.Warn(ctx, "fatal auth error", "code", apiErr.Code, "request_id", apiErr.RequestID)

	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error(ctx, "failed to clear credentials", "error", err)
	}
	c.bus.Publish(events.AuthEvent{
		Kind:      eventKind(apiErr.Code),
		Code:      apiErr.Code,
		RequestID: apiErr.RequestID,
	})
}
