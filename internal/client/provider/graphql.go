package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pulldeck/pulldeck/internal/logging"
)

const (
	queryTimeout = 30 * time.Second

	retryBase   = 1 * time.Second
	retryJitter = 250 * time.Millisecond
	// maxAttempts counts the first try; two retries on top of it.
	maxAttempts = 3
)

// graphqlClient is one POST-{query,variables} transport with bounded retry.
// Only queries retry: a mutation that timed out may still have landed, so
// replaying it risks a double write.
type graphqlClient struct {
	endpoint string
	token    func() string
	http     *http.Client
	log      logging.Logger

	// newBackoff is a seam for testing retry.Do without real waits.
	newBackoff func() retry.Backoff
}

func newGraphQLClient(endpoint string, token func() string, log logging.Logger) *graphqlClient {
	return &graphqlClient{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: queryTimeout},
		log:      log,
		newBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxAttempts-1,
				retry.WithJitter(retryJitter, retry.NewExponential(retryBase)))
		},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// Query runs a read with retry on 5xx, timeout, and network failure.
func (c *graphqlClient) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	return retry.Do(ctx, c.newBackoff(), func(ctx context.Context) error {
		err := c.post(ctx, query, variables, out)
		if err != nil && retryable(err) {
			c.log.Debug(ctx, "graphql query failed, will retry", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// Mutate runs a write exactly once.
func (c *graphqlClient) Mutate(ctx context.Context, query string, variables map[string]any, out any) error {
	return c.post(ctx, query, variables, out)
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("graphql endpoint returned %d", e.status)
}

func retryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wrapping a connection failure lands here too.
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *graphqlClient) post(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}
