package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulldeck/pulldeck/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testClient(endpoint string) *graphqlClient {
	c := newGraphQLClient(endpoint, func() string { return "tok-1" }, testLogger())
	c.newBackoff = func() retry.Backoff {
		return retry.WithMaxRetries(maxAttempts-1, retry.NewConstant(time.Millisecond))
	}
	return c
}

func TestQuery_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "ping")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := testClient(srv.URL).Query(context.Background(), `query { ping }`, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuery_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Query(context.Background(), `query { ping }`, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestQuery_ClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Query(context.Background(), `query { ping }`, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMutate_NeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := testClient(srv.URL).Mutate(context.Background(), `mutation { noop }`, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a timed-out mutation may have landed; replaying risks a double write")
}

func TestQuery_GraphQLErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"field does not exist"}]}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).Query(context.Background(), `query { nope }`, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field does not exist")
}

func TestParseRef(t *testing.T) {
	ref, err := parseRef("octo/repo#42")
	require.NoError(t, err)
	assert.Equal(t, resourceRef{Owner: "octo", Repo: "repo", Number: 42}, ref)

	for _, bad := range []string{"", "octo/repo", "octo#1", "/repo#1", "octo/repo#zero", "octo/repo#-1"} {
		_, err := parseRef(bad)
		assert.Error(t, err, bad)
	}
}
