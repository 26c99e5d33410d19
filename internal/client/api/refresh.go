package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/client/token"
	"github.com/pulldeck/pulldeck/internal/common"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// refreshCredential exchanges the refresh token for a new credential pair.
// Only one refresh may be in flight process-wide; concurrent callers await
// the in-flight outcome instead of issuing their own, which prevents
// refresh-token reuse races.
func (c *Client) refreshCredential(ctx context.Context) (*token.AccessCredential, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*token.AccessCredential), nil
}

func (c *Client) doRefresh(ctx context.Context) (*token.AccessCredential, error) {
	cred, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if cred == nil || cred.RefreshToken == "" {
		apiErr := &Error{Status: http.StatusUnauthorized, Code: CodeRefreshTokenInvalid}
		c.broadcastFatal(ctx, apiErr)
		return nil, common.ErrNoRefreshToken
	}

	// Built by hand rather than via Do: the refresh endpoint must not route
	// through the interceptor it backs.
	data, err := json.Marshal(refreshRequest{RefreshToken: cred.RefreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}
	requestID := resp.Header.Get(common.HeaderRequestID)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		apiErr := &Error{Status: resp.StatusCode, RequestID: requestID}
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		if apiErr.Code == "" {
			apiErr.Code = CodeRefreshTokenInvalid
		}
		// A rejected refresh is always terminal for the session.
		c.broadcastFatal(ctx, apiErr)
		return nil, apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Transient server trouble: keep credentials, let the caller fail.
		return nil, &Error{Status: resp.StatusCode, RequestID: requestID}
	}

	var rr refreshResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	newCred := &token.AccessCredential{
		AccessToken:  rr.AccessToken,
		RefreshToken: rr.RefreshToken,
	}
	if exp, err := models.TokenExpiry(rr.AccessToken); err == nil && !exp.IsZero() {
		newCred.ExpiresAt = exp
	} else if rr.ExpiresIn > 0 {
		newCred.ExpiresAt = c.now().Add(time.Duration(rr.ExpiresIn) * time.Second)
	}

	if err := c.tokens.Save(ctx, newCred); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}

	c.log.Debug(ctx, "access token refreshed", "expires_at", newCred.ExpiresAt)
	return newCred, nil
}
