package api

import (
	"context"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/client/token"
	"github.com/pulldeck/pulldeck/internal/common"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login authenticates and stores the resulting credential pair.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var tr tokenResponse
	if err := c.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &tr); err != nil {
		return err
	}
	return c.saveTokenResponse(ctx, tr)
}

func (c *Client) saveTokenResponse(ctx context.Context, tr tokenResponse) error {
	cred := &token.AccessCredential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if exp, err := models.TokenExpiry(tr.AccessToken); err == nil && !exp.IsZero() {
		cred.ExpiresAt = exp
	} else if tr.ExpiresIn > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return c.tokens.Save(ctx, cred)
}

// Logout clears stored credentials. The server session, if any, simply ages
// out.
func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.Clear(ctx)
}

// Health probes token validity with a short deadline. A non-nil return of
// type *Error means the server answered and rejected the token; transport
// errors mean the server could not be reached.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.Get(ctx, "/auth/health", nil)
}

// SyncResult is the payload of a successful session sync.
type SyncResult struct {
	AccessToken  string              `json:"accessToken"`
	Subscription *models.Entitlement `json:"subscription,omitempty"`
}

// SessionSync calls the backend sync endpoint carrying the stable
// per-installation device identifier, replaces the stored access token, and
// returns the fresh entitlement snapshot (when present).
//
// A 403 with SESSION_REPLACED means another device took over; it surfaces as
// a fatal *Error (and the usual broadcast) so the caller can distinguish it.
func (c *Client) SessionSync(ctx context.Context, deviceID string) (*SyncResult, error) {
	var sr SyncResult
	err := c.Get(ctx, "/auth/sync", &sr, WithHeader(common.HeaderDeviceID, deviceID))
	if err != nil {
		return nil, err
	}

	if sr.AccessToken != "" {
		cred, err := c.tokens.Load(ctx)
		if err != nil {
			return nil, err
		}
		refreshToken := ""
		if cred != nil {
			refreshToken = cred.RefreshToken
		}
		newCred := &token.AccessCredential{
			AccessToken:  sr.AccessToken,
			RefreshToken: refreshToken,
		}
		if exp, err := models.TokenExpiry(sr.AccessToken); err == nil {
			newCred.ExpiresAt = exp
		}
		if err := c.tokens.Save(ctx, newCred); err != nil {
			return nil, err
		}
	}

	return &sr, nil
}
