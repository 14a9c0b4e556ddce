// AngelaMos | 2026
// pin.go

package plex

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

type Pin struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	AuthToken string    `json:"authToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Account struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
}

// CreatePin starts a plex.tv PIN login. The PIN is claimed by the user
// at AuthURL and polled with CheckPin.
func (c *Client) CreatePin(ctx context.Context) (*Pin, error) {
	var pin Pin
	err := c.doJSON(ctx, request{
		op:     "create_pin",
		method: http.MethodPost,
		url:    c.tvURL("/api/v2/pins"),
		body:   map[string]bool{"strong": true},
		anon:   true,
		headers: map[string]string{
			"X-Plex-Version":  "1.0.0",
			"X-Plex-Platform": "Web",
		},
	}, &pin)
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

func (c *Client) CheckPin(
	ctx context.Context,
	pinID string,
	code string,
) (*Pin, error) {
	var pin Pin
	err := c.doJSON(ctx, request{
		op:      "check_pin",
		method:  http.MethodGet,
		url:     c.tvURL("/api/v2/pins/%s", url.PathEscape(pinID)),
		anon:    true,
		headers: map[string]string{"code": code},
	}, &pin)
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

// GetAccount resolves the plex.tv account that owns authToken.
func (c *Client) GetAccount(
	ctx context.Context,
	authToken string,
) (*Account, error) {
	var acct Account
	err := c.doJSON(ctx, request{
		op:     "get_account",
		method: http.MethodGet,
		url:    c.tvURL("/api/v2/user"),
		token:  authToken,
	}, &acct)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) AuthURL(code string) string {
	q := url.Values{}
	q.Set("clientID", c.clientID)
	q.Set("code", code)
	q.Set("context[device][product]", c.product)
	return "https://app.plex.tv/auth#?" + q.Encode()
}
