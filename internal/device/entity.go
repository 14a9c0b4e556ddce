// AngelaMos | 2026
// entity.go

package device

import (
	"time"
)

// Code is a short numeric pairing code shown on a TV. A member claims it
// from the web app, after which the TV's poll receives its device token.
type Code struct {
	ID          string     `db:"id"`
	Code        string     `db:"code"`
	ExpiresAt   time.Time  `db:"expires_at"`
	Activated   bool       `db:"activated"`
	UserID      *string    `db:"user_id"`
	AuthToken   *string    `db:"auth_token"`
	ActivatedAt *time.Time `db:"activated_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (c *Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *Code) Paired() bool {
	return c.Activated && c.AuthToken != nil && *c.AuthToken != ""
}

type PlexConnection struct {
	UserID       string    `db:"user_id"       json:"-"`
	PlexUserID   string    `db:"plex_user_id"  json:"plex_user_id"`
	PlexUsername string    `db:"plex_username" json:"plex_username"`
	PlexEmail    string    `db:"plex_email"    json:"plex_email"`
	PlexToken    string    `db:"plex_token"    json:"plex_token"`
	UpdatedAt    time.Time `db:"updated_at"    json:"-"`
}

const (
	ConnectionM3U    = "m3u"
	ConnectionXtream = "xtream"
)

type IPTVConnection struct {
	UserID         string    `db:"user_id"         json:"-"`
	ProviderName   string    `db:"provider_name"   json:"provider_name"`
	ConnectionType string    `db:"connection_type" json:"connection_type"`
	M3UURL         *string   `db:"m3u_url"         json:"m3u_url"`
	XtreamHost     *string   `db:"xtream_host"     json:"xtream_host"`
	XtreamUsername *string   `db:"xtream_username" json:"xtream_username"`
	XtreamPassword *string   `db:"xtream_password" json:"xtream_password"`
	UpdatedAt      time.Time `db:"updated_at"      json:"-"`
}
