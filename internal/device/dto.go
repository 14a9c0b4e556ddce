// AngelaMos | 2026
// dto.go

package device

type CodeResponse struct {
	Code            string `json:"code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type ActivateRequest struct {
	Code string `json:"code" validate:"required,numeric,len=4"`
}

type ProfileUser struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	SubscriptionTier   string `json:"subscription_tier"`
	SubscriptionStatus string `json:"subscription_status"`
}

// PollResponse carries only Activated and ExpiresIn until the code is
// claimed, then the token and the member's stored connections.
type PollResponse struct {
	Activated      bool            `json:"activated"`
	ExpiresIn      int             `json:"expires_in,omitempty"`
	AuthToken      string          `json:"auth_token,omitempty"`
	User           *ProfileUser    `json:"user,omitempty"`
	PlexConnection *PlexConnection `json:"plex_connection,omitempty"`
	IPTVConnection *IPTVConnection `json:"iptv_connection,omitempty"`
}

type Profile struct {
	User           ProfileUser     `json:"user"`
	PlexConnection *PlexConnection `json:"plex_connection"`
	IPTVConnection *IPTVConnection `json:"iptv_connection"`
}

type PlexConnectionRequest struct {
	PlexUserID   string `json:"plex_user_id"  validate:"required,max=64"`
	PlexUsername string `json:"plex_username" validate:"required,max=255"`
	PlexEmail    string `json:"plex_email"    validate:"required,email"`
	PlexToken    string `json:"plex_token"    validate:"required,max=255"`
}

type IPTVConnectionRequest struct {
	ProviderName   string  `json:"provider_name"   validate:"required,max=100"`
	ConnectionType string  `json:"connection_type" validate:"required,oneof=m3u xtream"`
	M3UURL         *string `json:"m3u_url"         validate:"omitempty,url"`
	XtreamHost     *string `json:"xtream_host"     validate:"omitempty,url"`
	XtreamUsername *string `json:"xtream_username" validate:"omitempty,max=255"`
	XtreamPassword *string `json:"xtream_password" validate:"omitempty,max=255"`
}

func (r IPTVConnectionRequest) missingFields() []string {
	var missing []string
	switch r.ConnectionType {
	case ConnectionM3U:
		if empty(r.M3UURL) {
			missing = append(missing, "m3u_url")
		}
	case ConnectionXtream:
		if empty(r.XtreamHost) {
			missing = append(missing, "xtream_host")
		}
		if empty(r.XtreamUsername) {
			missing = append(missing, "xtream_username")
		}
		if empty(r.XtreamPassword) {
			missing = append(missing, "xtream_password")
		}
	}
	return missing
}

func empty(s *string) bool {
	return s == nil || *s == ""
}
