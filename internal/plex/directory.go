// AngelaMos | 2026
// directory.go

package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/deez125/novix-gateway/internal/core"
)

// Section is one entry of the plex.tv section directory. Key is the
// server-local library key; ID is the plex.tv section id used for sharing.
type Section struct {
	ID    int64  `xml:"id,attr"    json:"id"`
	Key   int    `xml:"key,attr"   json:"key"`
	Type  string `xml:"type,attr"  json:"type"`
	Title string `xml:"title,attr" json:"title"`
}

// SharedGrant is plex.tv's record of a user's access to this server.
type SharedGrant struct {
	ID           int64
	UserID       string
	Username     string
	Email        string
	InvitedEmail string
	SectionIDs   []int64
}

type serverContainer struct {
	XMLName xml.Name `xml:"MediaContainer"`
	Servers []struct {
		MachineIdentifier string    `xml:"machineIdentifier,attr"`
		Sections          []Section `xml:"Section"`
	} `xml:"Server"`
}

type sharedServersContainer struct {
	XMLName       xml.Name             `xml:"MediaContainer"`
	SharedServers []sharedServerRecord `xml:"SharedServer"`
}

type sharedServerRecord struct {
	ID           int64  `xml:"id,attr"`
	UserID       string `xml:"userID,attr"`
	Username     string `xml:"username,attr"`
	Email        string `xml:"email,attr"`
	InvitedEmail string `xml:"invitedEmail,attr"`
	Sections     []struct {
		ID     int64 `xml:"id,attr"`
		Shared int   `xml:"shared,attr"`
	} `xml:"Section"`
}

func (r sharedServerRecord) grant() SharedGrant {
	g := SharedGrant{
		ID:           r.ID,
		UserID:       r.UserID,
		Username:     r.Username,
		Email:        r.Email,
		InvitedEmail: r.InvitedEmail,
	}
	for _, s := range r.Sections {
		if s.Shared == 1 {
			g.SectionIDs = append(g.SectionIDs, s.ID)
		}
	}
	return g
}

// ListSections fetches the section directory for the configured server.
// Entries come back in directory order.
func (c *Client) ListSections(ctx context.Context) ([]Section, error) {
	data, err := c.do(ctx, request{
		op:     "list_sections",
		method: http.MethodGet,
		url:    c.tvURL("/api/servers/%s", c.machineID),
		accept: "application/xml",
	})
	if err != nil {
		return nil, err
	}

	var container serverContainer
	if err := xml.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("plex list_sections: decode: %w", err)
	}

	var sections []Section
	for _, srv := range container.Servers {
		if srv.MachineIdentifier != "" && srv.MachineIdentifier != c.machineID {
			continue
		}
		sections = append(sections, srv.Sections...)
	}
	return sections, nil
}

func (c *Client) ListSharedServers(ctx context.Context) ([]SharedGrant, error) {
	data, err := c.do(ctx, request{
		op:     "list_shared_servers",
		method: http.MethodGet,
		url:    c.tvURL("/api/servers/%s/shared_servers", c.machineID),
		accept: "application/xml",
	})
	if err != nil {
		return nil, err
	}

	var container sharedServersContainer
	if err := xml.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("plex list_shared_servers: decode: %w", err)
	}

	grants := make([]SharedGrant, 0, len(container.SharedServers))
	for _, rec := range container.SharedServers {
		grants = append(grants, rec.grant())
	}
	return grants, nil
}

// GetSharedGrant returns the grant held by plexUserID, or nil when the
// user has none.
func (c *Client) GetSharedGrant(
	ctx context.Context,
	plexUserID string,
) (*SharedGrant, error) {
	grants, err := c.ListSharedServers(ctx)
	if err != nil {
		return nil, err
	}

	for i := range grants {
		if grants[i].UserID == plexUserID {
			return &grants[i], nil
		}
	}
	return nil, nil
}

type sharingSettings struct {
	AllowSync         string `json:"allowSync"`
	AllowCameraUpload string `json:"allowCameraUpload"`
	AllowChannels     string `json:"allowChannels"`
	FilterMovies      string `json:"filterMovies"`
	FilterTelevision  string `json:"filterTelevision"`
	FilterMusic       string `json:"filterMusic"`
}

type inviteBody struct {
	ServerID     string `json:"server_id"`
	SharedServer struct {
		LibrarySectionIDs []int64 `json:"library_section_ids"`
		InvitedEmail      string  `json:"invited_email"`
	} `json:"shared_server"`
	SharingSettings sharingSettings `json:"sharing_settings"`
}

type updateBody struct {
	SharedServer struct {
		LibrarySectionIDs []int64 `json:"library_section_ids"`
	} `json:"shared_server"`
}

// CreateSharedGrant invites email to the server with the given sections.
func (c *Client) CreateSharedGrant(
	ctx context.Context,
	email string,
	sectionIDs []int64,
) (*SharedGrant, error) {
	body := inviteBody{
		ServerID: c.machineID,
		SharingSettings: sharingSettings{
			AllowSync:         "0",
			AllowCameraUpload: "0",
			AllowChannels:     "0",
		},
	}
	body.SharedServer.LibrarySectionIDs = nonNil(sectionIDs)
	body.SharedServer.InvitedEmail = email

	data, err := c.do(ctx, request{
		op:     "create_shared_grant",
		method: http.MethodPost,
		url:    c.tvURL("/api/servers/%s/shared_servers", c.machineID),
		body:   body,
	})
	if err != nil {
		return nil, err
	}

	grant := &SharedGrant{
		InvitedEmail: email,
		SectionIDs:   nonNil(sectionIDs),
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		slog.Debug("plex invite response not decodable", "error", err)
		return grant, nil
	}
	grant.ID = created.ID
	return grant, nil
}

// UpdateSharedGrant replaces the section set of an existing grant.
func (c *Client) UpdateSharedGrant(
	ctx context.Context,
	grantID int64,
	sectionIDs []int64,
) error {
	var body updateBody
	body.SharedServer.LibrarySectionIDs = nonNil(sectionIDs)

	_, err := c.do(ctx, request{
		op:     "update_shared_grant",
		method: http.MethodPut,
		url: c.tvURL(
			"/api/servers/%s/shared_servers/%d",
			c.machineID,
			grantID,
		),
		body: body,
	})
	return err
}

func (c *Client) DeleteSharedGrant(ctx context.Context, grantID int64) error {
	_, err := c.do(ctx, request{
		op:     "delete_shared_grant",
		method: http.MethodDelete,
		url: c.tvURL(
			"/api/servers/%s/shared_servers/%d",
			c.machineID,
			grantID,
		),
	})
	return err
}

func (c *Client) RemoveFriend(ctx context.Context, plexUserID string) error {
	if _, err := strconv.ParseInt(plexUserID, 10, 64); err != nil {
		return fmt.Errorf(
			"plex remove_friend: user id %q: %w",
			plexUserID,
			core.ErrInvalidInput,
		)
	}

	_, err := c.do(ctx, request{
		op:     "remove_friend",
		method: http.MethodDelete,
		url:    c.tvURL("/api/v2/friends/%s", plexUserID),
	})
	return err
}

type Friend struct {
	ID             int64   `json:"id"`
	UUID           string  `json:"uuid"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Thumb          string  `json:"thumb"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	Server         bool    `json:"server"`
	SharedSections []int64 `json:"sharedSections"`
}

func (c *Client) ListFriends(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	err := c.doJSON(ctx, request{
		op:     "list_friends",
		method: http.MethodGet,
		url:    c.tvURL("/api/v2/friends"),
	}, &friends)
	if err != nil {
		return nil, err
	}
	return friends, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
