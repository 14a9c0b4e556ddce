// AngelaMos | 2026
// library.go

package plex

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"
)

const libraryCountConcurrency = 4

type Library struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Agent     string `json:"agent,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	ItemCount int    `json:"itemCount"`
}

type librarySectionsResponse struct {
	MediaContainer struct {
		Directory []Library `json:"Directory"`
	} `json:"MediaContainer"`
}

type containerSizeResponse struct {
	MediaContainer struct {
		TotalSize int `json:"totalSize"`
	} `json:"MediaContainer"`
}

type LibraryStats struct {
	Movies  int `json:"movies"`
	TVShows int `json:"tvShows"`
}

// ListLibraries returns the media server's libraries with item counts.
// A failed count leaves that library at zero rather than failing the list.
func (c *Client) ListLibraries(ctx context.Context) ([]Library, error) {
	if c.serverURL == "" {
		return nil, fmt.Errorf("plex list_libraries: server url not configured")
	}

	var resp librarySectionsResponse
	err := c.doJSON(ctx, request{
		op:     "list_libraries",
		method: http.MethodGet,
		url:    c.serverURL + "/library/sections",
	}, &resp)
	if err != nil {
		return nil, err
	}

	libs := resp.MediaContainer.Directory

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(libraryCountConcurrency)

	for i := range libs {
		g.Go(func() error {
			count, countErr := c.countItems(gctx, libs[i].Key)
			if countErr != nil {
				slog.Warn("plex library count failed",
					"library_key", libs[i].Key,
					"error", countErr,
				)
				return nil
			}
			libs[i].ItemCount = count
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return libs, nil
}

func (c *Client) countItems(ctx context.Context, key string) (int, error) {
	q := url.Values{}
	q.Set("X-Plex-Container-Start", "0")
	q.Set("X-Plex-Container-Size", "0")

	var resp containerSizeResponse
	err := c.doJSON(ctx, request{
		op:     "count_items",
		method: http.MethodGet,
		url: fmt.Sprintf(
			"%s/library/sections/%s/all?%s",
			c.serverURL,
			url.PathEscape(key),
			q.Encode(),
		),
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.MediaContainer.TotalSize, nil
}

// Stats totals movie and show counts across all libraries.
func (c *Client) Stats(ctx context.Context) (LibraryStats, error) {
	libs, err := c.ListLibraries(ctx)
	if err != nil {
		return LibraryStats{}, err
	}

	var stats LibraryStats
	for _, lib := range libs {
		switch lib.Type {
		case "movie":
			stats.Movies += lib.ItemCount
		case "show":
			stats.TVShows += lib.ItemCount
		}
	}
	return stats, nil
}
