// AngelaMos | 2026
// handler_test.go

package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	pin      *Pin
	account  *Account
	stats    LibraryStats
	statsErr error
	libsErr  error
}

func (f *fakeGateway) CreatePin(context.Context) (*Pin, error) { return f.pin, nil }

func (f *fakeGateway) CheckPin(_ context.Context, pinID, code string) (*Pin, error) {
	if pinID != "77" || code != "ABCD" {
		return nil, &APIError{Operation: "check_pin", StatusCode: http.StatusNotFound}
	}
	return f.pin, nil
}

func (f *fakeGateway) GetAccount(context.Context, string) (*Account, error) {
	return f.account, nil
}

func (f *fakeGateway) AuthURL(code string) string { return "https://app.plex.tv/auth#?code=" + code }

func (f *fakeGateway) ListFriends(context.Context) ([]Friend, error) {
	return []Friend{{ID: 1, Username: "alice"}}, nil
}

func (f *fakeGateway) ListLibraries(context.Context) ([]Library, error) {
	if f.libsErr != nil {
		return nil, f.libsErr
	}
	return []Library{{Key: "1", Title: "Movies", Type: "movie", ItemCount: 10}}, nil
}

func (f *fakeGateway) Stats(context.Context) (LibraryStats, error) {
	return f.stats, f.statsErr
}

func newHandlerRouter(g *fakeGateway) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(g)
	h.RegisterRoutes(r)
	h.RegisterAdminRoutes(r)
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestStartAuth(t *testing.T) {
	g := &fakeGateway{pin: &Pin{
		ID:        77,
		Code:      "ABCD",
		ExpiresAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}}

	rec := serve(newHandlerRouter(g), http.MethodPost, "/plex/auth/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pin_id":77`)
	assert.Contains(t, rec.Body.String(), `"auth_url":"https://app.plex.tv/auth#?code=ABCD"`)
}

func TestCheckAuth(t *testing.T) {
	g := &fakeGateway{
		pin:     &Pin{ID: 77, Code: "ABCD"},
		account: &Account{ID: 999, Username: "alice", Email: "alice@example.com"},
	}
	r := newHandlerRouter(g)

	rec := serve(r, http.MethodGet, "/plex/auth/check?pin_id=77")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodGet, "/plex/auth/check?pin_id=77&pin_code=ABCD")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authorized":false`)
	assert.NotContains(t, rec.Body.String(), "plex_user")

	g.pin.AuthToken = "user-token"
	rec = serve(r, http.MethodGet, "/plex/auth/check?pin_id=77&pin_code=ABCD")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authorized":true`)
	assert.Contains(t, rec.Body.String(), `"auth_token":"user-token"`)
	assert.Contains(t, rec.Body.String(), `"id":999`)

	rec = serve(r, http.MethodGet, "/plex/auth/check?pin_id=1&pin_code=ABCD")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsDegradesToZero(t *testing.T) {
	g := &fakeGateway{statsErr: errors.New("down")}
	rec := serve(newHandlerRouter(g), http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"movies":0`)

	g = &fakeGateway{stats: LibraryStats{Movies: 12, TVShows: 3}}
	rec = serve(newHandlerRouter(g), http.MethodGet, "/stats")
	assert.Contains(t, rec.Body.String(), `"tvShows":3`)
}

func TestAdminViews(t *testing.T) {
	g := &fakeGateway{}
	r := newHandlerRouter(g)

	rec := serve(r, http.MethodGet, "/plex/friends")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")

	rec = serve(r, http.MethodGet, "/plex/libraries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"itemCount":10`)

	g.libsErr = errors.New("plex down")
	rec = serve(r, http.MethodGet, "/plex/libraries")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
