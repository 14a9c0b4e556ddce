// AngelaMos | 2026
// handler_test.go

package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/middleware"
)

type subjectVerifier struct {
	subject string
}

func (v subjectVerifier) VerifyToken(_ context.Context, token string) (*middleware.Claims, error) {
	if token != "good" {
		return nil, core.ErrTokenInvalid
	}
	return &middleware.Claims{Subject: v.subject}, nil
}

func newTestRouter(h *harness) http.Handler {
	r := chi.NewRouter()
	NewHandler(h.svc).RegisterRoutes(
		r,
		middleware.Authenticator(subjectVerifier{subject: "auth-1"}),
		middleware.Authenticator(subjectVerifier{subject: "user-1"}),
	)
	return r
}

func do(t *testing.T, r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestPairingFlowOverHTTP(t *testing.T) {
	h := newHarness(testMember())
	r := newTestRouter(h)

	rec := do(t, r, http.MethodPost, "/device/code", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var code CodeResponse
	decodeData(t, rec, &code)

	rec = do(t, r, http.MethodGet, "/device/poll?code="+code.Code, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"activated":false`)

	rec = do(t, r, http.MethodPost, "/device/activate", "good", `{"code":"`+code.Code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Device activated successfully")

	rec = do(t, r, http.MethodPost, "/device/activate", "good", `{"code":"`+code.Code+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodGet, "/device/poll?code="+code.Code, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var paired PollResponse
	decodeData(t, rec, &paired)
	assert.True(t, paired.Activated)
	assert.NotEmpty(t, paired.AuthToken)
	require.NotNil(t, paired.User)
	assert.Equal(t, "user-1", paired.User.ID)
}

func TestPollStatusCodes(t *testing.T) {
	h := newHarness()
	h.seedCode("1111", h.now.Add(-time.Minute))
	r := newTestRouter(h)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/device/poll", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/device/poll?code=2222", "", "").Code)
	assert.Equal(t, http.StatusGone, do(t, r, http.MethodGet, "/device/poll?code=1111", "", "").Code)
}

func TestActivateRequiresSessionAndCode(t *testing.T) {
	h := newHarness(testMember())
	r := newTestRouter(h)

	rec := do(t, r, http.MethodPost, "/device/activate", "", `{"code":"1234"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, r, http.MethodPost, "/device/activate", "good", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "code is required")

	rec = do(t, r, http.MethodPost, "/device/activate", "good", `{"code":"12ab"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresDeviceToken(t *testing.T) {
	h := newHarness(testMember())
	r := newTestRouter(h)

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/device/me", "bad", "").Code)

	rec := do(t, r, http.MethodGet, "/device/me", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p Profile
	decodeData(t, rec, &p)
	assert.Equal(t, "member@example.com", p.User.Email)
	assert.Equal(t, "active", p.User.SubscriptionStatus)
}

func TestSaveConnectionsOverHTTP(t *testing.T) {
	h := newHarness(testMember())
	r := newTestRouter(h)

	rec := do(t, r, http.MethodPut, "/connections/plex", "good",
		`{"plex_user_id":"555","plex_username":"viewer","plex_email":"not-an-email","plex_token":"t"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPut, "/connections/plex", "good",
		`{"plex_user_id":"555","plex_username":"viewer","plex_email":"v@example.com","plex_token":"t"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"plex_token":"t"`)
	assert.NotContains(t, rec.Body.String(), "user_id\":\"user-1")

	rec = do(t, r, http.MethodPut, "/connections/iptv", "good",
		`{"provider_name":"Acme","connection_type":"dvb"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
