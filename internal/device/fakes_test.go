// AngelaMos | 2026
// fakes_test.go

package device

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/auth"
	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/user"
)

type memRepo struct {
	mu    sync.Mutex
	codes []*Code
	plex  map[string]*PlexConnection
	iptv  map[string]*IPTVConnection

	plexErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		plex: map[string]*PlexConnection{},
		iptv: map[string]*IPTVConnection{},
	}
}

func (m *memRepo) CodeInUse(_ context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.Code == code && c.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreateCode(_ context.Context, c *Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.CreatedAt = time.Now().Add(time.Duration(len(m.codes)) * time.Millisecond)
	cp := *c
	m.codes = append(m.codes, &cp)
	return nil
}

func (m *memRepo) latest(code string) *Code {
	var matches []*Code
	for _, c := range m.codes {
		if c.Code == code {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0]
}

func (m *memRepo) GetCode(_ context.Context, code string) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.latest(code)
	if c == nil {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) Activate(_ context.Context, code string, fn func(c *Code) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.latest(code)
	if c == nil {
		return core.ErrNotFound
	}
	cp := *c
	if err := fn(&cp); err != nil {
		return err
	}
	now := time.Now()
	c.Activated = true
	c.UserID = cp.UserID
	c.AuthToken = cp.AuthToken
	c.ActivatedAt = &now
	return nil
}

func (m *memRepo) GetPlexConnection(_ context.Context, userID string) (*PlexConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plexErr != nil {
		return nil, m.plexErr
	}
	pc, ok := m.plex[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return pc, nil
}

func (m *memRepo) GetIPTVConnection(_ context.Context, userID string) (*IPTVConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ic, ok := m.iptv[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return ic, nil
}

func (m *memRepo) UpsertPlexConnection(_ context.Context, pc *PlexConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plex[pc.UserID] = pc
	return nil
}

func (m *memRepo) UpsertIPTVConnection(_ context.Context, ic *IPTVConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iptv[ic.UserID] = ic
	return nil
}

type memUsers struct {
	byID map[string]*user.User
}

func newMemUsers(users ...*user.User) *memUsers {
	m := &memUsers{byID: map[string]*user.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByAuthID(_ context.Context, authID string) (*user.User, error) {
	for _, u := range m.byID {
		if u.AuthID != nil && *u.AuthID == authID {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

type fakeTokens struct {
	issued []auth.DeviceClaims
	err    error
}

func (f *fakeTokens) Issue(claims auth.DeviceClaims) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, claims)
	return "tok-" + claims.UserID + "-" + claims.DeviceID, nil
}

type memLedger struct {
	mu      sync.Mutex
	actions []string
}

func (l *memLedger) Record(_ context.Context, _, action, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, action)
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

func testMember() *user.User {
	return &user.User{
		ID:                 "user-1",
		AuthID:             strPtr("auth-1"),
		Email:              "member@example.com",
		Tier:               access.Tier4K,
		SubscriptionStatus: user.StatusActive,
	}
}

type harness struct {
	svc    *Service
	repo   *memRepo
	tokens *fakeTokens
	ledger *memLedger
	now    time.Time
}

func newHarness(users ...*user.User) *harness {
	h := &harness{
		repo:   newMemRepo(),
		tokens: &fakeTokens{},
		ledger: &memLedger{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(
		h.repo,
		newMemUsers(users...),
		h.tokens,
		h.ledger,
		config.DeviceConfig{CodeTTL: 15 * time.Minute, PollInterval: 5 * time.Second},
		"https://watch.example/",
	)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) seedCode(code string, expiresAt time.Time) *Code {
	c := &Code{ID: "dev-" + code, Code: code, ExpiresAt: expiresAt}
	_ = h.repo.CreateCode(context.Background(), c)
	return c
}
