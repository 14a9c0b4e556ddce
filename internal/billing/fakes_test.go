// AngelaMos | 2026
// fakes_test.go

package billing

import (
	"context"
	"errors"
	"sync"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/user"
)

var errBoom = errors.New("boom")

type memUsers struct {
	mu       sync.Mutex
	users    map[string]*user.User
	patches  int
	created  int
	patchErr error
}

func newMemUsers(users ...*user.User) *memUsers {
	m := &memUsers{users: map[string]*user.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) find(match func(*user.User) bool) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *memUsers) get(id string) *user.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.users[id]
	return &cp
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.ID == id })
}

func (m *memUsers) GetByCustomerID(_ context.Context, id string) (*user.User, error) {
	return m.find(func(u *user.User) bool {
		return u.StripeCustomerID != nil && *u.StripeCustomerID == id
	})
}

func (m *memUsers) GetByPlexUserID(_ context.Context, id string) (*user.User, error) {
	return m.find(func(u *user.User) bool {
		return u.PlexUserID != nil && *u.PlexUserID == id
	})
}

func (m *memUsers) GetByAuthID(_ context.Context, id string) (*user.User, error) {
	return m.find(func(u *user.User) bool {
		return u.AuthID != nil && *u.AuthID == id
	})
}

func (m *memUsers) Patch(_ context.Context, id string, p user.UserPatch) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return nil, m.patchErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	m.patches++
	p.ApplyTo(u)
	cp := *u
	return &cp, nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memUsers) List(context.Context, user.ListUsersParams) ([]user.User, int, error) {
	return nil, 0, nil
}

type fakeAuthority struct {
	mu            sync.Mutex
	event         *Event
	sessions      map[string]*CheckoutSession
	subscriptions map[string]*Subscription
	calls         []string
	priceUpdates  []string
	cancelled     []string
	checkouts     []CheckoutParams
	updateErr     error
	cancelErr     error
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		sessions:      map[string]*CheckoutSession{},
		subscriptions: map[string]*Subscription{},
	}
}

func (a *fakeAuthority) record(op string) {
	a.calls = append(a.calls, op)
}

func (a *fakeAuthority) CreateCustomer(context.Context, CustomerParams) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("create_customer")
	return "cus_new", nil
}

func (a *fakeAuthority) CreateCheckoutSession(
	_ context.Context,
	p CheckoutParams,
) (*CheckoutSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("create_checkout")
	a.checkouts = append(a.checkouts, p)
	return &CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (a *fakeAuthority) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("get_session")
	s, ok := a.sessions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return s, nil
}

func (a *fakeAuthority) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("get_subscription")
	s, ok := a.subscriptions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (a *fakeAuthority) UpdateSubscriptionPrice(
	_ context.Context,
	sub *Subscription,
	priceID string,
) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("update_price")
	if a.updateErr != nil {
		return a.updateErr
	}
	a.priceUpdates = append(a.priceUpdates, priceID)
	if s, ok := a.subscriptions[sub.ID]; ok {
		s.PriceID = priceID
	}
	return nil
}

func (a *fakeAuthority) CancelSubscription(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("cancel")
	if a.cancelErr != nil {
		return a.cancelErr
	}
	a.cancelled = append(a.cancelled, id)
	return nil
}

func (a *fakeAuthority) ConstructEvent(_ []byte, signature string) (*Event, error) {
	if signature != "valid" {
		return nil, ErrInvalidSignature
	}
	return a.event, nil
}

type applied struct {
	plexUserID string
	tier       access.Tier
}

type fakeAccess struct {
	mu       sync.Mutex
	applied  []applied
	removed  []string
	revoked  []string
	applyErr error
}

func (f *fakeAccess) ApplyTier(
	_ context.Context,
	m access.Member,
	tier access.Tier,
) (access.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, applied{m.PlexUserID, tier})
	if f.applyErr != nil {
		return access.Outcome{}, f.applyErr
	}
	return access.Outcome{Applied: true}, nil
}

func (f *fakeAccess) Revoke(_ context.Context, m access.Member) (access.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, m.PlexUserID)
	return access.Outcome{Applied: true}, nil
}

func (f *fakeAccess) Remove(_ context.Context, m access.Member) (access.Removal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, m.PlexUserID)
	return access.Removal{}, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries [][3]string
}

func (l *memLedger) Record(_ context.Context, userID, action, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, [3]string{userID, action, details})
}

func (l *memLedger) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e[1])
	}
	return out
}

func (l *memLedger) details(action string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e[1] == action {
			return e[2]
		}
	}
	return ""
}

type memDeduper struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: map[string]bool{}}
}

func (d *memDeduper) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDeduper) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	d.released = append(d.released, id)
	return nil
}

type harness struct {
	users  *memUsers
	auth   *fakeAuthority
	access *fakeAccess
	ledger *memLedger
	dedupe *memDeduper
	proc   *Processor
	mgr    *Manager
}

func testPlans() Plans {
	return Plans{
		PriceHD:        "price_hd",
		Price4K:        "price_4k",
		DefaultPriceID: "price_hd",
		FrontendURL:    "https://watch.example/",
	}
}

func newHarness(users ...*user.User) *harness {
	h := &harness{
		users:  newMemUsers(users...),
		auth:   newFakeAuthority(),
		access: &fakeAccess{},
		ledger: &memLedger{},
		dedupe: newMemDeduper(),
	}
	d := Deps{
		Users:     h.users,
		Authority: h.auth,
		Access:    h.access,
		Ledger:    h.ledger,
		Tiers: access.NewTierMap(config.TiersConfig{
			HD:    []int{1, 3},
			FourK: []int{1, 3, 4},
			Admin: []int{1, 3, 4, 9},
		}),
		Plans: testPlans(),
	}
	h.proc = NewProcessor(d, h.dedupe)
	h.mgr = NewManager(d)
	return h
}

func strPtr(s string) *string { return &s }
