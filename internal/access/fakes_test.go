// AngelaMos | 2026
// fakes_test.go

package access

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/deez125/novix-gateway/internal/plex"
)

var errBoom = errors.New("boom")

type call struct {
	op       string
	grantID  int64
	email    string
	sections []int64
}

type fakeDirectory struct {
	mu       sync.Mutex
	sections []plex.Section
	grants   map[string]*plex.SharedGrant
	nextID   int64
	calls    []call

	// emailToUser links invited emails to the plex user that accepts.
	emailToUser map[string]string

	listErr   error
	getErr    error
	createErr error
	updateErr func(sections []int64) error
	deleteErr error
	friendErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		sections: []plex.Section{
			{Key: 1, ID: 100},
			{Key: 3, ID: 300},
			{Key: 4, ID: 400},
		},
		grants:      map[string]*plex.SharedGrant{},
		nextID:      5000,
		emailToUser: map[string]string{},
	}
}

func (f *fakeDirectory) record(c call) {
	f.calls = append(f.calls, c)
}

func (f *fakeDirectory) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakeDirectory) ListSections(context.Context) ([]plex.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{op: "list"})
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.sections), nil
}

func (f *fakeDirectory) GetSharedGrant(
	_ context.Context,
	plexUserID string,
) (*plex.SharedGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{op: "get"})
	if f.getErr != nil {
		return nil, f.getErr
	}
	g, ok := f.grants[plexUserID]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.SectionIDs = slices.Clone(g.SectionIDs)
	return &cp, nil
}

func (f *fakeDirectory) CreateSharedGrant(
	_ context.Context,
	email string,
	sectionIDs []int64,
) (*plex.SharedGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{op: "create", email: email, sections: slices.Clone(sectionIDs)})
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	key := email
	if uid, ok := f.emailToUser[email]; ok {
		key = uid
	}
	g := &plex.SharedGrant{
		ID:           f.nextID,
		UserID:       key,
		InvitedEmail: email,
		SectionIDs:   slices.Clone(sectionIDs),
	}
	f.grants[key] = g
	return g, nil
}

func (f *fakeDirectory) UpdateSharedGrant(
	_ context.Context,
	grantID int64,
	sectionIDs []int64,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{op: "update", grantID: grantID, sections: slices.Clone(sectionIDs)})
	if f.updateErr != nil {
		if err := f.updateErr(sectionIDs); err != nil {
			return err
		}
	}
	for _, g := range f.grants {
		if g.ID == grantID {
			g.SectionIDs = slices.Clone(sectionIDs)
		}
	}
	return nil
}

func (f *fakeDirectory) DeleteSharedGrant(_ context.Context, grantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{op: "delete", grantID: grantID})
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for k, g := range f.grants {
		if g.ID == grantID {
			delete(f.grants, k)
		}
	}
	return nil
}

func (f *fakeDirectory) RemoveFriend(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{op: "friend"})
	return f.friendErr
}

func (f *fakeDirectory) seedGrant(plexUserID string, id int64, sections ...int64) {
	f.grants[plexUserID] = &plex.SharedGrant{
		ID:         id,
		UserID:     plexUserID,
		SectionIDs: sections,
	}
}

func (f *fakeDirectory) grantFor(plexUserID string) *plex.SharedGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[plexUserID]
}

type entry struct {
	userID  string
	action  string
	details string
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *fakeLedger) Record(_ context.Context, userID, action, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{userID, action, details})
}

func (l *fakeLedger) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.action)
	}
	return out
}

type fakeCleaner struct {
	err     error
	removed []string
}

func (c *fakeCleaner) Name() string { return "tautulli" }

func (c *fakeCleaner) RemoveMember(_ context.Context, plexUserID string) error {
	c.removed = append(c.removed, plexUserID)
	return c.err
}
