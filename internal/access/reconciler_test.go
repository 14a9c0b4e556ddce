// AngelaMos | 2026
// reconciler_test.go

package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deez125/novix-gateway/internal/core"
)

func member() Member {
	return Member{UserID: "u-1", PlexUserID: "999", Email: "alice@example.com"}
}

func TestReconcileInvitesWhenNoGrant(t *testing.T) {
	dir := newFakeDirectory()
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	out, err := r.Reconcile(context.Background(), member(), []int64{100, 300})
	require.NoError(t, err)

	assert.Equal(t, Outcome{Applied: true, Transition: TransitionInvite}, out)
	assert.Equal(t, []string{"get", "create"}, dir.ops())
	assert.Equal(t, "alice@example.com", dir.calls[1].email)
	assert.Equal(t, []int64{100, 300}, dir.calls[1].sections)
	assert.Equal(t, []string{"plex_invited"}, ledger.actions())
}

func TestReconcileUpdatesExistingGrantEvenWhenSetDiffers(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100)
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	out, err := r.Reconcile(context.Background(), member(), []int64{100, 300, 400})
	require.NoError(t, err)

	assert.True(t, out.Applied)
	assert.True(t, out.GrantExisted)
	assert.Equal(t, TransitionUpdate, out.Transition)
	assert.Equal(t, []string{"get", "update"}, dir.ops())
	assert.Equal(t, int64(42), dir.calls[1].grantID)
	assert.Equal(t, []int64{100, 300, 400}, dir.grantFor("999").SectionIDs)
	assert.Equal(t, []string{"plex_access_updated"}, ledger.actions())
}

func TestReconcileUpdateToSameSetIsIdempotent(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100, 300)
	r := NewReconciler(dir, &fakeLedger{})

	for range 2 {
		out, err := r.Reconcile(context.Background(), member(), []int64{100, 300})
		require.NoError(t, err)
		assert.True(t, out.Applied)
		assert.Equal(t, TransitionUpdate, out.Transition)
	}

	assert.Len(t, dir.grants, 1)
	assert.Equal(t, []int64{100, 300}, dir.grantFor("999").SectionIDs)
}

func TestReconcileTwiceNeverDuplicatesGrant(t *testing.T) {
	dir := newFakeDirectory()
	dir.emailToUser["alice@example.com"] = "999"
	r := NewReconciler(dir, &fakeLedger{})

	first, err := r.Reconcile(context.Background(), member(), []int64{100})
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), member(), []int64{100})
	require.NoError(t, err)

	assert.Equal(t, TransitionInvite, first.Transition)
	assert.Equal(t, TransitionUpdate, second.Transition)
	assert.Len(t, dir.grants, 1)
}

func TestReconcileInviteRequiresEmail(t *testing.T) {
	dir := newFakeDirectory()
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	m := member()
	m.Email = " "
	out, err := r.Reconcile(context.Background(), m, []int64{100})

	require.ErrorIs(t, err, ErrMissingEmail)
	assert.False(t, out.Applied)
	assert.Equal(t, []string{"get"}, dir.ops())
	assert.Equal(t, []string{"plex_invite_failed"}, ledger.actions())
}

func TestReconcileRequiresPlexUserID(t *testing.T) {
	dir := newFakeDirectory()
	r := NewReconciler(dir, &fakeLedger{})

	_, err := r.Reconcile(context.Background(), Member{Email: "a@b.c"}, []int64{1})
	require.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Empty(t, dir.ops())
}

func TestReconcileLookupFailureAborts(t *testing.T) {
	dir := newFakeDirectory()
	dir.getErr = errBoom
	r := NewReconciler(dir, &fakeLedger{})

	_, err := r.Reconcile(context.Background(), member(), []int64{100})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"get"}, dir.ops())
}

func TestReconcileRevokeWithoutGrantIsNoop(t *testing.T) {
	dir := newFakeDirectory()
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	out, err := r.Reconcile(context.Background(), member(), nil)
	require.NoError(t, err)

	assert.Equal(t, Outcome{Applied: true, Transition: TransitionNoop}, out)
	assert.Equal(t, []string{"get"}, dir.ops())
	assert.Empty(t, ledger.actions())
}

func TestReconcileRevokeIsTwoPhase(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100, 300)
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	out, err := r.Reconcile(context.Background(), member(), []int64{})
	require.NoError(t, err)

	assert.True(t, out.Applied)
	assert.Equal(t, TransitionRevoke, out.Transition)
	assert.Equal(t, []string{"get", "update", "delete"}, dir.ops())
	assert.Empty(t, dir.calls[1].sections)
	assert.Nil(t, dir.grantFor("999"))
	assert.Equal(t, []string{"plex_removed"}, ledger.actions())
}

func TestReconcileRevokeDeleteFailureLeavesClearedGrant(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100, 300)
	dir.deleteErr = errBoom
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	out, err := r.Reconcile(context.Background(), member(), nil)
	require.NoError(t, err)

	assert.False(t, out.Applied)
	assert.Equal(t, ReasonGrantDeleteFailed, out.Reason)
	g := dir.grantFor("999")
	require.NotNil(t, g)
	assert.Empty(t, g.SectionIDs)
	assert.Equal(t, []string{"plex_removal_degraded"}, ledger.actions())
}

func TestReconcileRevokeClearFailureStillDeletes(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100)
	dir.updateErr = func([]int64) error { return errBoom }
	r := NewReconciler(dir, &fakeLedger{})

	out, err := r.Reconcile(context.Background(), member(), nil)
	require.NoError(t, err)

	assert.False(t, out.Applied)
	assert.Equal(t, ReasonSectionClearFailed, out.Reason)
	assert.Equal(t, []string{"get", "update", "delete"}, dir.ops())
	assert.Nil(t, dir.grantFor("999"))
}

func TestReconcileRevokeBothPhasesFail(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100)
	dir.updateErr = func([]int64) error { return errBoom }
	dir.deleteErr = errBoom
	ledger := &fakeLedger{}
	r := NewReconciler(dir, ledger)

	out, err := r.Reconcile(context.Background(), member(), nil)
	require.ErrorIs(t, err, ErrRevokeFailed)

	assert.False(t, out.Applied)
	assert.Equal(t, []string{"get", "update", "delete"}, dir.ops())
	assert.Equal(t, []string{"plex_removal_failed"}, ledger.actions())
}

func TestReconcileRevokeTreatsMissingGrantOnDeleteAsDone(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100)
	dir.deleteErr = core.NotFoundError("shared server")
	r := NewReconciler(dir, &fakeLedger{})

	out, err := r.Reconcile(context.Background(), member(), nil)
	require.NoError(t, err)
	assert.True(t, out.Applied)
}

func TestRevokeSafetyNeverLeavesOriginalSections(t *testing.T) {
	cases := map[string]func(*fakeDirectory){
		"clean":        func(*fakeDirectory) {},
		"delete fails": func(d *fakeDirectory) { d.deleteErr = errBoom },
		"friend fails": func(d *fakeDirectory) { d.friendErr = errBoom },
		"clear fails":  func(d *fakeDirectory) { d.updateErr = func([]int64) error { return errBoom } },
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			dir := newFakeDirectory()
			dir.seedGrant("999", 42, 100, 300)
			setup(dir)
			r := NewReconciler(dir, &fakeLedger{})

			_, _ = r.Reconcile(context.Background(), member(), nil)

			g := dir.grantFor("999")
			if g != nil {
				assert.Empty(t, g.SectionIDs)
			}
		})
	}
}

func TestRemoveRunsFriendAndCleaners(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100)
	ledger := &fakeLedger{}
	cleaner := &fakeCleaner{}
	r := NewReconciler(dir, ledger, cleaner)

	res, err := r.Remove(context.Background(), member())
	require.NoError(t, err)

	assert.True(t, res.Outcome.Applied)
	assert.True(t, res.FriendRemoved)
	assert.Equal(t, []string{"999"}, cleaner.removed)
	assert.NoError(t, res.Cleanup["tautulli"])
	assert.Equal(t, []string{"get", "update", "delete", "friend"}, dir.ops())
	assert.Equal(t, []string{"plex_removed", "tautulli_removed"}, ledger.actions())
}

func TestRemoveCleanupFailureIsBestEffort(t *testing.T) {
	dir := newFakeDirectory()
	dir.friendErr = errBoom
	ledger := &fakeLedger{}
	cleaner := &fakeCleaner{err: errBoom}
	r := NewReconciler(dir, ledger, cleaner)

	res, err := r.Remove(context.Background(), member())
	require.NoError(t, err)

	assert.False(t, res.FriendRemoved)
	assert.ErrorIs(t, res.Cleanup["tautulli"], errBoom)
	assert.Equal(t, []string{"tautulli_removal_failed"}, ledger.actions())
}

func TestRemoveContinuesWhenRevokeFails(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		dir := newFakeDirectory()
		dir.getErr = errBoom
		ledger := &fakeLedger{}
		cleaner := &fakeCleaner{}
		r := NewReconciler(dir, ledger, cleaner)

		res, err := r.Remove(context.Background(), member())
		require.ErrorIs(t, err, errBoom)

		assert.True(t, res.FriendRemoved)
		assert.Equal(t, []string{"999"}, cleaner.removed)
		assert.Equal(t, []string{"get", "friend"}, dir.ops())
		assert.Equal(t, []string{"tautulli_removed"}, ledger.actions())
	})

	t.Run("both revoke phases fail", func(t *testing.T) {
		dir := newFakeDirectory()
		dir.seedGrant("999", 42, 100)
		dir.updateErr = func([]int64) error { return errBoom }
		dir.deleteErr = errBoom
		ledger := &fakeLedger{}
		cleaner := &fakeCleaner{}
		r := NewReconciler(dir, ledger, cleaner)

		res, err := r.Remove(context.Background(), member())
		require.ErrorIs(t, err, ErrRevokeFailed)

		assert.True(t, res.FriendRemoved)
		assert.Equal(t, []string{"999"}, cleaner.removed)
		assert.Equal(t, []string{"get", "update", "delete", "friend"}, dir.ops())
		assert.Equal(t, []string{"plex_removal_failed", "tautulli_removed"}, ledger.actions())
	})

	t.Run("no plex id", func(t *testing.T) {
		dir := newFakeDirectory()
		cleaner := &fakeCleaner{}
		r := NewReconciler(dir, &fakeLedger{}, cleaner)

		_, err := r.Remove(context.Background(), Member{UserID: "u-1"})
		require.Error(t, err)
		assert.Empty(t, dir.ops())
		assert.Empty(t, cleaner.removed)
	})
}

func TestPlanIsExhaustive(t *testing.T) {
	assert.Equal(t, TransitionNoop, plan(noGrant{}, nil))
	assert.Equal(t, TransitionInvite, plan(noGrant{}, []int64{1}))
	assert.Equal(t, TransitionRevoke, plan(grantActive{id: 1}, nil))
	assert.Equal(t, TransitionUpdate, plan(grantActive{id: 1}, []int64{1}))
}

func TestServiceApplyTierResolvesThenReconciles(t *testing.T) {
	dir := newFakeDirectory()
	dir.seedGrant("999", 42, 100, 300, 400)
	ledger := &fakeLedger{}
	svc := NewService(
		NewTranslator(dir, testTiers()),
		NewReconciler(dir, ledger),
		ledger,
	)

	out, err := svc.ApplyTier(context.Background(), member(), TierHD)
	require.NoError(t, err)

	assert.Equal(t, TransitionUpdate, out.Transition)
	assert.Equal(t, []string{"list", "get", "update"}, dir.ops())
	assert.Equal(t, []int64{100, 300}, dir.grantFor("999").SectionIDs)
}

func TestServiceApplyTierRecordsDegradedLookup(t *testing.T) {
	dir := newFakeDirectory()
	dir.listErr = errBoom
	dir.seedGrant("999", 42, 100)
	ledger := &fakeLedger{}
	svc := NewService(
		NewTranslator(dir, testTiers()),
		NewReconciler(dir, ledger),
		ledger,
	)

	_, err := svc.ApplyTier(context.Background(), member(), TierHD)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, dir.grantFor("999").SectionIDs)
	assert.Equal(t,
		[]string{"library_lookup_degraded", "plex_access_updated"},
		ledger.actions(),
	)
}
