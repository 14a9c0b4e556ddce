// AngelaMos | 2026
// reconciler.go

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/metrics"
	"github.com/deez125/novix-gateway/internal/plex"
)

var (
	ErrMissingEmail = errors.New("email required to invite")
	ErrRevokeFailed = errors.New("revoke failed")
)

// Directory is the sharing surface of the library server directory.
type Directory interface {
	SectionLister
	GetSharedGrant(ctx context.Context, plexUserID string) (*plex.SharedGrant, error)
	CreateSharedGrant(
		ctx context.Context,
		email string,
		sectionIDs []int64,
	) (*plex.SharedGrant, error)
	UpdateSharedGrant(ctx context.Context, grantID int64, sectionIDs []int64) error
	DeleteSharedGrant(ctx context.Context, grantID int64) error
	RemoveFriend(ctx context.Context, plexUserID string) error
}

// Ledger records activity. Implementations must not fail the caller.
type Ledger interface {
	Record(ctx context.Context, userID, action, details string)
}

// MemberCleaner removes a member from an auxiliary system after their
// access has been revoked.
type MemberCleaner interface {
	Name() string
	RemoveMember(ctx context.Context, plexUserID string) error
}

type Member struct {
	UserID     string
	PlexUserID string
	Email      string
}

type Transition string

const (
	TransitionInvite Transition = "invite"
	TransitionUpdate Transition = "update"
	TransitionRevoke Transition = "revoke"
	TransitionNoop   Transition = "noop"
)

const (
	ReasonSectionClearFailed = "section_clear_failed"
	ReasonGrantDeleteFailed  = "grant_delete_failed"
)

type Outcome struct {
	Applied      bool
	GrantExisted bool
	Transition   Transition
	Reason       string
}

type grantState interface {
	grantState()
}

type noGrant struct{}

type grantActive struct {
	id       int64
	sections []int64
}

func (noGrant) grantState()     {}
func (grantActive) grantState() {}

func stateOf(g *plex.SharedGrant) grantState {
	if g == nil {
		return noGrant{}
	}
	return grantActive{id: g.ID, sections: g.SectionIDs}
}

func plan(state grantState, desired []int64) Transition {
	switch state.(type) {
	case noGrant:
		if len(desired) == 0 {
			return TransitionNoop
		}
		return TransitionInvite
	case grantActive:
		if len(desired) == 0 {
			return TransitionRevoke
		}
		return TransitionUpdate
	default:
		panic(fmt.Sprintf("access: unhandled grant state %T", state))
	}
}

type Reconciler struct {
	dir      Directory
	ledger   Ledger
	cleaners []MemberCleaner
}

func NewReconciler(
	dir Directory,
	ledger Ledger,
	cleaners ...MemberCleaner,
) *Reconciler {
	return &Reconciler{dir: dir, ledger: ledger, cleaners: cleaners}
}

// Reconcile drives the member's shared grant to sectionIDs. An empty
// set revokes the grant. The current grant is always looked up first so
// an existing grant is updated, never duplicated.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	m Member,
	sectionIDs []int64,
) (Outcome, error) {
	ctx, span := core.StartSpan(ctx, "access.Reconcile",
		attribute.String("plex.user_id", m.PlexUserID),
		attribute.Int("sections", len(sectionIDs)),
	)

	out, err := r.reconcile(ctx, m, sectionIDs)

	span.SetAttributes(
		attribute.String("transition", string(out.Transition)),
		attribute.Bool("applied", out.Applied),
	)
	core.EndSpan(span, err)

	label := string(out.Transition)
	if label == "" {
		label = "lookup"
	}
	metrics.ReconcileTotal.WithLabelValues(label, resultLabel(out, err)).Inc()

	return out, err
}

func (r *Reconciler) reconcile(
	ctx context.Context,
	m Member,
	sectionIDs []int64,
) (Outcome, error) {
	if m.PlexUserID == "" {
		return Outcome{}, fmt.Errorf(
			"reconcile: plex user id required: %w",
			core.ErrInvalidInput,
		)
	}

	current, err := r.dir.GetSharedGrant(ctx, m.PlexUserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: lookup grant: %w", err)
	}

	state := stateOf(current)
	transition := plan(state, sectionIDs)
	out := Outcome{
		GrantExisted: current != nil,
		Transition:   transition,
	}

	switch transition {
	case TransitionNoop:
		out.Applied = true
		return out, nil

	case TransitionInvite:
		return r.invite(ctx, m, sectionIDs, out)

	case TransitionUpdate:
		active, _ := state.(grantActive)
		return r.update(ctx, m, active, sectionIDs, out)

	case TransitionRevoke:
		active, _ := state.(grantActive)
		return r.revoke(ctx, m, active, out)

	default:
		return out, fmt.Errorf("reconcile: unhandled transition %q", transition)
	}
}

func (r *Reconciler) invite(
	ctx context.Context,
	m Member,
	sectionIDs []int64,
	out Outcome,
) (Outcome, error) {
	if strings.TrimSpace(m.Email) == "" {
		r.ledger.Record(ctx, m.UserID, "plex_invite_failed",
			"Cannot invite to Plex: no email on record")
		return out, fmt.Errorf("reconcile: %w", ErrMissingEmail)
	}

	if _, err := r.dir.CreateSharedGrant(ctx, m.Email, sectionIDs); err != nil {
		r.ledger.Record(ctx, m.UserID, "plex_invite_failed",
			fmt.Sprintf("Failed to invite: %v", err))
		return out, fmt.Errorf("reconcile: invite: %w", err)
	}

	out.Applied = true
	r.ledger.Record(ctx, m.UserID, "plex_invited",
		fmt.Sprintf("Invited to Plex server with %d libraries", len(sectionIDs)))
	return out, nil
}

func (r *Reconciler) update(
	ctx context.Context,
	m Member,
	grant grantActive,
	sectionIDs []int64,
	out Outcome,
) (Outcome, error) {
	if err := r.dir.UpdateSharedGrant(ctx, grant.id, sectionIDs); err != nil {
		r.ledger.Record(ctx, m.UserID, "library_update_failed",
			fmt.Sprintf("Failed to update Plex library access: %v", err))
		return out, fmt.Errorf("reconcile: update grant %d: %w", grant.id, err)
	}

	out.Applied = true
	r.ledger.Record(ctx, m.UserID, "plex_access_updated",
		fmt.Sprintf("Updated Plex access to %d libraries", len(sectionIDs)))
	return out, nil
}

// revoke clears the grant's sections and then deletes it. Both steps
// run even when the first fails.
func (r *Reconciler) revoke(
	ctx context.Context,
	m Member,
	grant grantActive,
	out Outcome,
) (Outcome, error) {
	clearErr := r.dir.UpdateSharedGrant(ctx, grant.id, []int64{})
	if clearErr != nil {
		slog.Warn("clearing shared sections failed",
			"plex_user_id", m.PlexUserID,
			"grant_id", grant.id,
			"error", clearErr,
		)
	}

	deleteErr := r.dir.DeleteSharedGrant(ctx, grant.id)
	if deleteErr != nil && errors.Is(deleteErr, core.ErrNotFound) {
		deleteErr = nil
	}
	if deleteErr != nil {
		slog.Warn("deleting shared grant failed",
			"plex_user_id", m.PlexUserID,
			"grant_id", grant.id,
			"error", deleteErr,
		)
	}

	switch {
	case clearErr == nil && deleteErr == nil:
		out.Applied = true
		r.ledger.Record(ctx, m.UserID, "plex_removed",
			"Removed all Plex library access")
		return out, nil

	case clearErr == nil:
		out.Reason = ReasonGrantDeleteFailed
		r.ledger.Record(ctx, m.UserID, "plex_removal_degraded",
			fmt.Sprintf("Libraries cleared but share %d not deleted: %v",
				grant.id, deleteErr))
		return out, nil

	case deleteErr == nil:
		out.Reason = ReasonSectionClearFailed
		r.ledger.Record(ctx, m.UserID, "plex_removal_degraded",
			fmt.Sprintf("Share %d deleted but section clear failed: %v",
				grant.id, clearErr))
		return out, nil

	default:
		r.ledger.Record(ctx, m.UserID, "plex_removal_failed",
			fmt.Sprintf("Failed to remove from Plex: %v", deleteErr))
		return out, fmt.Errorf(
			"reconcile: grant %d: %w",
			grant.id,
			errors.Join(ErrRevokeFailed, clearErr, deleteErr),
		)
	}
}

type Removal struct {
	Outcome       Outcome
	FriendRemoved bool
	Cleanup       map[string]error
}

// Remove revokes the member's grant, then drops the friendship and runs
// the registered cleaners. The friendship and cleaner steps run even when
// the revoke fails; only the revoke decides the returned error.
func (r *Reconciler) Remove(ctx context.Context, m Member) (Removal, error) {
	out, err := r.Reconcile(ctx, m, nil)
	res := Removal{Outcome: out, Cleanup: map[string]error{}}
	if m.PlexUserID == "" {
		return res, err
	}

	if ferr := r.dir.RemoveFriend(ctx, m.PlexUserID); ferr != nil {
		if !errors.Is(ferr, core.ErrNotFound) {
			slog.Warn("removing plex friend failed",
				"plex_user_id", m.PlexUserID,
				"error", ferr,
			)
		}
	} else {
		res.FriendRemoved = true
	}

	for _, c := range r.cleaners {
		cerr := c.RemoveMember(ctx, m.PlexUserID)
		res.Cleanup[c.Name()] = cerr
		if cerr != nil {
			r.ledger.Record(ctx, m.UserID, c.Name()+"_removal_failed",
				fmt.Sprintf("Failed to remove from %s: %v", c.Name(), cerr))
			continue
		}
		r.ledger.Record(ctx, m.UserID, c.Name()+"_removed",
			"Removed from "+c.Name())
	}

	return res, err
}

func resultLabel(out Outcome, err error) string {
	switch {
	case err != nil:
		return "failed"
	case !out.Applied:
		return "degraded"
	default:
		return "applied"
	}
}
