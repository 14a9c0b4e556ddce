// AngelaMos | 2026
// service.go

package access

import (
	"context"
	"fmt"
	"log/slog"
)

// Service couples tier translation with reconciliation.
type Service struct {
	translator *Translator
	reconciler *Reconciler
	ledger     Ledger
}

func NewService(t *Translator, r *Reconciler, ledger Ledger) *Service {
	return &Service{translator: t, reconciler: r, ledger: ledger}
}

// ApplyTier grants the member exactly the sections of tier.
func (s *Service) ApplyTier(
	ctx context.Context,
	m Member,
	tier Tier,
) (Outcome, error) {
	res, err := s.translator.ResolveTierOrFallback(ctx, tier)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply tier %s: %w", tier, err)
	}

	if len(res.Missing) > 0 {
		slog.Warn("tier references libraries missing from directory",
			"tier", tier,
			"missing_keys", res.Missing,
			"plex_user_id", m.PlexUserID,
		)
	}
	if res.Degraded {
		s.ledger.Record(ctx, m.UserID, "library_lookup_degraded",
			fmt.Sprintf("Section directory unavailable; used library keys for %s tier", tier))
	}

	return s.reconciler.Reconcile(ctx, m, res.SectionIDs)
}

func (s *Service) Revoke(ctx context.Context, m Member) (Outcome, error) {
	return s.reconciler.Reconcile(ctx, m, nil)
}

func (s *Service) Remove(ctx context.Context, m Member) (Removal, error) {
	return s.reconciler.Remove(ctx, m)
}
