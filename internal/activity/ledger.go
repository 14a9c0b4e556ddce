// AngelaMos | 2026
// ledger.go

package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/deez125/novix-gateway/internal/metrics"
)

const writeTimeout = 5 * time.Second

// Ledger records business events. Writes never fail the caller: a lost
// entry is logged and counted.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) Record(ctx context.Context, userID, action, details string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := l.repo.Append(ctx, userID, action, details); err != nil {
		metrics.LedgerWriteFailures.Inc()
		slog.Error("activity ledger write failed",
			"user_id", userID,
			"action", action,
			"details", details,
			"error", err,
		)
	}
}

func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return l.repo.ListRecent(ctx, limit)
}
