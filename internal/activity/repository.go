// AngelaMos | 2026
// repository.go

package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/deez125/novix-gateway/internal/core"
)

// Entry is one append-only row of the activity log.
type Entry struct {
	ID          int64     `db:"id"           json:"id"`
	UserID      *string   `db:"user_id"      json:"user_id"`
	Action      string    `db:"action"       json:"action"`
	Details     string    `db:"details"      json:"details"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	DisplayName *string   `db:"display_name" json:"display_name"`
}

type Repository interface {
	Append(ctx context.Context, userID, action, details string) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Append(
	ctx context.Context,
	userID, action, details string,
) error {
	query := `
		INSERT INTO activity_log (user_id, action, details)
		VALUES ($1, $2, $3)`

	var uid any
	if userID != "" {
		uid = userID
	}

	if _, err := r.db.ExecContext(ctx, query, uid, action, details); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}

	return nil
}

func (r *repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT a.id, a.user_id, a.action, a.details, a.created_at,
		       u.display_name
		FROM activity_log a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1`

	entries := []Entry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return entries, nil
}
