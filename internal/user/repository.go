// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deez125/novix-gateway/internal/core"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByCustomerID(ctx context.Context, customerID string) (*User, error)
	GetByPlexUserID(ctx context.Context, plexUserID string) (*User, error)
	GetByAuthID(ctx context.Context, authID string) (*User, error)
	Patch(ctx context.Context, id string, patch UserPatch) (*User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params ListUsersParams) ([]User, int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const userColumns = `id, auth_id, display_name, email, plex_username, plex_user_id,
		       stripe_customer_id, stripe_subscription_id, tier, subscription_status,
		       current_period_end, created_at, updated_at`

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, auth_id, display_name, email, plex_username,
		                   plex_user_id, tier, subscription_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, user, query,
		user.ID,
		user.AuthID,
		user.DisplayName,
		user.Email,
		user.PlexUsername,
		user.PlexUserID,
		string(user.Tier),
		user.SubscriptionStatus,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) getBy(
	ctx context.Context,
	op, column, value string,
) (*User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s = $1`, userColumns, column)

	var user User
	err := r.db.GetContext(ctx, &user, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, "get user", "id", id)
}

func (r *repository) GetByCustomerID(
	ctx context.Context,
	customerID string,
) (*User, error) {
	return r.getBy(ctx, "get user by customer", "stripe_customer_id", customerID)
}

func (r *repository) GetByPlexUserID(
	ctx context.Context,
	plexUserID string,
) (*User, error) {
	return r.getBy(ctx, "get user by plex id", "plex_user_id", plexUserID)
}

func (r *repository) GetByAuthID(
	ctx context.Context,
	authID string,
) (*User, error) {
	return r.getBy(ctx, "get user by auth id", "auth_id", authID)
}

// Patch writes only the fields set on patch and returns the stored row.
func (r *repository) Patch(
	ctx context.Context,
	id string,
	patch UserPatch,
) (*User, error) {
	cols := patch.columns()
	if len(cols) == 0 {
		return nil, fmt.Errorf("patch user: no fields: %w", core.ErrInvalidInput)
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	args = append(args, id)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c.name, i+2))
		args = append(args, c.arg)
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE users
		SET %s
		WHERE id = $1
		RETURNING %s`, strings.Join(sets, ", "), userColumns)

	var user User
	err := r.db.GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patch user: %w", core.ErrNotFound)
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("patch user: %w", core.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("patch user: %w", err)
	}

	return &user, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete user: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, "TRUE")

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR display_name ILIKE $%d OR plex_username ILIKE $%d)",
			argIdx, argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}

	if params.Tier != "" {
		conditions = append(conditions, fmt.Sprintf("tier = $%d", argIdx))
		args = append(args, params.Tier)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM users WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return users, total, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

type StatusCount struct {
	Status string `db:"subscription_status" json:"status"`
	Count  int    `db:"count"               json:"count"`
}

// CountByStatus groups members by subscription status.
func CountByStatus(ctx context.Context, db core.DBTX) ([]StatusCount, error) {
	var out []StatusCount
	query := `
		SELECT subscription_status, COUNT(*) AS count
		FROM users
		GROUP BY subscription_status
		ORDER BY subscription_status`
	if err := db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("count users by status: %w", err)
	}
	return out, nil
}
