// AngelaMos | 2026
// repository_test.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deez125/novix-gateway/internal/access"
	"github.com/deez125/novix-gateway/internal/core"
)

var userRowColumns = []string{
	"id", "auth_id", "display_name", "email", "plex_username", "plex_user_id",
	"stripe_customer_id", "stripe_subscription_id", "tier", "subscription_status",
	"current_period_end", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCreateDuplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &User{
		ID:                 "u-1",
		DisplayName:        "Ana",
		Email:              "ana@example.com",
		Tier:               access.TierHD,
		SubscriptionStatus: StatusPending,
	})
	require.ErrorIs(t, err, core.ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFillsTimestamps(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("u-1", nil, "Ana", "ana@example.com", nil, nil, "4k", StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &User{
		ID:                 "u-1",
		DisplayName:        "Ana",
		Email:              "ana@example.com",
		Tier:               access.Tier4K,
		SubscriptionStatus: StatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, now, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByCustomerIDNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT .+ FROM users\s+WHERE stripe_customer_id = \$1`).
		WithArgs("cus_123").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCustomerID(context.Background(), "cus_123")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByPlexUserIDScansTier(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM users\s+WHERE plex_user_id = \$1`).
		WithArgs("555").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"u-1", nil, "Ana", "ana@example.com", "ana", "555",
			"cus_1", "sub_1", "admin", StatusActive,
			nil, now, now,
		))

	u, err := repo.GetByPlexUserID(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, access.TierAdmin, u.Tier)
	assert.True(t, u.IsAdmin())
	assert.True(t, u.HasPlexID())
	assert.Equal(t, "555", u.Member().PlexUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPatchWritesOnlySetFields(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(
		`UPDATE users\s+SET plex_user_id = \$2, subscription_status = \$3, updated_at = NOW\(\)\s+WHERE id = \$1`,
	).
		WithArgs("u-1", nil, StatusKicked).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"u-1", nil, "Ana", "ana@example.com", "ana", nil,
			nil, nil, "hd", StatusKicked,
			nil, now, now,
		))

	u, err := repo.Patch(context.Background(), "u-1", UserPatch{
		SubscriptionStatus: Set(StatusKicked),
		PlexUserID:         Null[string](),
	})
	require.NoError(t, err)
	assert.Nil(t, u.PlexUserID)
	assert.Equal(t, StatusKicked, u.SubscriptionStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPatchEmpty(t *testing.T) {
	repo, _ := newRepoWithMock(t)

	_, err := repo.Patch(context.Background(), "u-1", UserPatch{})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestPatchMissingRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`UPDATE users`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Patch(context.Background(), "nope", UserPatch{Tier: Set(access.Tier4K)})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "u-1"))
	require.ErrorIs(t, repo.Delete(context.Background(), "u-2"), core.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE TRUE AND \(email ILIKE \$1`).
		WithArgs(`%50\%%`, "4k").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \$3 OFFSET \$4`).
		WithArgs(`%50\%%`, "4k", 50, 0).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			"u-1", nil, "Ana", "ana@example.com", nil, nil,
			nil, nil, "4k", StatusPending,
			nil, now, now,
		))

	users, total, err := repo.List(context.Background(), ListUsersParams{
		Search: "50%",
		Tier:   "4k",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCountError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("db down"))

	_, _, err := repo.List(context.Background(), ListUsersParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count users")
}

func TestCountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	mock.ExpectQuery(`SELECT subscription_status, COUNT\(\*\) AS count`).
		WillReturnRows(sqlmock.NewRows([]string{"subscription_status", "count"}).
			AddRow("active", 12).
			AddRow("cancelled", 3))

	counts, err := CountByStatus(context.Background(), sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{
		{Status: "active", Count: 12},
		{Status: "cancelled", Count: 3},
	}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}
