// AngelaMos | 2026
// core_test.go

package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("get user: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"invalid", fmt.Errorf("tier: %w", ErrInvalidInput), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"duplicate", ErrDuplicateKey, http.StatusConflict, "DUPLICATE"},
		{"conflict", ErrConflict, http.StatusConflict, "CONFLICT"},
		{"gone", ErrGone, http.StatusGone, "GONE"},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"upstream", errors.New("stripe exploded"), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"app error passthrough", TokenExpiredError(), http.StatusUnauthorized, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromError(tt.err)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestFromErrorKeepsInvalidInputMessage(t *testing.T) {
	appErr := FromError(fmt.Errorf("unknown tier %q: %w", "gold", ErrInvalidInput))
	assert.Equal(t, `unknown tier "gold": invalid input`, appErr.Message)
	assert.True(t, IsAppError(appErr))
	assert.ErrorIs(t, appErr, ErrInvalidInput)
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, fmt.Errorf("lookup: %w", ErrNotFound))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"success":false,"error":{"code":"NOT_FOUND","message":"not found"}}`,
		rec.Body.String())
}

func TestPaginated(t *testing.T) {
	rec := httptest.NewRecorder()
	Paginated(rec, []string{"a"}, 2, 10, 25)

	assert.JSONEq(t,
		`{"success":true,"data":["a"],"meta":{"page":2,"page_size":10,"total":25,"total_pages":3}}`,
		rec.Body.String())
}

func TestFormatValidationError(t *testing.T) {
	type req struct {
		Code  string `validate:"required"`
		Email string `validate:"omitempty,email"`
		Tier  string `validate:"omitempty,oneof=hd 4k"`
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(req{Email: "nope", Tier: "8k"})
	require.Error(t, err)

	assert.Equal(t,
		"code is required; email must be a valid email; tier must be one of: hd 4k",
		FormatValidationError(err))
	assert.Equal(t, "invalid request", FormatValidationError(errors.New("x")))
}

func TestGenerateNumericCode(t *testing.T) {
	for range 200 {
		code, err := GenerateNumericCode(4)
		require.NoError(t, err)
		require.Len(t, code, 4)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}

	_, err := GenerateNumericCode(0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompareSecret(t *testing.T) {
	assert.True(t, CompareSecret("admin-key", "admin-key"))
	assert.False(t, CompareSecret("admin-kez", "admin-key"))
	assert.False(t, CompareSecret("", ""))
	assert.False(t, CompareSecret("anything", ""))
}

func TestInTx(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = InTx(context.Background(), sqlx.NewDb(db, "sqlmock"), func(tx *sqlx.Tx) error {
			_, execErr := tx.Exec(`UPDATE users SET tier = 'hd'`)
			return execErr
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectBegin()
		mock.ExpectRollback()

		errBoom := errors.New("boom")
		err = InTx(context.Background(), sqlx.NewDb(db, "sqlmock"), func(*sqlx.Tx) error {
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
