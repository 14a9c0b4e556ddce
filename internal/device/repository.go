// AngelaMos | 2026
// repository.go

package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/deez125/novix-gateway/internal/core"
)

type Repository interface {
	CodeInUse(ctx context.Context, code string, now time.Time) (bool, error)
	CreateCode(ctx context.Context, c *Code) error
	GetCode(ctx context.Context, code string) (*Code, error)
	// Activate locks the newest row for code and lets fn validate and
	// fill UserID and AuthToken before the row is marked activated.
	Activate(ctx context.Context, code string, fn func(c *Code) error) error
	GetPlexConnection(ctx context.Context, userID string) (*PlexConnection, error)
	GetIPTVConnection(ctx context.Context, userID string) (*IPTVConnection, error)
	UpsertPlexConnection(ctx context.Context, pc *PlexConnection) error
	UpsertIPTVConnection(ctx context.Context, ic *IPTVConnection) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const codeColumns = `id, code, expires_at, activated, user_id, auth_token,
		       activated_at, created_at`

// CodeInUse treats any unexpired code as taken, activated or not, so a TV
// still polling a claimed code never sees a newer row with its number.
func (r *repository) CodeInUse(
	ctx context.Context,
	code string,
	now time.Time,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM device_auth_codes
			WHERE code = $1 AND expires_at > $2
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code, now); err != nil {
		return false, fmt.Errorf("check device code: %w", err)
	}
	return exists, nil
}

func (r *repository) CreateCode(ctx context.Context, c *Code) error {
	query := `
		INSERT INTO device_auth_codes (id, code, expires_at, activated)
		VALUES ($1, $2, $3, FALSE)
		RETURNING created_at`

	if err := r.db.GetContext(ctx, &c.CreatedAt, query,
		c.ID,
		c.Code,
		c.ExpiresAt,
	); err != nil {
		return fmt.Errorf("create device code: %w", err)
	}
	return nil
}

func (r *repository) GetCode(ctx context.Context, code string) (*Code, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM device_auth_codes
		WHERE code = $1
		ORDER BY created_at DESC
		LIMIT 1`, codeColumns)

	var c Code
	err := r.db.GetContext(ctx, &c, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get device code: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device code: %w", err)
	}
	return &c, nil
}

func (r *repository) Activate(
	ctx context.Context,
	code string,
	fn func(c *Code) error,
) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := fmt.Sprintf(`
			SELECT %s
			FROM device_auth_codes
			WHERE code = $1
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE`, codeColumns)

		var c Code
		err := tx.GetContext(ctx, &c, query, code)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("activate device code: %w", core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("activate device code: %w", err)
		}

		if err := fn(&c); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE device_auth_codes
			SET activated = TRUE, user_id = $2, auth_token = $3, activated_at = NOW()
			WHERE id = $1`,
			c.ID,
			c.UserID,
			c.AuthToken,
		)
		if err != nil {
			return fmt.Errorf("activate device code: %w", err)
		}
		return nil
	})
}

func (r *repository) GetPlexConnection(
	ctx context.Context,
	userID string,
) (*PlexConnection, error) {
	query := `
		SELECT user_id, plex_user_id, plex_username, plex_email, plex_token, updated_at
		FROM plex_connections
		WHERE user_id = $1`

	var pc PlexConnection
	err := r.db.GetContext(ctx, &pc, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get plex connection: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get plex connection: %w", err)
	}
	return &pc, nil
}

func (r *repository) GetIPTVConnection(
	ctx context.Context,
	userID string,
) (*IPTVConnection, error) {
	query := `
		SELECT user_id, provider_name, connection_type, m3u_url, xtream_host,
		       xtream_username, xtream_password, updated_at
		FROM iptv_connections
		WHERE user_id = $1`

	var ic IPTVConnection
	err := r.db.GetContext(ctx, &ic, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get iptv connection: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get iptv connection: %w", err)
	}
	return &ic, nil
}

func (r *repository) UpsertPlexConnection(
	ctx context.Context,
	pc *PlexConnection,
) error {
	query := `
		INSERT INTO plex_connections (user_id, plex_user_id, plex_username,
		                              plex_email, plex_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET plex_user_id = EXCLUDED.plex_user_id,
		    plex_username = EXCLUDED.plex_username,
		    plex_email = EXCLUDED.plex_email,
		    plex_token = EXCLUDED.plex_token,
		    updated_at = NOW()
		RETURNING updated_at`

	if err := r.db.GetContext(ctx, &pc.UpdatedAt, query,
		pc.UserID,
		pc.PlexUserID,
		pc.PlexUsername,
		pc.PlexEmail,
		pc.PlexToken,
	); err != nil {
		return fmt.Errorf("save plex connection: %w", err)
	}
	return nil
}

func (r *repository) UpsertIPTVConnection(
	ctx context.Context,
	ic *IPTVConnection,
) error {
	query := `
		INSERT INTO iptv_connections (user_id, provider_name, connection_type,
		                              m3u_url, xtream_host, xtream_username,
		                              xtream_password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET provider_name = EXCLUDED.provider_name,
		    connection_type = EXCLUDED.connection_type,
		    m3u_url = EXCLUDED.m3u_url,
		    xtream_host = EXCLUDED.xtream_host,
		    xtream_username = EXCLUDED.xtream_username,
		    xtream_password = EXCLUDED.xtream_password,
		    updated_at = NOW()
		RETURNING updated_at`

	if err := r.db.GetContext(ctx, &ic.UpdatedAt, query,
		ic.UserID,
		ic.ProviderName,
		ic.ConnectionType,
		ic.M3UURL,
		ic.XtreamHost,
		ic.XtreamUsername,
		ic.XtreamPassword,
	); err != nil {
		return fmt.Errorf("save iptv connection: %w", err)
	}
	return nil
}
