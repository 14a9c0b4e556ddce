// AngelaMos | 2026
// migrations.go

// Package migrations embeds the Record Store schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// upContext is swapped in tests so the embedded set can be checked without
// a live database.
var upContext = goose.UpContext

func Up(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return upContext(ctx, db, ".")
}
