package store

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect(s.dialect.goose()); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, "migrations/"+s.dialect.dir())
}
