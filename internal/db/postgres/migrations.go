package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// SQL-миграции встроены в код для упрощения деплоя.
// Порядок важен: версии применяются по возрастанию и никогда не переписываются.
var migrations = []struct {
	version int
	sql     string
}{
	{1, migration001Events},
	{2, migration002RateLimits},
}

var migration001Events = `
CREATE TABLE IF NOT EXISTS reputation_events (
    guild_id     TEXT NOT NULL,
    message_id   TEXT NOT NULL,
    grantor_id   TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    source       TEXT NOT NULL,
    amount       INTEGER NOT NULL,
    reason       TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (guild_id, message_id, grantor_id)
);
CREATE INDEX IF NOT EXISTS idx_reputation_events_recipient ON reputation_events(guild_id, recipient_id);
`

var migration002RateLimits = `
CREATE TABLE IF NOT EXISTS reputation_rate_limits (
    guild_id     TEXT NOT NULL,
    grantor_id   TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (guild_id, grantor_id, recipient_id, created_at)
);
CREATE INDEX IF NOT EXISTS idx_reputation_rate_limits_window
    ON reputation_rate_limits(guild_id, grantor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reputation_rate_limits_created_at
    ON reputation_rate_limits(created_at);
`

// Migrate применяет все SQL-миграции, которых ещё нет в schema_migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.version, m.sql)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		if applied {
			log.Infof("Миграция %d применена", m.version)
		}
	}
	return nil
}
