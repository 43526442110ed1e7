// Package reputation — repository.go выполняет операции с таблицами
// reputation_events и reputation_rate_limits в PostgreSQL.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reputation-bot/internal/db/postgres"
	"serotonyl.ru/reputation-bot/internal/metrics"
)

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository — реализация Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий репутации.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// RecordReaction вставляет событие. ON CONFLICT DO NOTHING делает повторную доставку безопасной.
func (r *Repository) RecordReaction(ctx context.Context, e *Event) (bool, error) {
	defer metrics.ObserveStore("record_reaction", time.Now())
	return insertEvent(ctx, r.db, e)
}

// RemoveReaction удаляет событие, если оно есть.
func (r *Repository) RemoveReaction(ctx context.Context, guildID, messageID, grantorID, source string) (bool, error) {
	defer metrics.ObserveStore("remove_reaction", time.Now())
	query := `
		DELETE FROM reputation_events
		WHERE guild_id = $1 AND message_id = $2 AND grantor_id = $3 AND source = $4
	`
	tag, err := r.db.Exec(ctx, query, guildID, messageID, grantorID, source)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления события репутации: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TotalFor возвращает сумму очков пользователя.
func (r *Repository) TotalFor(ctx context.Context, guildID, userID string) (int64, error) {
	defer metrics.ObserveStore("total_for", time.Now())
	return totalFor(ctx, r.db, guildID, userID)
}

// Leaderboard возвращает топ получателей по сумме очков.
func (r *Repository) Leaderboard(ctx context.Context, guildID string, limit int) ([]LeaderboardEntry, error) {
	defer metrics.ObserveStore("leaderboard", time.Now())
	query := `
		SELECT recipient_id, SUM(amount)::BIGINT AS total
		FROM reputation_events
		WHERE guild_id = $1
		GROUP BY recipient_id
		ORDER BY total DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лидерборда: %w", err)
	}
	defer rows.Close()

	entries := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Total); err != nil {
			return nil, fmt.Errorf("ошибка сканирования лидерборда: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения лидерборда: %w", err)
	}
	return entries, nil
}

// HasReceivedAny проверяет, получал ли пользователь репутацию с одним из тегов.
func (r *Repository) HasReceivedAny(ctx context.Context, guildID, userID string, sources []string) (bool, error) {
	defer metrics.ObserveStore("has_received_any", time.Now())
	if len(sources) == 0 {
		return false, nil
	}
	query := `
		SELECT EXISTS(
			SELECT 1 FROM reputation_events
			WHERE guild_id = $1 AND recipient_id = $2 AND source = ANY($3)
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, guildID, userID, sources).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки событий: %w", err)
	}
	return exists, nil
}

// InGrantorTx открывает транзакцию и берёт advisory-блокировку на пару (guild, grantor).
// Блокировка транзакционная: освобождается на Commit/Rollback.
func (r *Repository) InGrantorTx(ctx context.Context, guildID, grantorID string, fn func(tx GrantTx) error) error {
	defer metrics.ObserveStore("grantor_tx", time.Now())
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, guildID+":"+grantorID,
		); err != nil {
			return fmt.Errorf("ошибка блокировки дарителя: %w", err)
		}
		return fn(&grantTx{tx: tx})
	})
}

// PruneRateLimitLog удаляет устаревшие записи лога лимитов.
func (r *Repository) PruneRateLimitLog(ctx context.Context, before time.Time) (int64, error) {
	defer metrics.ObserveStore("prune_rate_limits", time.Now())
	tag, err := r.db.Exec(ctx, `DELETE FROM reputation_rate_limits WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки лога лимитов: %w", err)
	}
	return tag.RowsAffected(), nil
}

// grantTx — операции начисления внутри одной транзакции.
type grantTx struct {
	tx pgx.Tx
}

func (g *grantTx) CountGrants(ctx context.Context, guildID, grantorID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM reputation_rate_limits
		WHERE guild_id = $1 AND grantor_id = $2 AND created_at > $3
	`
	var count int
	if err := g.tx.QueryRow(ctx, query, guildID, grantorID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта выдач: %w", err)
	}
	return count, nil
}

func (g *grantTx) CountGrantsTo(ctx context.Context, guildID, grantorID, recipientID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM reputation_rate_limits
		WHERE guild_id = $1 AND grantor_id = $2 AND recipient_id = $3 AND created_at > $4
	`
	var count int
	if err := g.tx.QueryRow(ctx, query, guildID, grantorID, recipientID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта выдач получателю: %w", err)
	}
	return count, nil
}

// InsertRateLimitRecord пишет запись лога. Совпадение ключа до микросекунды не считается ошибкой.
func (g *grantTx) InsertRateLimitRecord(ctx context.Context, rec *RateLimitRecord) error {
	query := `
		INSERT INTO reputation_rate_limits (guild_id, grantor_id, recipient_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	if _, err := g.tx.Exec(ctx, query, rec.GuildID, rec.GrantorID, rec.RecipientID, rec.CreatedAt); err != nil {
		return fmt.Errorf("ошибка записи лога лимитов: %w", err)
	}
	return nil
}

func (g *grantTx) InsertEvent(ctx context.Context, e *Event) (bool, error) {
	return insertEvent(ctx, g.tx, e)
}

func (g *grantTx) TotalFor(ctx context.Context, guildID, userID string) (int64, error) {
	return totalFor(ctx, g.tx, guildID, userID)
}

func insertEvent(ctx context.Context, q querier, e *Event) (bool, error) {
	query := `
		INSERT INTO reputation_events
			(guild_id, message_id, grantor_id, recipient_id, source, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (guild_id, message_id, grantor_id) DO NOTHING
	`
	tag, err := q.Exec(ctx, query,
		e.GuildID, e.MessageID, e.GrantorID, e.RecipientID,
		e.Source, e.Amount, e.Reason, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка записи события репутации: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func totalFor(ctx context.Context, q querier, guildID, userID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::BIGINT
		FROM reputation_events
		WHERE guild_id = $1 AND recipient_id = $2
	`
	var total int64
	if err := q.QueryRow(ctx, query, guildID, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта репутации: %w", err)
	}
	return total, nil
}
