package reputation

import (
	"context"
	"time"
)

// Store — постоянное хранилище событий репутации и лога лимитов.
// Итоги всегда пересчитываются из событий, кэша нет.
type Store interface {
	// RecordReaction вставляет событие; повтор ключа (guild, message, grantor) молча игнорируется.
	// inserted=false означает, что событие уже было.
	RecordReaction(ctx context.Context, e *Event) (inserted bool, err error)
	// RemoveReaction удаляет событие с этим ключом и тегом; отсутствие события — не ошибка.
	RemoveReaction(ctx context.Context, guildID, messageID, grantorID, source string) (removed bool, err error)
	// TotalFor — сумма очков пользователя в сообществе; 0, если событий нет.
	TotalFor(ctx context.Context, guildID, userID string) (int64, error)
	// Leaderboard — получатели по убыванию суммы, не больше limit.
	Leaderboard(ctx context.Context, guildID string, limit int) ([]LeaderboardEntry, error)
	// HasReceivedAny — есть ли у пользователя хоть одно событие с тегом из sources.
	HasReceivedAny(ctx context.Context, guildID, userID string, sources []string) (bool, error)
	// InGrantorTx выполняет fn атомарно и последовательно для пары (guild, grantor):
	// два конкурентных начисления одного дарителя не увидят устаревший счётчик.
	InGrantorTx(ctx context.Context, guildID, grantorID string, fn func(tx GrantTx) error) error
	// PruneRateLimitLog удаляет записи лога лимитов старше before.
	PruneRateLimitLog(ctx context.Context, before time.Time) (int64, error)
}

// GrantCounter — то, что нужно Limiter для подсчёта выдач в окне.
type GrantCounter interface {
	// CountGrants — выдачи дарителя с момента since (строго после).
	CountGrants(ctx context.Context, guildID, grantorID string, since time.Time) (int, error)
	// CountGrantsTo — выдачи дарителя конкретному получателю с момента since.
	CountGrantsTo(ctx context.Context, guildID, grantorID, recipientID string, since time.Time) (int, error)
}

// GrantTx — операции внутри транзакции начисления.
type GrantTx interface {
	GrantCounter
	InsertRateLimitRecord(ctx context.Context, r *RateLimitRecord) error
	InsertEvent(ctx context.Context, e *Event) (inserted bool, err error)
	TotalFor(ctx context.Context, guildID, userID string) (int64, error)
}
