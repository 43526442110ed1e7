// Package reputation реализует журнал репутации: начисления через реакции
// и команды администраторов, идемпотентность, лимиты в скользящем окне
// и подсчёт итогов/лидерборда.
// models.go описывает события, записи лимитов и результаты операций.
package reputation

import (
	"fmt"
	"time"

	"serotonyl.ru/reputation-bot/internal/common"
)

// SourceManual — тег события, созданного командой начисления.
const SourceManual = "manual"

// Event — одно начисление репутации.
// Ключ (GuildID, MessageID, GrantorID) уникален: один даритель — одно событие на сообщение.
type Event struct {
	GuildID     string    `db:"guild_id"`
	MessageID   string    `db:"message_id"`
	GrantorID   string    `db:"grantor_id"`
	RecipientID string    `db:"recipient_id"`
	Source      string    `db:"source"` // эмодзи или "manual"
	Amount      int       `db:"amount"` // может быть отрицательным (исправления админа)
	Reason      string    `db:"reason"`
	CreatedAt   time.Time `db:"created_at"`
}

// RateLimitRecord — запись о выдаче для подсчёта в скользящем окне.
type RateLimitRecord struct {
	GuildID     string    `db:"guild_id"`
	GrantorID   string    `db:"grantor_id"`
	RecipientID string    `db:"recipient_id"`
	CreatedAt   time.Time `db:"created_at"`
}

// LeaderboardEntry — строка лидерборда.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Total  int64  `json:"total"`
}

// Kind — класс отказа.
type Kind string

const (
	KindNone              Kind = ""
	KindInvalidTarget     Kind = "invalid_target"
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
	KindInvalidAmount     Kind = "invalid_amount"
	KindIgnored           Kind = "ignored"
)

// Reason — код причины отказа. Текст для пользователя формирует адаптер.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonSelfAward         Reason = "self_award"
	ReasonBotTarget         Reason = "bot_target"
	ReasonDailyLimit        Reason = "daily_limit"
	ReasonPerRecipientLimit Reason = "per_recipient_limit"
	ReasonZeroAmount        Reason = "zero_amount"
	ReasonUnknownEmoji      Reason = "unknown_emoji"
)

// Kind возвращает класс отказа для причины.
func (r Reason) Kind() Kind {
	switch r {
	case ReasonSelfAward, ReasonBotTarget:
		return KindInvalidTarget
	case ReasonDailyLimit, ReasonPerRecipientLimit:
		return KindRateLimitExceeded
	case ReasonZeroAmount:
		return KindInvalidAmount
	case ReasonUnknownEmoji:
		return KindIgnored
	default:
		return KindNone
	}
}

// Err сопоставляет причину с общей ошибкой, чтобы адаптер мог проверить её через errors.Is.
// Для ReasonNone возвращает nil.
func (r Reason) Err() error {
	var base error
	switch r.Kind() {
	case KindInvalidTarget:
		base = common.ErrInvalidTarget
	case KindRateLimitExceeded:
		base = common.ErrRateLimitExceeded
	case KindInvalidAmount:
		base = common.ErrInvalidAmount
	case KindIgnored:
		base = common.ErrUnknownEmoji
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", base, r)
}

// AwardRequest — запрос на ручное начисление.
type AwardRequest struct {
	GuildID     string
	RecipientID string
	GrantorID   string
	Amount      int
	Reason      string
	// RecipientIsBot заполняет адаптер: ядро доверяет флагу.
	RecipientIsBot bool
	// Source по умолчанию SourceManual.
	Source string
	// ReferenceID — идентификатор команды/сообщения; без него ключ генерируется.
	ReferenceID string
}

// AwardResult — итог ручного начисления. Отказ по политике — это данные, а не ошибка.
type AwardResult struct {
	Awarded bool
	// Duplicate — событие с этим ReferenceID уже есть, ничего не записано.
	Duplicate bool
	NewTotal  int64
	Reason    Reason
}

// TrackResult — итог обработки добавленной реакции.
type TrackResult struct {
	Tracked bool
	Points  int
	Reason  Reason
}
