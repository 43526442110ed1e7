package reputation

import (
	"context"
	"fmt"
	"time"
)

// RateLimitConfig — политика лимитов. Загружается один раз при старте.
type RateLimitConfig struct {
	// DailyLimit — максимум выдач одного дарителя за окно.
	DailyLimit int
	// PerRecipientLimit — максимум выдач одному получателю за окно.
	PerRecipientLimit int
	// Window — длина скользящего окна (часы, не календарные сутки).
	Window time.Duration
}

// Validate проверяет, что политика осмысленна.
func (c RateLimitConfig) Validate() error {
	if c.DailyLimit <= 0 {
		return fmt.Errorf("daily limit must be > 0, got %d", c.DailyLimit)
	}
	if c.PerRecipientLimit <= 0 {
		return fmt.Errorf("per-recipient limit must be > 0, got %d", c.PerRecipientLimit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %s", c.Window)
	}
	return nil
}

// Decision — результат проверки лимитов.
type Decision struct {
	Allowed bool
	Reason  Reason // ReasonDailyLimit или ReasonPerRecipientLimit при отказе
	// Used — сколько выдач уже учтено по сработавшему (или общему) лимиту.
	Used int
}

// Limiter решает, может ли даритель начислить репутацию прямо сейчас.
// Окно скользящее: учитываются записи с created_at > now - Window.
type Limiter struct {
	cfg RateLimitConfig
}

// NewLimiter создаёт ограничитель с заданной политикой.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	return &Limiter{cfg: cfg}
}

// Config возвращает политику ограничителя.
func (l *Limiter) Config() RateLimitConfig { return l.cfg }

// Check проверяет сначала общий лимит дарителя, затем лимит на конкретного получателя.
// Вызывать внутри Store.InGrantorTx, чтобы проверка и запись были одной транзакцией.
func (l *Limiter) Check(ctx context.Context, q GrantCounter, guildID, grantorID, recipientID string, now time.Time) (Decision, error) {
	since := now.Add(-l.cfg.Window)

	total, err := q.CountGrants(ctx, guildID, grantorID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("подсчёт выдач дарителя: %w", err)
	}
	if total >= l.cfg.DailyLimit {
		return Decision{Reason: ReasonDailyLimit, Used: total}, nil
	}

	toRecipient, err := q.CountGrantsTo(ctx, guildID, grantorID, recipientID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("подсчёт выдач получателю: %w", err)
	}
	if toRecipient >= l.cfg.PerRecipientLimit {
		return Decision{Reason: ReasonPerRecipientLimit, Used: toRecipient}, nil
	}

	return Decision{Allowed: true, Used: total}, nil
}
