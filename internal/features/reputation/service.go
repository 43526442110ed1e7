// Package reputation — service.go содержит бизнес-логику журнала репутации:
// идемпотентные реакции, ручные начисления с лимитами и агрегаты.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/metrics"
)

// MaxLeaderboardSize — верхняя граница размера лидерборда за один запрос.
const MaxLeaderboardSize = 100

// errDenied откатывает транзакцию начисления при отказе по лимиту.
var errDenied = errors.New("отказ по лимиту")

// Service — фасад журнала репутации.
type Service struct {
	store   Store
	emoji   EmojiTable
	limiter *Limiter
	clock   clockwork.Clock
}

// NewService создаёт сервис. Таблица эмодзи и политика лимитов передаются
// готовыми неизменяемыми значениями.
func NewService(store Store, emoji EmojiTable, limits RateLimitConfig, clock clockwork.Clock) (*Service, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("политика лимитов: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:   store,
		emoji:   emoji,
		limiter: NewLimiter(limits),
		clock:   clock,
	}, nil
}

// Emoji возвращает таблицу эмодзи сервиса.
func (s *Service) Emoji() EmojiTable { return s.emoji }

// Limits возвращает политику лимитов.
func (s *Service) Limits() RateLimitConfig { return s.limiter.Config() }

// TrackReactionAward учитывает добавленную реакцию.
// Эмодзи без очков молча игнорируется, повторная доставка не удваивает счёт.
func (s *Service) TrackReactionAward(ctx context.Context, guildID, messageID, recipientID, grantorID, emoji string) (TrackResult, error) {
	points, ok := s.emoji.Points(emoji)
	if !ok {
		metrics.ReactionsTotal.WithLabelValues("track", "ignored").Inc()
		return TrackResult{Reason: ReasonUnknownEmoji}, nil
	}

	inserted, err := s.store.RecordReaction(ctx, &Event{
		GuildID:     guildID,
		MessageID:   messageID,
		GrantorID:   grantorID,
		RecipientID: recipientID,
		Source:      emoji,
		Amount:      points,
		CreatedAt:   s.clock.Now().UTC(),
	})
	if err != nil {
		metrics.ReactionsTotal.WithLabelValues("track", "error").Inc()
		return TrackResult{}, storeErr("запись реакции", err)
	}

	if !inserted {
		metrics.ReactionsTotal.WithLabelValues("track", "duplicate").Inc()
		log.WithFields(log.Fields{
			"guild":   guildID,
			"message": messageID,
			"grantor": grantorID,
		}).Debug("Реакция уже учтена")
		return TrackResult{Points: points}, nil
	}

	metrics.ReactionsTotal.WithLabelValues("track", "tracked").Inc()
	return TrackResult{Tracked: true, Points: points}, nil
}

// UntrackReactionAward снимает реакцию. Отсутствующее событие — не ошибка.
func (s *Service) UntrackReactionAward(ctx context.Context, guildID, messageID, grantorID, emoji string) error {
	removed, err := s.store.RemoveReaction(ctx, guildID, messageID, grantorID, emoji)
	if err != nil {
		metrics.ReactionsTotal.WithLabelValues("untrack", "error").Inc()
		return storeErr("удаление реакции", err)
	}
	if removed {
		metrics.ReactionsTotal.WithLabelValues("untrack", "removed").Inc()
	} else {
		metrics.ReactionsTotal.WithLabelValues("untrack", "absent").Inc()
	}
	return nil
}

// AwardReputation — ручное начисление.
// Порядок проверок: самонаграда, бот, ноль, повтор ReferenceID, лимиты.
// Отказ и повтор возвращаются в AwardResult, error — только сбой хранилища.
func (s *Service) AwardReputation(ctx context.Context, req AwardRequest) (AwardResult, error) {
	logger := log.WithFields(log.Fields{
		"guild":     req.GuildID,
		"grantor":   req.GrantorID,
		"recipient": req.RecipientID,
		"amount":    req.Amount,
	})

	if reason := precheck(req); reason != ReasonNone {
		metrics.AwardsTotal.WithLabelValues(string(reason)).Inc()
		logger.WithField("reason", reason).Debug("Начисление отклонено")
		return AwardResult{Reason: reason}, nil
	}

	source := req.Source
	if source == "" {
		source = SourceManual
	}
	messageID := req.ReferenceID
	if messageID == "" {
		messageID = SourceManual + ":" + uuid.NewString()
	}

	var (
		result   AwardResult
		decision Decision
	)
	err := s.store.InGrantorTx(ctx, req.GuildID, req.GrantorID, func(tx GrantTx) error {
		now := s.clock.Now().UTC()

		inserted, err := tx.InsertEvent(ctx, &Event{
			GuildID:     req.GuildID,
			MessageID:   messageID,
			GrantorID:   req.GrantorID,
			RecipientID: req.RecipientID,
			Source:      source,
			Amount:      req.Amount,
			Reason:      req.Reason,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		// Повтор той же команды (тот же ReferenceID): ни очков, ни расхода лимита
		if !inserted {
			total, err := tx.TotalFor(ctx, req.GuildID, req.RecipientID)
			if err != nil {
				return err
			}
			result = AwardResult{Duplicate: true, NewTotal: total}
			return nil
		}

		decision, err = s.limiter.Check(ctx, tx, req.GuildID, req.GrantorID, req.RecipientID, now)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			// Откатываем только что вставленное событие
			return errDenied
		}

		if err := tx.InsertRateLimitRecord(ctx, &RateLimitRecord{
			GuildID:     req.GuildID,
			GrantorID:   req.GrantorID,
			RecipientID: req.RecipientID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		total, err := tx.TotalFor(ctx, req.GuildID, req.RecipientID)
		if err != nil {
			return err
		}
		result = AwardResult{Awarded: true, NewTotal: total}
		return nil
	})
	switch {
	case errors.Is(err, errDenied):
		metrics.AwardsTotal.WithLabelValues(string(decision.Reason)).Inc()
		logger.WithFields(log.Fields{
			"reason": decision.Reason,
			"used":   decision.Used,
		}).Debug("Начисление отклонено лимитом")
		return AwardResult{Reason: decision.Reason}, nil
	case err != nil:
		metrics.AwardsTotal.WithLabelValues("error").Inc()
		return AwardResult{}, storeErr("ручное начисление", err)
	case result.Duplicate:
		metrics.AwardsTotal.WithLabelValues("duplicate").Inc()
		logger.WithField("reference", messageID).Debug("Начисление уже учтено")
		return result, nil
	}

	metrics.AwardsTotal.WithLabelValues("awarded").Inc()
	logger.WithField("total", result.NewTotal).Info("Репутация начислена")
	return result, nil
}

// GetUserTotal возвращает сумму очков пользователя (0, если событий нет).
func (s *Service) GetUserTotal(ctx context.Context, guildID, userID string) (int64, error) {
	total, err := s.store.TotalFor(ctx, guildID, userID)
	if err != nil {
		return 0, storeErr("итог пользователя", err)
	}
	return total, nil
}

// GetLeaderboard возвращает топ получателей, не больше limit.
// limit <= 0 даёт пустой список, limit больше MaxLeaderboardSize урезается.
func (s *Service) GetLeaderboard(ctx context.Context, guildID string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		return []LeaderboardEntry{}, nil
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	entries, err := s.store.Leaderboard(ctx, guildID, limit)
	if err != nil {
		return nil, storeErr("лидерборд", err)
	}
	return entries, nil
}

// HasReceivedAny проверяет, получал ли пользователь репутацию с одним из тегов.
func (s *Service) HasReceivedAny(ctx context.Context, guildID, userID string, sources []string) (bool, error) {
	ok, err := s.store.HasReceivedAny(ctx, guildID, userID, sources)
	if err != nil {
		return false, storeErr("проверка полученной репутации", err)
	}
	return ok, nil
}

// PruneRateLimitLog удаляет записи лога лимитов старше retention.
// retention меньше окна не допускается: иначе подсчёт лимитов занизится.
func (s *Service) PruneRateLimitLog(ctx context.Context, retention time.Duration) (int64, error) {
	if window := s.limiter.Config().Window; retention < window {
		retention = window
	}
	before := s.clock.Now().UTC().Add(-retention)
	pruned, err := s.store.PruneRateLimitLog(ctx, before)
	if err != nil {
		return 0, storeErr("очистка лога лимитов", err)
	}
	metrics.PrunedRecordsTotal.Add(float64(pruned))
	return pruned, nil
}

func precheck(req AwardRequest) Reason {
	switch {
	case req.RecipientID == req.GrantorID:
		return ReasonSelfAward
	case req.RecipientIsBot:
		return ReasonBotTarget
	case req.Amount == 0:
		return ReasonZeroAmount
	default:
		return ReasonNone
	}
}

// storeErr помечает сбой хранилища общей ошибкой, сохраняя исходную причину.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrStoreUnavailable, err)
}
