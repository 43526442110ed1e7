// Package reputation — handlers.go обрабатывает Telegram-команды репутации:
// «спасибо» в ответе, /rep от администратора, !карма и !топ.
package reputation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/common"
)

// SourceThanks — тег события, созданного благодарностью в Telegram.
const SourceThanks = "thanks"

// Sender отправляет сообщения в Telegram. *telego.Bot удовлетворяет интерфейсу.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Handler обрабатывает события репутации из Telegram.
type Handler struct {
	service         *Service
	sender          Sender
	leaderboardSize int
}

// NewHandler создаёт обработчик репутации.
func NewHandler(service *Service, sender Sender, leaderboardSize int) *Handler {
	return &Handler{service: service, sender: sender, leaderboardSize: leaderboardSize}
}

// HandleThankYou обрабатывает «спасибо» в ответе на сообщение: +1 автору.
// Повторная благодарность за то же сообщение не учитывается.
func (h *Handler) HandleThankYou(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return
	}
	guildID := common.ChatKey(msg.Chat.ID)
	recipient := msg.ReplyToMessage.From
	recipientID := common.ChatKey(recipient.ID)

	hadThanks, err := h.service.HasReceivedAny(ctx, guildID, recipientID, []string{SourceThanks})
	if err != nil {
		log.WithError(err).Warn("Не удалось проверить прошлые благодарности")
		hadThanks = true
	}

	res, err := h.service.AwardReputation(ctx, AwardRequest{
		GuildID:        guildID,
		RecipientID:    recipientID,
		GrantorID:      common.ChatKey(msg.From.ID),
		Amount:         1,
		RecipientIsBot: recipient.IsBot,
		Source:         SourceThanks,
		ReferenceID:    strconv.Itoa(msg.ReplyToMessage.MessageID),
	})
	if err != nil {
		log.WithError(err).Error("Ошибка начисления за благодарность")
		return
	}
	if res.Duplicate {
		return
	}
	if !res.Awarded {
		// Самоблагодарность и ботов молча игнорируем
		if res.Reason.Kind() == KindRateLimitExceeded {
			h.sendMessage(ctx, msg.Chat.ID, ReasonText(res.Reason))
		}
		return
	}

	text := fmt.Sprintf("⭐ %s получает +1 к репутации (всего %s)",
		displayName(recipient), common.FormatPoints(res.NewTotal))
	if !hadThanks {
		text += "\n🎉 Это первая благодарность!"
	}
	h.sendMessage(ctx, msg.Chat.ID, text)
}

// HandleAward — команда /rep <очки> [причина] в ответ на сообщение. Права проверяет роутер.
func (h *Handler) HandleAward(ctx context.Context, msg *telego.Message, args []string) {
	if msg.From == nil || msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		h.sendMessage(ctx, msg.Chat.ID, "ℹ️ Ответь командой /rep <очки> [причина] на сообщение участника")
		return
	}
	if len(args) == 0 {
		h.sendMessage(ctx, msg.Chat.ID, "ℹ️ Использование: /rep <очки> [причина]")
		return
	}
	amount, err := strconv.Atoi(args[0])
	if err != nil {
		h.sendMessage(ctx, msg.Chat.ID, "❌ Очки должны быть целым числом")
		return
	}

	recipient := msg.ReplyToMessage.From
	res, err := h.service.AwardReputation(ctx, AwardRequest{
		GuildID:        common.ChatKey(msg.Chat.ID),
		RecipientID:    common.ChatKey(recipient.ID),
		GrantorID:      common.ChatKey(msg.From.ID),
		Amount:         amount,
		Reason:         strings.Join(args[1:], " "),
		RecipientIsBot: recipient.IsBot,
		ReferenceID:    strconv.Itoa(msg.MessageID),
	})
	if err != nil {
		log.WithError(err).Error("Ошибка ручного начисления")
		h.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка начисления репутации")
		return
	}
	if res.Duplicate {
		h.sendMessage(ctx, msg.Chat.ID, DuplicateText)
		return
	}
	if !res.Awarded {
		h.sendMessage(ctx, msg.Chat.ID, ReasonText(res.Reason))
		return
	}
	h.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("✅ %s: %s (всего %s)",
		displayName(recipient), common.FormatPointsDelta(int64(amount)), common.FormatPoints(res.NewTotal)))
}

// HandleKarma — команда !карма. Показывает ТОЛЬКО свою репутацию в этом чате.
func (h *Handler) HandleKarma(ctx context.Context, chatID, userID int64) {
	total, err := h.service.GetUserTotal(ctx, common.ChatKey(chatID), common.ChatKey(userID))
	if err != nil {
		log.WithError(err).Error("Ошибка получения репутации")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения репутации")
		return
	}
	h.sendMessage(ctx, chatID, fmt.Sprintf("⭐ Твоя репутация: %s", common.FormatPoints(total)))
}

// HandleTop — команда !топ.
func (h *Handler) HandleTop(ctx context.Context, chatID int64) {
	entries, err := h.service.GetLeaderboard(ctx, common.ChatKey(chatID), h.leaderboardSize)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лидерборда")
		h.sendMessage(ctx, chatID, "❌ Ошибка получения лидерборда")
		return
	}
	h.sendMessage(ctx, chatID, FormatLeaderboard(entries, func(id string) string { return "id" + id }))
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.sender.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

func displayName(u *telego.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}
