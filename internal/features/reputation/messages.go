package reputation

import (
	"fmt"
	"strings"

	"serotonyl.ru/reputation-bot/internal/common"
)

// ReasonText возвращает текст отказа для пользователя.
func ReasonText(r Reason) string {
	switch r {
	case ReasonSelfAward:
		return "🙃 Самому себе репутацию не выдать"
	case ReasonBotTarget:
		return "🤖 Ботам репутация не нужна"
	case ReasonDailyLimit:
		return "⏳ Лимит выдачи репутации исчерпан, попробуй позже"
	case ReasonPerRecipientLimit:
		return "⏳ Этому участнику ты уже выдавал репутацию недавно"
	case ReasonZeroAmount:
		return "❌ Количество очков не может быть нулевым"
	case ReasonUnknownEmoji:
		return "❌ Эта реакция не приносит репутацию"
	default:
		return "❌ Не получилось выдать репутацию"
	}
}

// DuplicateText — ответ на повтор уже учтённой команды.
const DuplicateText = "ℹ️ Это начисление уже учтено"

// FormatLeaderboard рендерит лидерборд. name превращает ID пользователя в отображаемое имя.
func FormatLeaderboard(entries []LeaderboardEntry, name func(userID string) string) string {
	if len(entries) == 0 {
		return "🏆 Пока никто не получил репутацию"
	}
	var sb strings.Builder
	sb.WriteString("🏆 Топ по репутации:\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, name(e.UserID), common.FormatPoints(e.Total))
	}
	return strings.TrimRight(sb.String(), "\n")
}
