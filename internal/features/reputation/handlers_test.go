package reputation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/common"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return &telego.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

const testChatID = int64(-100500)

func newTestHandler(t *testing.T) (*Handler, *fakeSender, *MemoryStore) {
	t.Helper()
	svc, store, _ := newTestService(t, RateLimitConfig{DailyLimit: 2, PerRecipientLimit: 1, Window: 24 * time.Hour})
	sender := &fakeSender{}
	return NewHandler(svc, sender, 10), sender, store
}

func reply(from, to *telego.User, messageID, repliedID int, text string) *telego.Message {
	return &telego.Message{
		MessageID: messageID,
		From:      from,
		Chat:      telego.Chat{ID: testChatID, Type: telego.ChatTypeSupergroup},
		Text:      text,
		ReplyToMessage: &telego.Message{
			MessageID: repliedID,
			From:      to,
			Chat:      telego.Chat{ID: testChatID, Type: telego.ChatTypeSupergroup},
		},
	}
}

func TestIsThankYou(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"спасибо", true},
		{"Спасибо!", true},
		{"  СПАСИБО)) ", true},
		{"+", true},
		{" + ", true},
		{"++", false},
		{"спасибо большое", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsThankYou(tt.text), tt.text)
	}
}

func TestHandleThankYou_AwardsOnceAndGreetsFirst(t *testing.T) {
	h, sender, store := newTestHandler(t)
	ctx := context.Background()
	alice := &telego.User{ID: 1, FirstName: "Alice", Username: "alice"}
	bob := &telego.User{ID: 2, FirstName: "Bob"}

	h.HandleThankYou(ctx, reply(bob, alice, 10, 5, "спасибо"))
	// Повторное «спасибо» на то же сообщение
	h.HandleThankYou(ctx, reply(bob, alice, 11, 5, "+"))

	assert.Equal(t, 1, store.EventCount())
	texts := sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "@alice")
	assert.Contains(t, texts[0], "первая благодарность")
	assert.Equal(t, 1, store.RateLimitRecordCount())
}

func TestHandleThankYou_ReplayIsSilentUnderLooseLimits(t *testing.T) {
	svc, store, _ := newTestService(t, RateLimitConfig{DailyLimit: 10, PerRecipientLimit: 3, Window: 24 * time.Hour})
	sender := &fakeSender{}
	h := NewHandler(svc, sender, 10)
	ctx := context.Background()
	alice := &telego.User{ID: 1, FirstName: "Alice", Username: "alice"}
	bob := &telego.User{ID: 2, FirstName: "Bob"}

	h.HandleThankYou(ctx, reply(bob, alice, 10, 5, "спасибо"))
	h.HandleThankYou(ctx, reply(bob, alice, 11, 5, "спасибо!"))

	assert.Equal(t, 1, store.EventCount())
	assert.Equal(t, 1, store.RateLimitRecordCount())
	texts := sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "всего 1")

	total, err := svc.GetUserTotal(ctx, common.ChatKey(testChatID), common.ChatKey(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestHandleThankYou_IgnoresSelfAndBots(t *testing.T) {
	h, sender, store := newTestHandler(t)
	ctx := context.Background()
	alice := &telego.User{ID: 1, FirstName: "Alice"}
	robot := &telego.User{ID: 3, FirstName: "Robot", IsBot: true}

	h.HandleThankYou(ctx, reply(alice, alice, 10, 5, "спасибо"))
	h.HandleThankYou(ctx, reply(alice, robot, 11, 6, "спасибо"))

	assert.Equal(t, 0, store.EventCount())
	assert.Empty(t, sender.texts())
}

func TestHandleThankYou_ReportsRateLimit(t *testing.T) {
	h, sender, _ := newTestHandler(t)
	ctx := context.Background()
	alice := &telego.User{ID: 1, FirstName: "Alice"}
	bob := &telego.User{ID: 2, FirstName: "Bob"}

	h.HandleThankYou(ctx, reply(bob, alice, 10, 5, "спасибо"))
	h.HandleThankYou(ctx, reply(bob, alice, 12, 7, "спасибо"))

	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, ReasonText(ReasonPerRecipientLimit), texts[1])
}

func TestHandleAward(t *testing.T) {
	h, sender, _ := newTestHandler(t)
	ctx := context.Background()
	admin := &telego.User{ID: 9, FirstName: "Admin"}
	bob := &telego.User{ID: 2, FirstName: "Bob", Username: "bob"}

	h.HandleAward(ctx, reply(admin, bob, 20, 5, "/rep -3 спам"), []string{"-3", "спам"})
	h.HandleAward(ctx, reply(admin, bob, 21, 6, "/rep abc"), []string{"abc"})
	h.HandleAward(ctx, reply(admin, bob, 22, 7, "/rep"), nil)

	texts := sender.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, "✅ @bob: -3 очка (всего -3 очка)", texts[0])
	assert.Equal(t, "❌ Очки должны быть целым числом", texts[1])
	assert.Contains(t, texts[2], "Использование")

	total, err := h.service.GetUserTotal(ctx, "-100500", "2")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), total)
}

func TestHandleAward_ReplayedCommand(t *testing.T) {
	h, sender, store := newTestHandler(t)
	ctx := context.Background()
	admin := &telego.User{ID: 9, FirstName: "Admin"}
	bob := &telego.User{ID: 2, FirstName: "Bob", Username: "bob"}

	cmd := reply(admin, bob, 30, 5, "/rep 2")
	h.HandleAward(ctx, cmd, []string{"2"})
	h.HandleAward(ctx, cmd, []string{"2"})

	assert.Equal(t, 1, store.EventCount())
	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "✅ @bob: +2 очка (всего 2 очка)", texts[0])
	assert.Equal(t, DuplicateText, texts[1])
}

func TestHandleAward_RequiresReply(t *testing.T) {
	h, sender, store := newTestHandler(t)
	msg := &telego.Message{
		MessageID: 1,
		From:      &telego.User{ID: 9},
		Chat:      telego.Chat{ID: testChatID},
		Text:      "/rep 5",
	}

	h.HandleAward(context.Background(), msg, []string{"5"})

	assert.Equal(t, 0, store.EventCount())
	require.Len(t, sender.texts(), 1)
}

func TestHandleKarmaAndTop(t *testing.T) {
	h, sender, _ := newTestHandler(t)
	ctx := context.Background()
	alice := &telego.User{ID: 1, FirstName: "Alice"}
	bob := &telego.User{ID: 2, FirstName: "Bob"}

	h.HandleKarma(ctx, testChatID, 1)
	h.HandleThankYou(ctx, reply(bob, alice, 10, 5, "спасибо"))
	h.HandleKarma(ctx, testChatID, 1)
	h.HandleTop(ctx, testChatID)

	texts := sender.texts()
	require.Len(t, texts, 4)
	assert.Equal(t, "⭐ Твоя репутация: 0 очков", texts[0])
	assert.Equal(t, "⭐ Твоя репутация: 1 очко", texts[2])
	assert.Equal(t, "🏆 Топ по репутации:\n1. id1: 1 очко", texts[3])
}

func TestFormatLeaderboard_Empty(t *testing.T) {
	assert.Equal(t, "🏆 Пока никто не получил репутацию", FormatLeaderboard(nil, func(id string) string { return id }))
}
