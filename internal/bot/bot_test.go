package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/bot/filters"
	"serotonyl.ru/reputation-bot/internal/bot/middleware"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/features/reputation"
)

func TestCommandParser_ParseCommand(t *testing.T) {
	p := NewCommandParser()

	tests := []struct {
		name      string
		text      string
		wantCmd   string
		wantArgs  []string
		isCommand bool
	}{
		{name: "bang prefix", text: "!карма", wantCmd: "карма", isCommand: true},
		{name: "dot prefix upper", text: ".ТОП", wantCmd: "топ", isCommand: true},
		{name: "slash with args", text: "/rep 5 за помощь", wantCmd: "rep", wantArgs: []string{"5", "за", "помощь"}, isCommand: true},
		{name: "bot mention", text: "/rep@rep_bot -2", wantCmd: "rep", wantArgs: []string{"-2"}, isCommand: true},
		{name: "spaces", text: "  !  топ  ", wantCmd: "топ", isCommand: true},
		{name: "plain text", text: "спасибо"},
		{name: "prefix only", text: "!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.isCommand, ok)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

type fakeAPI struct {
	mu      sync.Mutex
	texts   []string
	updates chan telego.Update
}

func (f *fakeAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, params.Text)
	return &telego.Message{}, nil
}

func (f *fakeAPI) UpdatesViaLongPolling(context.Context, *telego.GetUpdatesParams, ...telego.LongPollingOption) (<-chan telego.Update, error) {
	return f.updates, nil
}

func (f *fakeAPI) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

const adminID = 9

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *reputation.MemoryStore) {
	t.Helper()
	store := reputation.NewMemoryStore()
	svc, err := reputation.NewService(store, reputation.NewEmojiTable(nil),
		reputation.RateLimitConfig{DailyLimit: 10, PerRecipientLimit: 10, Window: 24 * time.Hour},
		clockwork.NewFakeClock())
	require.NoError(t, err)

	rl := middleware.NewRateLimiter(100, time.Minute, clockwork.NewFakeClock())
	t.Cleanup(rl.Close)

	api := &fakeAPI{updates: make(chan telego.Update)}
	cfg := &config.Config{AdminIDs: []int64{adminID}, BotMaxInflight: 1, BotUpdateTimeoutSeconds: 1}
	b := New(api, cfg, reputation.NewHandler(svc, api, 10), filters.NewChatFilter(nil), rl)
	return b, api, store
}

func repCommand(fromID int64, messageID int) telego.Update {
	return telego.Update{Message: &telego.Message{
		MessageID: messageID,
		Chat:      telego.Chat{ID: -100, Type: telego.ChatTypeSupergroup},
		From:      &telego.User{ID: fromID, FirstName: "grantor"},
		Text:      "/rep 5 за помощь",
		ReplyToMessage: &telego.Message{
			MessageID: 1,
			From:      &telego.User{ID: 77, FirstName: "Петя"},
		},
	}}
}

func TestRouteCommand_RepRequiresAdmin(t *testing.T) {
	b, api, store := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, repCommand(42, 10))
	assert.Equal(t, 0, store.EventCount())
	require.Len(t, api.sent(), 1)
	assert.Contains(t, api.sent()[0], "⛔")

	b.handleUpdate(ctx, repCommand(adminID, 11))
	assert.Equal(t, 1, store.EventCount())
	require.Len(t, api.sent(), 2)
	assert.Contains(t, api.sent()[1], "✅")

	// Повторная доставка той же команды
	b.handleUpdate(ctx, repCommand(adminID, 11))
	assert.Equal(t, 1, store.EventCount())
	require.Len(t, api.sent(), 3)
	assert.Equal(t, reputation.DuplicateText, api.sent()[2])
}

func TestStart_StopsWhileInflightIsFull(t *testing.T) {
	b, api, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Единственный слот занят
	b.inflight <- struct{}{}

	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	api.updates <- repCommand(adminID, 12)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start не завершился после отмены контекста")
	}
}
