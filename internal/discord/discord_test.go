package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/features/reputation"
)

const testGuild = "111"

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	svc, err := reputation.NewService(
		reputation.NewMemoryStore(),
		reputation.NewEmojiTable(map[string]int{"🏆": 1, "kekw:42": 5}),
		reputation.RateLimitConfig{DailyLimit: 5, PerRecipientLimit: 1, Window: 24 * time.Hour},
		clockwork.NewFakeClock(),
	)
	require.NoError(t, err)
	return &Bot{service: svc, opts: Options{LeaderboardSize: 10}, ctx: context.Background()}
}

func TestTrackReaction(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	ev := reactionEvent{GuildID: testGuild, MessageID: "m1", GrantorID: "a", RecipientID: "r", Emoji: "kekw:42"}
	assert.True(t, b.trackReaction(ctx, ev))
	assert.False(t, b.trackReaction(ctx, ev), "повторная доставка")

	self := ev
	self.MessageID, self.RecipientID = "m2", "a"
	assert.False(t, b.trackReaction(ctx, self))

	botTarget := ev
	botTarget.MessageID, botTarget.RecipientIsBot = "m3", true
	assert.False(t, b.trackReaction(ctx, botTarget))

	botGrantor := ev
	botGrantor.MessageID, botGrantor.GrantorIsBot = "m4", true
	assert.False(t, b.trackReaction(ctx, botGrantor))

	unknown := ev
	unknown.MessageID, unknown.Emoji = "m5", "👍"
	assert.False(t, b.trackReaction(ctx, unknown))

	assert.Equal(t, "⭐ Репутация <@r>: 5 очков", b.show(ctx, testGuild, "r"))

	b.untrackReaction(ctx, testGuild, "m1", "a", "kekw:42")
	assert.Equal(t, "⭐ Репутация <@r>: 0 очков", b.show(ctx, testGuild, "r"))
}

func giveOptions(user string, amount float64, reason string) []*discordgo.ApplicationCommandInteractionDataOption {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: user},
		{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: amount},
	}
	if reason != "" {
		opts = append(opts, &discordgo.ApplicationCommandInteractionDataOption{
			Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: reason,
		})
	}
	return opts
}

func TestGive(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	assert.Equal(t, "⛔ Начислять репутацию вручную могут только администраторы",
		b.give(ctx, testGuild, "admin", "i1", false, giveOptions("r", 3, ""), nil))

	assert.Equal(t, "✅ <@r>: +3 очка (всего 3 очка)",
		b.give(ctx, testGuild, "admin", "i2", true, giveOptions("r", 3, "за помощь"), nil))

	// Лимит на получателя — 1 в окне
	assert.Equal(t, reputation.ReasonText(reputation.ReasonPerRecipientLimit),
		b.give(ctx, testGuild, "admin", "i3", true, giveOptions("r", 1, ""), nil))

	assert.Equal(t, reputation.ReasonText(reputation.ReasonSelfAward),
		b.give(ctx, testGuild, "admin", "i4", true, giveOptions("admin", 1, ""), nil))

	resolved := &discordgo.ApplicationCommandInteractionDataResolved{
		Users: map[string]*discordgo.User{"robot": {ID: "robot", Bot: true}},
	}
	assert.Equal(t, reputation.ReasonText(reputation.ReasonBotTarget),
		b.give(ctx, testGuild, "admin", "i5", true, giveOptions("robot", 1, ""), resolved))

	assert.Equal(t, "🏆 Топ по репутации:\n1. <@r>: 3 очка", b.top(ctx, testGuild))
}

func TestGive_RedeliveredInteraction(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	assert.Equal(t, "✅ <@r>: +2 очка (всего 2 очка)",
		b.give(ctx, testGuild, "admin", "interaction-1", true, giveOptions("r", 2, ""), nil))
	assert.Equal(t, reputation.DuplicateText,
		b.give(ctx, testGuild, "admin", "interaction-1", true, giveOptions("r", 2, ""), nil))

	assert.Equal(t, "⭐ Репутация <@r>: 2 очка", b.show(ctx, testGuild, "r"))
}

func TestParseGiveArgs(t *testing.T) {
	args, err := parseGiveArgs(giveOptions("42", -7, "  спам  "), nil)
	require.NoError(t, err)
	assert.Equal(t, giveArgs{RecipientID: "42", Amount: -7, Reason: "спам"}, args)

	_, err = parseGiveArgs(nil, nil)
	assert.Error(t, err)
}

func TestIsAdministrator(t *testing.T) {
	assert.True(t, isAdministrator(&discordgo.Member{Permissions: discordgo.PermissionAdministrator | discordgo.PermissionSendMessages}))
	assert.False(t, isAdministrator(&discordgo.Member{Permissions: discordgo.PermissionSendMessages}))
	assert.False(t, isAdministrator(nil))
}

func TestIsDuplicateCommandError(t *testing.T) {
	assert.True(t, isDuplicateCommandError(&discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: 50035, Message: "Application command already exists"},
	}))
	assert.True(t, isDuplicateCommandError(errors.New("HTTP 400: 50035 command already exists")))
	assert.False(t, isDuplicateCommandError(errors.New("HTTP 401 Unauthorized")))
}
