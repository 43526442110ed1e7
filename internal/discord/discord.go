// Package discord — Discord-адаптер журнала репутации: реакции из таблицы
// эмодзи начисляют очки автору сообщения, /rep даёт ручное начисление и отчёты.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/bot/middleware"
	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/reputation"
)

const eventTimeout = 10 * time.Second

// Options — настройки адаптера.
type Options struct {
	Token string
	// Гильдия для регистрации slash-команд. Пусто — глобально.
	CommandGuildID  string
	LeaderboardSize int
}

// Bot — Discord-адаптер.
type Bot struct {
	session     *discordgo.Session
	service     *reputation.Service
	rateLimiter *middleware.RateLimiter
	opts        Options

	// базовый контекст событий, отменяется при Stop
	ctx    context.Context
	cancel context.CancelFunc
}

// New создаёт сессию и подписывает обработчики. Соединение открывает Start.
func New(service *reputation.Service, rateLimiter *middleware.RateLimiter, opts Options) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session:     dg,
		service:     service,
		rateLimiter: rateLimiter,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
	}

	dg.AddHandler(b.handleReady)
	dg.AddHandler(b.handleReactionAdd)
	dg.AddHandler(b.handleReactionRemove)
	dg.AddHandler(b.handleInteraction)

	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions
	dg.StateEnabled = true

	return b, nil
}

// Start открывает gateway-соединение.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	return nil
}

// Stop отменяет обработку событий и закрывает соединение.
func (b *Bot) Stop() error {
	b.cancel()
	return b.session.Close()
}

func (b *Bot) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	log.WithFields(log.Fields{
		"user":   event.User.Username,
		"guilds": len(event.Guilds),
		"emoji":  b.service.Emoji().Sources(),
	}).Info("Discord-бот подключён")

	if err := RegisterSlashCommands(s, b.opts.CommandGuildID); err != nil {
		log.WithError(err).Error("Регистрация slash-команд завершилась с ошибками")
	}
}

// reactionEvent — то, что адаптеру нужно знать о реакции.
type reactionEvent struct {
	GuildID        string
	MessageID      string
	GrantorID      string
	GrantorIsBot   bool
	RecipientID    string
	RecipientIsBot bool
	Emoji          string
}

func (b *Bot) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	defer middleware.RecoverFromPanic("discord")
	if r.GuildID == "" || r.UserID == s.State.User.ID {
		return
	}

	author, err := messageAuthor(s, r.ChannelID, r.MessageID)
	if err != nil {
		log.WithError(err).WithField("message", r.MessageID).Warn("Не удалось получить автора сообщения")
		return
	}

	ev := reactionEvent{
		GuildID:        r.GuildID,
		MessageID:      r.MessageID,
		GrantorID:      r.UserID,
		RecipientID:    author.ID,
		RecipientIsBot: author.Bot,
		Emoji:          r.Emoji.APIName(),
	}
	if r.Member != nil && r.Member.User != nil {
		ev.GrantorIsBot = r.Member.User.Bot
	}

	ctx, cancel := context.WithTimeout(b.ctx, eventTimeout)
	defer cancel()
	b.trackReaction(ctx, ev)
}

func (b *Bot) handleReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	defer middleware.RecoverFromPanic("discord")
	if r.GuildID == "" || r.UserID == s.State.User.ID {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, eventTimeout)
	defer cancel()
	b.untrackReaction(ctx, r.GuildID, r.MessageID, r.UserID, r.Emoji.APIName())
}

// trackReaction учитывает реакцию. Реакции ботов, на ботов и на свои сообщения игнорируются.
func (b *Bot) trackReaction(ctx context.Context, ev reactionEvent) bool {
	logger := log.WithFields(log.Fields{
		"guild":   ev.GuildID,
		"message": ev.MessageID,
		"grantor": ev.GrantorID,
		"emoji":   ev.Emoji,
	})
	if ev.GrantorIsBot || ev.RecipientIsBot || ev.GrantorID == ev.RecipientID {
		logger.Debug("Реакция проигнорирована")
		return false
	}

	res, err := b.service.TrackReactionAward(ctx, ev.GuildID, ev.MessageID, ev.RecipientID, ev.GrantorID, ev.Emoji)
	if err != nil {
		logger.WithError(err).Error("Ошибка учёта реакции")
		return false
	}
	if res.Tracked {
		logger.WithField("points", res.Points).Debug("Реакция учтена")
	}
	return res.Tracked
}

func (b *Bot) untrackReaction(ctx context.Context, guildID, messageID, grantorID, emoji string) {
	if err := b.service.UntrackReactionAward(ctx, guildID, messageID, grantorID, emoji); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild":   guildID,
			"message": messageID,
		}).Error("Ошибка снятия реакции")
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer middleware.RecoverFromPanic("discord")
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != CommandRep || len(data.Options) == 0 || i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, eventTimeout)
	defer cancel()

	caller := i.Member.User.ID
	var text string
	if !b.rateLimiter.Allow("discord:" + caller) {
		text = "⏳ Слишком много команд, подожди немного"
	} else {
		sub := data.Options[0]
		switch sub.Name {
		case SubcommandGive:
			text = b.give(ctx, i.GuildID, caller, i.ID, isAdministrator(i.Member), sub.Options, data.Resolved)
		case SubcommandShow:
			target := caller
			for _, opt := range sub.Options {
				if opt.Name == "user" {
					target = optionUserID(opt)
				}
			}
			text = b.show(ctx, i.GuildID, target)
		case SubcommandTop:
			text = b.top(ctx, i.GuildID)
		default:
			return
		}
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         text,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		log.WithError(err).Error("Не удалось ответить на slash-команду")
	}
}

// give — /rep give. refID (ID интеракции) делает повторную доставку той же команды no-op.
func (b *Bot) give(ctx context.Context, guildID, grantorID, refID string, admin bool,
	opts []*discordgo.ApplicationCommandInteractionDataOption,
	resolved *discordgo.ApplicationCommandInteractionDataResolved,
) string {
	if !admin {
		return "⛔ Начислять репутацию вручную могут только администраторы"
	}
	args, err := parseGiveArgs(opts, resolved)
	if err != nil {
		return "❌ " + err.Error()
	}

	res, err := b.service.AwardReputation(ctx, reputation.AwardRequest{
		GuildID:        guildID,
		RecipientID:    args.RecipientID,
		GrantorID:      grantorID,
		Amount:         args.Amount,
		Reason:         args.Reason,
		RecipientIsBot: args.RecipientIsBot,
		ReferenceID:    refID,
	})
	if err != nil {
		log.WithError(err).Error("Ошибка ручного начисления")
		return "❌ Ошибка начисления репутации"
	}
	if res.Duplicate {
		return reputation.DuplicateText
	}
	if !res.Awarded {
		return reputation.ReasonText(res.Reason)
	}
	return fmt.Sprintf("✅ %s: %s (всего %s)", mention(args.RecipientID),
		common.FormatPointsDelta(int64(args.Amount)), common.FormatPoints(res.NewTotal))
}

func (b *Bot) show(ctx context.Context, guildID, userID string) string {
	total, err := b.service.GetUserTotal(ctx, guildID, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения репутации")
		return "❌ Ошибка получения репутации"
	}
	return fmt.Sprintf("⭐ Репутация %s: %s", mention(userID), common.FormatPoints(total))
}

func (b *Bot) top(ctx context.Context, guildID string) string {
	entries, err := b.service.GetLeaderboard(ctx, guildID, b.opts.LeaderboardSize)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лидерборда")
		return "❌ Ошибка получения лидерборда"
	}
	return reputation.FormatLeaderboard(entries, mention)
}

// messageAuthor ищет автора в кэше состояния, затем через REST.
func messageAuthor(s *discordgo.Session, channelID, messageID string) (*discordgo.User, error) {
	if m, err := s.State.Message(channelID, messageID); err == nil && m.Author != nil {
		return m.Author, nil
	}
	m, err := s.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, err
	}
	if m.Author == nil {
		return nil, fmt.Errorf("message %s has no author", messageID)
	}
	return m.Author, nil
}

func isAdministrator(m *discordgo.Member) bool {
	return m != nil && m.Permissions&discordgo.PermissionAdministrator != 0
}

func mention(userID string) string {
	return "<@" + userID + ">"
}
