package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const (
	CommandRep = "rep"

	SubcommandGive = "give"
	SubcommandShow = "show"
	SubcommandTop  = "top"
)

var (
	minAmount = float64(-1000)
	maxAmount = float64(1000)
)

var commandDefinitions = []*discordgo.ApplicationCommand{
	{
		Name:        CommandRep,
		Description: "Репутация участников сервера",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubcommandGive,
				Description: "Начислить или списать репутацию (админы)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Кому",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "amount",
						Description: "Сколько очков (может быть отрицательным)",
						Required:    true,
						MinValue:    &minAmount,
						MaxValue:    maxAmount,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "reason",
						Description: "За что",
						MaxLength:   200,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubcommandShow,
				Description: "Показать репутацию участника",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Чью (по умолчанию твою)",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        SubcommandTop,
				Description: "Лидерборд сервера",
			},
		},
	},
}

// RegisterSlashCommands регистрирует команды в гильдии guildID
// или глобально, если guildID пуст.
func RegisterSlashCommands(s *discordgo.Session, guildID string) error {
	var failures []string
	for _, definition := range commandDefinitions {
		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition)
		if err != nil {
			if isDuplicateCommandError(err) {
				log.WithField("command", definition.Name).Debug("Slash-команда уже зарегистрирована")
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", definition.Name, err))
			log.WithError(err).WithField("command", definition.Name).Error("Не удалось зарегистрировать slash-команду")
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			msg := strings.ToLower(restErr.Message.Message)
			if strings.Contains(msg, "already exists") {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}

// giveArgs — разобранные опции /rep give.
type giveArgs struct {
	RecipientID    string
	RecipientIsBot bool
	Amount         int
	Reason         string
}

// parseGiveArgs читает опции подкоманды give. resolved может быть nil.
func parseGiveArgs(opts []*discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved) (giveArgs, error) {
	var args giveArgs
	for _, opt := range opts {
		switch opt.Name {
		case "user":
			args.RecipientID = optionUserID(opt)
			if resolved != nil {
				if u, ok := resolved.Users[args.RecipientID]; ok && u != nil {
					args.RecipientIsBot = u.Bot
				}
			}
		case "amount":
			args.Amount = int(opt.IntValue())
		case "reason":
			args.Reason = strings.TrimSpace(opt.StringValue())
		}
	}
	if args.RecipientID == "" {
		return giveArgs{}, fmt.Errorf("не указан получатель")
	}
	return args, nil
}

// optionUserID достаёт ID из опции типа User без обращения к API.
func optionUserID(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	if id, ok := opt.Value.(string); ok {
		return id
	}
	return ""
}
