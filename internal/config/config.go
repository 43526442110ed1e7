// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"serotonyl.ru/reputation-bot/internal/common"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	// Чаты, где бот ведёт репутацию. Пусто — любые группы.
	TelegramAllowedChatsRaw string  `envconfig:"TELEGRAM_ALLOWED_CHATS"`
	TelegramAllowedChats    []int64 `envconfig:"-"`

	// --- Discord ---
	DiscordBotToken string `envconfig:"DISCORD_BOT_TOKEN"`
	// Гильдия, в которой регистрируются slash-команды. Пусто — глобальная регистрация.
	DiscordGuildID string `envconfig:"DISCORD_GUILD_ID"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"reputation"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Reputation ---
	// Формат: "🏆=1,⭐=2,kekw:1234567890=3". Ключ — эмодзи или name:id кастомного эмодзи Discord.
	RepEmojiPointsRaw  string         `envconfig:"REP_EMOJI_POINTS" default:"🏆=1"`
	RepEmojiPoints     map[string]int `envconfig:"-"`
	RepDailyLimit      int            `envconfig:"REP_DAILY_LIMIT" default:"5"`
	RepPerRecipient    int            `envconfig:"REP_PER_RECIPIENT_LIMIT" default:"1"`
	RepWindowHours     int            `envconfig:"REP_WINDOW_HOURS" default:"24"`
	RepLeaderboardSize int            `envconfig:"REP_LEADERBOARD_SIZE" default:"10"`
	// Сколько часов хранить записи лога лимитов. Не меньше окна, иначе подсчёт сломается.
	RepRateLogRetentionHours int    `envconfig:"REP_RATE_LOG_RETENTION_HOURS" default:"720"`
	RepPruneSchedule         string `envconfig:"REP_PRUNE_SCHEDULE" default:"30 3 * * *"`

	// --- HTTP ---
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// --- Rate Limiting (флуд команд) ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureTelegramEnabled bool `envconfig:"FEATURE_TELEGRAM_ENABLED" default:"true"`
	FeatureDiscordEnabled  bool `envconfig:"FEATURE_DISCORD_ENABLED" default:"true"`
	FeatureHTTPEnabled     bool `envconfig:"FEATURE_HTTP_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// RepWindow возвращает длину скользящего окна лимитов.
func (c *Config) RepWindow() time.Duration {
	return time.Duration(c.RepWindowHours) * time.Hour
}

// RepRateLogRetention возвращает срок хранения записей лога лимитов.
func (c *Config) RepRateLogRetention() time.Duration {
	return time.Duration(c.RepRateLogRetentionHours) * time.Hour
}

// IsAdmin проверяет, входит ли пользователь Telegram в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.FeatureTelegramEnabled && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не задан, а FEATURE_TELEGRAM_ENABLED=true")
	}
	if c.FeatureDiscordEnabled && c.DiscordBotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN не задан, а FEATURE_DISCORD_ENABLED=true")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.RepDailyLimit <= 0 || c.RepPerRecipient <= 0 {
		return fmt.Errorf("REP_DAILY_LIMIT и REP_PER_RECIPIENT_LIMIT должны быть > 0")
	}
	if c.RepWindowHours <= 0 {
		return fmt.Errorf("REP_WINDOW_HOURS должен быть > 0")
	}
	if c.RepRateLogRetentionHours < c.RepWindowHours {
		return fmt.Errorf("REP_RATE_LOG_RETENTION_HOURS (%d) меньше окна REP_WINDOW_HOURS (%d)",
			c.RepRateLogRetentionHours, c.RepWindowHours)
	}
	if c.RepLeaderboardSize <= 0 {
		return fmt.Errorf("REP_LEADERBOARD_SIZE должен быть > 0")
	}
	if _, err := cron.ParseStandard(c.RepPruneSchedule); err != nil {
		return fmt.Errorf("REP_PRUNE_SCHEDULE: %w", err)
	}
	if len(c.RepEmojiPoints) == 0 {
		return fmt.Errorf("REP_EMOJI_POINTS пуст: ни одна реакция не приносит репутацию")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := common.ParseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	chats, err := common.ParseInt64CSV(cfg.TelegramAllowedChatsRaw)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ALLOWED_CHATS parse: %w", err)
	}
	cfg.TelegramAllowedChats = chats

	points, err := ParseEmojiPoints(cfg.RepEmojiPointsRaw)
	if err != nil {
		return nil, fmt.Errorf("REP_EMOJI_POINTS parse: %w", err)
	}
	cfg.RepEmojiPoints = points

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEmojiPoints разбирает таблицу "эмодзи=очки" через запятую.
// Разделитель "=" выбран потому, что имена кастомных эмодзи Discord содержат ":".
func ParseEmojiPoints(s string) (map[string]int, error) {
	out := make(map[string]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.LastIndex(pair, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("ожидалось эмодзи=очки, получено %q", pair)
		}
		emoji := strings.TrimSpace(pair[:idx])
		points, err := strconv.Atoi(strings.TrimSpace(pair[idx+1:]))
		if err != nil {
			return nil, fmt.Errorf("bad points for %q: %w", emoji, err)
		}
		if points == 0 {
			return nil, fmt.Errorf("эмодзи %q: очки не могут быть нулевыми", emoji)
		}
		if _, dup := out[emoji]; dup {
			return nil, fmt.Errorf("эмодзи %q указано дважды", emoji)
		}
		out[emoji] = points
	}
	return out, nil
}
