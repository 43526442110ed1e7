// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, журнал репутации, адаптеры
// Telegram и Discord, HTTP API и планировщик.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/bot"
	"serotonyl.ru/reputation-bot/internal/bot/filters"
	"serotonyl.ru/reputation-bot/internal/bot/middleware"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/db/postgres"
	"serotonyl.ru/reputation-bot/internal/discord"
	"serotonyl.ru/reputation-bot/internal/features/reputation"
	"serotonyl.ru/reputation-bot/internal/httpserver"
	"serotonyl.ru/reputation-bot/internal/jobs"
)

const shutdownTimeout = 10 * time.Second

// App содержит все компоненты приложения. Отключённые адаптеры равны nil.
type App struct {
	DB        *pgxpool.Pool
	Service   *reputation.Service
	Scheduler *jobs.Scheduler

	Telegram *bot.Bot
	Discord  *discord.Bot
	HTTP     *httpserver.Server

	rateLimiter *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg.DatabaseDSN(), postgres.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Журнал репутации ===
	service, err := reputation.NewService(
		reputation.NewRepository(pool),
		reputation.NewEmojiTable(cfg.RepEmojiPoints),
		reputation.RateLimitConfig{
			DailyLimit:        cfg.RepDailyLimit,
			PerRecipientLimit: cfg.RepPerRecipient,
			Window:            cfg.RepWindow(),
		},
		clockwork.NewRealClock(),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания сервиса репутации: %w", err)
	}

	a := &App{
		DB:          pool,
		Service:     service,
		Scheduler:   jobs.NewScheduler(service, cfg.RepPruneSchedule, cfg.RepRateLogRetention()),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, nil),
	}

	// === 3. Адаптеры ===
	if cfg.FeatureTelegramEnabled {
		if a.Telegram, err = newTelegram(ctx, cfg, service, a.rateLimiter); err != nil {
			a.close()
			return nil, err
		}
	}

	if cfg.FeatureDiscordEnabled {
		a.Discord, err = discord.New(service, a.rateLimiter, discord.Options{
			Token:           cfg.DiscordBotToken,
			CommandGuildID:  cfg.DiscordGuildID,
			LeaderboardSize: cfg.RepLeaderboardSize,
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}

	if cfg.FeatureHTTPEnabled {
		if cfg.AppEnv != "development" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := httpserver.NewRouter(service, pool.Ping, cfg.RepLeaderboardSize)
		a.HTTP = httpserver.New(cfg.HTTPAddr, router)
	}

	log.WithFields(log.Fields{
		"emoji":    service.Emoji().Len(),
		"window":   service.Limits().Window,
		"telegram": a.Telegram != nil,
		"discord":  a.Discord != nil,
		"http":     a.HTTP != nil,
	}).Info("Приложение собрано")

	return a, nil
}

func newTelegram(ctx context.Context, cfg *config.Config, service *reputation.Service, rl *middleware.RateLimiter) (*bot.Bot, error) {
	api, err := telego.NewBot(cfg.TelegramBotToken, telego.WithLogger(log.WithField("component", "telego")))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован в Telegram как @%s", me.Username)

	handler := reputation.NewHandler(service, api, cfg.RepLeaderboardSize)
	return bot.New(api, cfg, handler, filters.NewChatFilter(cfg.TelegramAllowedChats), rl), nil
}

// Run запускает все компоненты и блокируется до отмены ctx или падения
// любого из них, после чего останавливает остальные.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	if a.Discord != nil {
		if err := a.Discord.Start(); err != nil {
			return err
		}
		defer func() {
			if err := a.Discord.Stop(); err != nil {
				log.WithError(err).Warn("Ошибка остановки Discord-бота")
			}
		}()
	}

	if a.Telegram != nil {
		go func() { errCh <- a.Telegram.Start(ctx) }()
	}

	if a.HTTP != nil {
		go func() { errCh <- a.HTTP.Start() }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Ошибка остановки HTTP API")
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		// Компонент завершился штатно — ждём общей остановки
		<-ctx.Done()
		return nil
	}
}

func (a *App) close() {
	a.rateLimiter.Close()
	a.DB.Close()
}
