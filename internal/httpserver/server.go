// Package httpserver отдаёт HTTP API только для чтения: итоги, лидерборд,
// проверку здоровья и метрики Prometheus.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/features/reputation"
)

// HealthChecker проверяет доступность зависимостей (обычно ping пула БД).
type HealthChecker func(ctx context.Context) error

type handlers struct {
	service      *reputation.Service
	health       HealthChecker
	defaultLimit int
}

// NewRouter собирает gin-движок со всеми маршрутами.
func NewRouter(service *reputation.Service, health HealthChecker, defaultLimit int) *gin.Engine {
	h := &handlers{service: service, health: health, defaultLimit: defaultLimit}

	r := gin.New()
	r.Use(gin.Recovery(), loggerMiddleware(), prometheusMiddleware())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1/guilds/:guild")
	api.GET("/users/:user/total", h.userTotal)
	api.GET("/leaderboard", h.leaderboard)

	return r
}

func (h *handlers) healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) userTotal(c *gin.Context) {
	guild, user := c.Param("guild"), c.Param("user")
	total, err := h.service.GetUserTotal(c.Request.Context(), guild, user)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild_id": guild, "user_id": user, "total": total})
}

func (h *handlers) leaderboard(c *gin.Context) {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > reputation.MaxLeaderboardSize {
		limit = reputation.MaxLeaderboardSize
	}

	guild := c.Param("guild")
	entries, err := h.service.GetLeaderboard(c.Request.Context(), guild, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	if entries == nil {
		entries = []reputation.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"guild_id": guild, "limit": limit, "entries": entries})
}

// Server — обёртка над http.Server с корректной остановкой.
type Server struct {
	srv *http.Server
}

// New создаёт сервер на addr.
func New(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start блокируется до Shutdown. Штатная остановка не считается ошибкой.
func (s *Server) Start() error {
	log.WithField("addr", s.srv.Addr).Info("HTTP API запущен")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown дожидается завершения активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
