package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/features/reputation"
	"serotonyl.ru/reputation-bot/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, health HealthChecker) (*gin.Engine, *reputation.Service) {
	t.Helper()
	svc, err := reputation.NewService(
		reputation.NewMemoryStore(),
		reputation.NewEmojiTable(map[string]int{"🏆": 1, "⭐": 3}),
		reputation.RateLimitConfig{DailyLimit: 100, PerRecipientLimit: 100, Window: time.Hour},
		clockwork.NewFakeClock(),
	)
	require.NoError(t, err)
	return NewRouter(svc, health, 10), svc
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, func(context.Context) error { return nil })
	w := get(r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down, _ := newTestRouter(t, func(context.Context) error { return errors.New("db down") })
	w = get(down, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUserTotal(t *testing.T) {
	r, svc := newTestRouter(t, nil)
	ctx := context.Background()

	_, err := svc.TrackReactionAward(ctx, "g1", "m1", "alice", "bob", "⭐")
	require.NoError(t, err)

	w := get(r, "/api/v1/guilds/g1/users/alice/total")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"guild_id":"g1","user_id":"alice","total":3}`, w.Body.String())

	w = get(r, "/api/v1/guilds/g2/users/alice/total")
	assert.JSONEq(t, `{"guild_id":"g2","user_id":"alice","total":0}`, w.Body.String())
}

func TestLeaderboard(t *testing.T) {
	r, svc := newTestRouter(t, nil)
	ctx := context.Background()

	for i, grantor := range []string{"a", "b", "c"} {
		_, err := svc.TrackReactionAward(ctx, "g1", "m"+grantor, "alice", grantor, "🏆")
		require.NoError(t, err)
		if i == 0 {
			_, err = svc.TrackReactionAward(ctx, "g1", "x", "bob", grantor, "🏆")
			require.NoError(t, err)
		}
	}

	w := get(r, "/api/v1/guilds/g1/leaderboard?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Limit   int                           `json:"limit"`
		Entries []reputation.LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Limit)
	assert.Equal(t, []reputation.LeaderboardEntry{{UserID: "alice", Total: 3}}, body.Entries)

	w = get(r, "/api/v1/guilds/g1/leaderboard?limit=1000")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, reputation.MaxLeaderboardSize, body.Limit)
	assert.Len(t, body.Entries, 2)

	w = get(r, "/api/v1/guilds/empty/leaderboard")
	assert.JSONEq(t, `{"guild_id":"empty","limit":10,"entries":[]}`, w.Body.String())

	w = get(r, "/api/v1/guilds/g1/leaderboard?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))
	get(r, "/healthz")
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))
	assert.Equal(t, before+1, after)

	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "reputation_http_requests_total"))
}
