package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPruner struct {
	calls     int
	retention time.Duration
	err       error
}

func (p *stubPruner) PruneRateLimitLog(_ context.Context, retention time.Duration) (int64, error) {
	p.calls++
	p.retention = retention
	return 3, p.err
}

func TestScheduler_RunPrune(t *testing.T) {
	p := &stubPruner{}
	s := NewScheduler(p, "30 3 * * *", 720*time.Hour)

	s.RunPrune(context.Background())
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 720*time.Hour, p.retention)

	p.err = errors.New("db down")
	s.RunPrune(context.Background())
	assert.Equal(t, 2, p.calls)
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&stubPruner{}, "every tuesday", time.Hour)
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(&stubPruner{}, "@hourly", time.Hour)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
