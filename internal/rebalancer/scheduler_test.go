package rebalancer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	service := newTestService(t, newTestStore(t))

	_, err := NewScheduler(context.Background(), service, "every ten minutes")
	assert.Error(t, err)

	_, err = NewScheduler(context.Background(), nil, "@every 10m")
	assert.Error(t, err)
}

func TestSchedulerRunNow(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store)

	scheduler, err := NewScheduler(context.Background(), service, "@every 10m")
	require.NoError(t, err)
	scheduler.now = func() time.Time { return created.Add(2 * time.Hour) }

	scheduler.RunNow()
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, int64(1), store.cycle)
}

func TestSchedulerRunNowAfterCancel(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	scheduler, err := NewScheduler(ctx, service, "@every 10m")
	require.NoError(t, err)
	scheduler.now = func() time.Time { return created.Add(2 * time.Hour) }
	cancel()

	scheduler.RunNow()
	assert.Zero(t, store.commits)
}

func TestSchedulerStartStop(t *testing.T) {
	service := newTestService(t, newTestStore(t))
	scheduler, err := NewScheduler(context.Background(), service, "@every 1h")
	require.NoError(t, err)

	scheduler.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	scheduler.Stop(ctx)
}
