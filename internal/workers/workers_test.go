package workers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDailyRun(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, 3, 10, 1, 0, 0, 0, loc),
			hour: 3,
			want: time.Date(2024, 3, 10, 3, 0, 0, 0, loc),
		},
		{
			name: "exactly at the hour rolls to tomorrow",
			now:  time.Date(2024, 3, 10, 3, 0, 0, 0, loc),
			hour: 3,
			want: time.Date(2024, 3, 11, 3, 0, 0, 0, loc),
		},
		{
			name: "midnight across month end",
			now:  time.Date(2024, 1, 31, 23, 30, 0, 0, loc),
			hour: 0,
			want: time.Date(2024, 2, 1, 0, 0, 0, 0, loc),
		},
		{
			name: "input in UTC",
			now:  time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC), // 01:30 IST on the 11th
			hour: 0,
			want: time.Date(2024, 3, 12, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDailyRun(tt.now, tt.hour, loc)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestStartDailyWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := StartDailyWorker(ctx, "test", 0, time.UTC, func(context.Context) {})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lease")

	unlock()
	unlock2, ok, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// an expired lease can be taken over; the stale unlock must not release it
	now = now.Add(2 * time.Minute)
	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
	_, ok, _ = l.TryLock(ctx, "sweep", time.Minute)
	assert.False(t, ok)
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client)
	key := "test-sweep-" + time.Now().Format("150405.000000")

	unlock, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlock, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock()
}
