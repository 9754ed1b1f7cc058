// Copyright (c) 2025 Justin Cranford
//
//

package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickPeriodFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		expected time.Duration
	}{
		{"sub-5-minute test interval", 30 * time.Second, 10 * time.Second},
		{"just under 5 minutes", 4*time.Minute + 59*time.Second, 10 * time.Second},
		{"exactly 5 minutes", 5 * time.Minute, time.Minute},
		{"one hour", time.Hour, time.Minute},
		{"just under 1 day", 23 * time.Hour, time.Minute},
		{"exactly 1 day", 24 * time.Hour, time.Hour},
		{"180 days", 180 * 24 * time.Hour, time.Hour},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, tickPeriodFor(tc.interval))
		})
	}
}

func TestScheduler_StartStop_IsIdempotentAndClean(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, Config{Enabled: true, RotationInterval: time.Hour})
	scheduler := NewScheduler(engine.logger, engine, time.Hour)

	ctx := context.Background()
	scheduler.Start(ctx)
	scheduler.Start(ctx) // no-op, must not panic or deadlock

	scheduler.Stop()
	scheduler.Stop() // no-op, must not panic or deadlock
}

func TestScheduler_TicksDriveRotation(t *testing.T) {
	t.Parallel()

	engine, keys := newTestEngine(t, Config{Enabled: true, RotationInterval: time.Nanosecond, GracePeriod: time.Hour})
	require.NoError(t, engine.Initialize(context.Background()))

	scheduler := NewScheduler(engine.logger, engine, 30*time.Millisecond)
	scheduler.tick = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		pending, err := keys.ListByStatus(context.Background(), "PENDING")
		return err == nil && len(pending) > 0
	}, 500*time.Millisecond, 10*time.Millisecond)
}
