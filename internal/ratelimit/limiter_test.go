package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func TestLimiterAdmitsUpToLimit(t *testing.T) {
	clk := newFakeClock()
	l := New(2, WithClock(clk.Now))

	assert.True(t, l.CanAdmit())
	l.Record()
	clk.t = clk.t.Add(10 * time.Second)
	l.Record()

	assert.False(t, l.CanAdmit())
	// 60s - 10s elapsed since the oldest request + 1s.
	assert.Equal(t, 51*time.Second, l.WaitTime())

	clk.t = clk.t.Add(50 * time.Second)
	assert.True(t, l.CanAdmit())
	assert.Zero(t, l.WaitTime())
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0)
	for range 100 {
		l.Record()
	}
	assert.True(t, l.CanAdmit())
	assert.Zero(t, l.WaitTime())
}

func TestLimiterWaitAndTake(t *testing.T) {
	clk := newFakeClock()
	l := New(1, WithClock(clk.Now), WithSleep(clk.Sleep))

	require.NoError(t, l.Take(context.Background()))
	require.NoError(t, l.Take(context.Background()))
	require.Len(t, clk.slept, 1)
	assert.Equal(t, 61*time.Second, clk.slept[0])

	// Take recorded the second request.
	assert.False(t, l.CanAdmit())
	require.NoError(t, l.Wait(context.Background()))
	assert.True(t, l.CanAdmit())
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := New(1)
	l.Record()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
	assert.ErrorIs(t, l.Take(ctx), context.Canceled)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
