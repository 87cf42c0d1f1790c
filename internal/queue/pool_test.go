package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitRunsJob(t *testing.T) {
	p := New(2, 4, nil)
	p.Start(context.Background())
	defer p.Stop()

	got := make(chan string, 1)
	id, err := p.Submit("u1", func(_ context.Context, correlationID string) {
		got <- correlationID
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case cid := <-got:
		assert.Equal(t, id, cid)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	assert.Eventually(t, func() bool {
		_, ok := p.Active("u1")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitExcludesSameKey(t *testing.T) {
	p := New(2, 4, nil)
	p.Start(context.Background())
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex

	first, err := p.Submit("u1", func(ctx context.Context, _ string) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	require.NoError(t, err)
	<-started

	second, err := p.Submit("u1", func(context.Context, string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	active, ok := p.Active("u1")
	require.True(t, ok)
	assert.Equal(t, first, active)

	close(release)
	assert.Eventually(t, func() bool {
		_, ok := p.Active("u1")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	// Once finished, the key accepts a new job.
	third, err := p.Submit("u1", func(context.Context, string) {})
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestStopCancelsRunningJobs(t *testing.T) {
	p := New(1, 4, nil)
	p.Start(context.Background())

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_, err := p.Submit("u1", func(ctx context.Context, _ string) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	require.NoError(t, err)
	<-started

	p.Stop()
	select {
	case <-cancelled:
	default:
		t.Fatal("Stop returned before the job observed cancellation")
	}

	_, err = p.Submit("u2", func(context.Context, string) {})
	require.ErrorIs(t, err, ErrStopped)

	// Stop is idempotent.
	p.Stop()
}

func TestSubmitFull(t *testing.T) {
	p := New(1, 1, nil)
	p.Start(context.Background())
	defer p.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	_, err := p.Submit("a", func(ctx context.Context, _ string) {
		close(started)
		select {
		case <-block:
		case <-ctx.Done():
		}
	})
	require.NoError(t, err)
	<-started

	_, err = p.Submit("b", func(context.Context, string) {})
	require.NoError(t, err)

	_, err = p.Submit("c", func(context.Context, string) {})
	require.ErrorIs(t, err, ErrFull)

	close(block)
}

func TestPanickingJobReleasesKey(t *testing.T) {
	p := New(1, 1, nil)
	p.Start(context.Background())
	defer p.Stop()

	_, err := p.Submit("u1", func(context.Context, string) { panic("boom") })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := p.Active("u1")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}
