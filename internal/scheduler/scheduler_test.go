package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCheckouts struct {
	mu    sync.Mutex
	calls []time.Time
	moved int
	err   error
	block bool
}

func (f *fakeCheckouts) RunAutomaticCheckouts(ctx context.Context, asOf time.Time) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, asOf)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.moved, f.err
}

type fakeLocker struct {
	busy     bool
	err      error
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.busy {
		return "", false, nil
	}
	return "token-" + key, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.released = append(l.released, key+"="+token)
	return nil
}

func newTestScheduler(t *testing.T, checkouts checkoutRunner, locker Locker) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Scheduler{
		log:       zap.NewNop(),
		cfg:       Config{JobTimeout: 20 * time.Millisecond}.withDefaults(),
		genID:     node,
		clock:     clock.NewFakeClock(time.Date(2024, time.June, 20, 15, 30, 0, 0, time.UTC)),
		locker:    locker,
		checkouts: checkouts,
	}
}

func TestRunOnceSweepsAsOfToday(t *testing.T) {
	checkouts := &fakeCheckouts{moved: 2}
	locker := &fakeLocker{}
	s := newTestScheduler(t, checkouts, locker)

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, checkouts.calls, 1)
	assert.Equal(t, time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC), checkouts.calls[0])
	assert.Equal(t, []string{
		"pgbilling:scheduler:lock:auto_checkout=token-pgbilling:scheduler:lock:auto_checkout",
	}, locker.released)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	checkouts := &fakeCheckouts{}
	s := newTestScheduler(t, checkouts, &fakeLocker{busy: true})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, checkouts.calls)
}

func TestRunOnceReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := newTestScheduler(t, &fakeCheckouts{err: boom}, &fakeLocker{})
	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)

	lockErr := errors.New("redis down")
	s = newTestScheduler(t, &fakeCheckouts{}, &fakeLocker{err: lockErr})
	assert.ErrorIs(t, s.RunOnce(context.Background()), lockErr)
}

func TestRunOnceTreatsTimeoutAsSoftFailure(t *testing.T) {
	locker := &fakeLocker{}
	s := newTestScheduler(t, &fakeCheckouts{block: true}, locker)

	assert.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, locker.released, 1)
}

func TestLocalLockerIsExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "sweep", token))
	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = l.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
	_, _, err = l.TryLock(ctx, "sweep", 0)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)

	cfg = Config{LockTTL: time.Second, JobTimeout: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, cfg.LockTTL)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
