package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/docqueue/pkg/logger"
)

type fakeLocker struct {
	acquired bool
	err      error
	acquires int
	releases int
}

func (l *fakeLocker) Acquire(ctx context.Context) (func(), bool, error) {
	l.acquires++
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.releases++ }, true, nil
}

func newTestScheduler(t *testing.T, lock Locker) *Scheduler {
	t.Helper()
	svc := NewService(NewMemoryStore(), nil, logger.NewTestLogger(), DefaultConfig())
	s, err := NewScheduler(svc, lock, logger.NewTestLogger(), DefaultSchedulerConfig())
	require.NoError(t, err)
	return s
}

func TestRunLockedExecutesAndReleases(t *testing.T) {
	lock := &fakeLocker{acquired: true}
	s := newTestScheduler(t, lock)

	ran := 0
	s.runLocked("reaper", func(ctx context.Context) error {
		ran++
		assert.Equal(t, 0, lock.releases, "lock held while the task runs")
		return nil
	})

	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 1, lock.releases)
}

func TestRunLockedSkipsWhenHeld(t *testing.T) {
	lock := &fakeLocker{acquired: false}
	s := newTestScheduler(t, lock)

	ran := 0
	s.runLocked("retry_sweep", func(ctx context.Context) error {
		ran++
		return nil
	})

	assert.Equal(t, 0, ran, "a held lock skips the cycle")
	assert.Equal(t, 0, lock.releases)
}

func TestRunLockedSkipsOnLockError(t *testing.T) {
	lock := &fakeLocker{err: errors.New("redis unavailable")}
	s := newTestScheduler(t, lock)

	ran := 0
	s.runLocked("reaper", func(ctx context.Context) error {
		ran++
		return nil
	})

	assert.Equal(t, 0, ran)
}

func TestRunLockedReleasesAfterTaskFailure(t *testing.T) {
	lock := &fakeLocker{acquired: true}
	s := newTestScheduler(t, lock)

	s.runLocked("reaper", func(ctx context.Context) error {
		return errors.New("sweep blew up")
	})

	assert.Equal(t, 1, lock.releases, "failed task still releases the lock")
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, logger.NewTestLogger(), DefaultConfig())

	cfg := DefaultSchedulerConfig()
	cfg.ReaperSpec = "not a cron spec"

	_, err := NewScheduler(svc, &fakeLocker{}, logger.NewTestLogger(), cfg)
	assert.Error(t, err)
}
