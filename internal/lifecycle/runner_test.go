package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elibrary-users/internal/identity/store"
	"elibrary-users/pkg/platform/sentinel"
)

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, sentinel.ErrUnavailable
}

func newTestRunner(locker Locker) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobs(store.NewInMemory(), Config{CleanupEnabled: true}, WithLogger(logger))
	return NewRunner(jobs, locker, time.Minute, logger, nil)
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	unlock, err := locker.TryLock(ctx, "lifecycle:expire", time.Minute)
	require.NoError(t, err)

	res, err := newTestRunner(locker).Run(ctx, JobExpire)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	require.NoError(t, unlock(ctx))
	res, err = newTestRunner(locker).Run(ctx, JobExpire)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestRunnerReleasesLock(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	runner := newTestRunner(locker)

	_, err := runner.Run(ctx, JobWarn)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "lifecycle:warn", time.Minute)
	assert.NoError(t, err)
}

func TestRunnerSurfacesLockFailure(t *testing.T) {
	_, err := newTestRunner(brokenLocker{}).Run(context.Background(), JobDelete)
	assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
}

func TestLocalLockerIsPerKey(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	_, err := locker.TryLock(ctx, "a", time.Minute)
	require.NoError(t, err)
	_, err = locker.TryLock(ctx, "a", time.Minute)
	assert.ErrorIs(t, err, sentinel.ErrLocked)
	_, err = locker.TryLock(ctx, "b", time.Minute)
	assert.NoError(t, err)
}
