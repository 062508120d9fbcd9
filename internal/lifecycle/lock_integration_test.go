//go:build integration

package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"elibrary-users/pkg/platform/sentinel"
	"elibrary-users/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.locker = NewRedisLocker(s.redis.Client, "elibrary-test:")
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestExclusive() {
	ctx := context.Background()

	unlock, err := s.locker.TryLock(ctx, "lifecycle:expire", time.Minute)
	s.Require().NoError(err)

	_, err = s.locker.TryLock(ctx, "lifecycle:expire", time.Minute)
	s.ErrorIs(err, sentinel.ErrLocked)

	s.Require().NoError(unlock(ctx))
	_, err = s.locker.TryLock(ctx, "lifecycle:expire", time.Minute)
	s.NoError(err)
}

func (s *RedisLockerSuite) TestExpiredLockIsNotReleasedByOldHolder() {
	ctx := context.Background()

	staleUnlock, err := s.locker.TryLock(ctx, "lifecycle:delete", 50*time.Millisecond)
	s.Require().NoError(err)
	time.Sleep(100 * time.Millisecond)

	_, err = s.locker.TryLock(ctx, "lifecycle:delete", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(staleUnlock(ctx))
	_, err = s.locker.TryLock(ctx, "lifecycle:delete", time.Minute)
	s.ErrorIs(err, sentinel.ErrLocked)
}
