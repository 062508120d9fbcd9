//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"elibrary-users/internal/identity/models"
	"elibrary-users/internal/identity/store"
	"elibrary-users/pkg/platform/sentinel"
	"elibrary-users/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "identities"))
}

func ptr[T any](v T) *T { return &v }

func newStudent(email, matric string, gradYear int, now time.Time) *models.Identity {
	return models.NewIdentity(uuid.New(), models.RegistrationRequest{
		Email:        email,
		FirstName:    "Ada",
		LastName:     "Obi",
		Role:         models.RoleStudent,
		AccountType:  models.AccountTypeStudent,
		MatricNumber: ptr(matric),
		GradYear:     ptr(gradYear),
	}, now)
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	identity := newStudent("Ada@futo.edu.ng", "M100", 2027, now)
	identity.Department = ptr("Computer Science")

	s.Require().NoError(s.store.Create(ctx, identity))

	found, err := s.store.FindByEmail(ctx, "ada@FUTO.edu.ng")
	s.Require().NoError(err)
	s.Equal(identity.ID, found.ID)
	s.Equal(models.StatusActive, found.Status)
	s.Equal("M100", *found.MatricNumber)
	s.Equal(2027, *found.GradYear)
	s.Nil(found.StaffID)
	s.Nil(found.ExpiryWarningSentAt)
	s.True(found.AccountNotExpired)
	s.WithinDuration(now, found.CreatedAt, time.Millisecond)

	warnedAt := now.Add(time.Hour)
	found.ApplyExpiryWarning(warnedAt)
	s.Require().NoError(s.store.Update(ctx, found))

	again, err := s.store.FindByID(ctx, identity.ID)
	s.Require().NoError(err)
	s.Require().NotNil(again.ExpiryWarningSentAt)
	s.WithinDuration(warnedAt, *again.ExpiryWarningSentAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestUniqueViolationsNameTheField() {
	ctx := context.Background()
	now := time.Now()
	s.Require().NoError(s.store.Create(ctx, newStudent("ada@futo.edu.ng", "M100", 2027, now)))

	err := s.store.Create(ctx, newStudent("ADA@futo.edu.ng", "M200", 2027, now))
	var violation *store.UniqueViolation
	s.Require().True(errors.As(err, &violation))
	s.Equal(store.FieldEmail, violation.Field)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	err = s.store.Create(ctx, newStudent("bola@futo.edu.ng", "M100", 2027, now))
	s.Require().True(errors.As(err, &violation))
	s.Equal(store.FieldMatricNumber, violation.Field)
}

// Concurrent registrations that race past the existence check are settled by
// the unique index.
func (s *PostgresStoreSuite) TestConcurrentCreateSameEmail() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity := newStudent("race@futo.edu.ng", uuid.NewString(), 2027, time.Now())
			err := s.store.Create(ctx, identity)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

func (s *PostgresStoreSuite) TestLifecycleQueries() {
	ctx := context.Background()
	now := time.Now()
	past := newStudent("past@futo.edu.ng", "M1", 2020, now)
	next := newStudent("next@futo.edu.ng", "M2", 2031, now)
	warned := newStudent("warned@futo.edu.ng", "M3", 2031, now)
	warned.ApplyExpiryWarning(now)
	for _, identity := range []*models.Identity{past, next, warned} {
		s.Require().NoError(s.store.Create(ctx, identity))
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		expired, err := s.store.ListExpiredStudents(ctx, 2026)
		s.Require().NoError(err)
		s.Require().Len(expired, 1)
		s.Equal(past.ID, expired[0].ID)

		nearing, err := s.store.ListStudentsNearingExpiry(ctx, 2031)
		s.Require().NoError(err)
		s.Require().Len(nearing, 1)
		s.Equal(next.ID, nearing[0].ID)
		return nil
	})
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBack() {
	ctx := context.Background()
	identity := newStudent("ada@futo.edu.ng", "M100", 2020, time.Now())
	s.Require().NoError(s.store.Create(ctx, identity))

	boom := errors.New("boom")
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.store.DeleteMany(ctx, []uuid.UUID{identity.ID})
		s.Require().NoError(err)
		s.Equal(int64(1), n)
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindByID(ctx, identity.ID)
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestStatisticsCounts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newStudent("a@futo.edu.ng", "M1", 2027, time.Now())))
	s.Require().NoError(s.store.Create(ctx, newStudent("b@futo.edu.ng", "M2", 2027, time.Now())))

	n, err := s.store.CountByRole(ctx, models.RoleStudent)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.store.CountByStatus(ctx, models.StatusExpired)
	s.Require().NoError(err)
	s.Zero(n)

	n, err = s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}
