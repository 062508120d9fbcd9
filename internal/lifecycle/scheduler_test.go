package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elibrary-users/internal/identity/models"
	"elibrary-users/internal/identity/store"
)

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	_, err := NewScheduler(newTestRunner(NewLocalLocker()), Schedule{Expire: "every day at two"}, nil)
	assert.Error(t, err)
}

func TestNewSchedulerRegistersDefaults(t *testing.T) {
	s, err := NewScheduler(newTestRunner(NewLocalLocker()), Schedule{Location: time.UTC}, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 3)
	assert.Contains(t, s.entries, JobExpire)
	assert.Contains(t, s.entries, JobWarn)
	assert.Contains(t, s.entries, JobDelete)
}

func TestSchedulerTriggerRunsJob(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewInMemory()
	grad := 2020
	matric := "M-1"
	identity := models.NewIdentity(uuid.New(), models.RegistrationRequest{
		Email:        "old@futo.edu.ng",
		FirstName:    "Old",
		LastName:     "Grad",
		Role:         models.RoleStudent,
		AccountType:  models.AccountTypeStudent,
		MatricNumber: &matric,
		GradYear:     &grad,
	}, time.Date(2016, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, st.Create(ctx, identity))

	jobs := NewJobs(st, Config{CleanupEnabled: true}, WithLogger(logger))
	s, err := NewScheduler(NewRunner(jobs, NewLocalLocker(), time.Minute, logger, nil),
		Schedule{Location: time.UTC, JobTimeout: time.Second}, logger)
	require.NoError(t, err)

	s.trigger(JobExpire)()

	got, err := st.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	s, err := NewScheduler(newTestRunner(NewLocalLocker()), Schedule{Location: time.UTC}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return !s.Next(JobExpire).IsZero() }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
