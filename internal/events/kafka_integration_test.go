//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"elibrary-users/internal/events"
	"elibrary-users/internal/identity/models"
	"elibrary-users/internal/platform/kafka"
	"elibrary-users/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kgo.Client
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	client, err := kafka.NewClient(kafka.Config{Brokers: s.redpanda.Brokers, ClientID: "elibrary-users-test"})
	s.Require().NoError(err)
	s.producer = client
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaPublisherSuite) TestPublishedEventIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "user-events-" + uuid.NewString()
	s.Require().NoError(kafka.EnsureTopic(ctx, s.producer, topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, s.producer, topic, 1, 1), "second ensure is a no-op")

	publisher := events.NewKafkaPublisher(s.producer,
		events.WithTopic(topic),
		events.WithLogger(slog.New(slog.DiscardHandler)),
	)
	identity := models.NewIdentity(uuid.New(), models.RegistrationRequest{
		Email:       "john@futo.edu.ng",
		FirstName:   "John",
		LastName:    "Doe",
		Role:        models.RoleStudent,
		AccountType: models.AccountTypeStudent,
	}, time.Now())

	s.Require().NoError(publisher.Publish(ctx, events.NewUserEvent(events.TypeUserRegistered, identity, "registered", time.Now())))
	s.Require().NoError(s.producer.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(identity.ID.String(), string(records[0].Key))

	var event events.UserEvent
	s.Require().NoError(json.Unmarshal(records[0].Value, &event))
	s.Equal(events.TypeUserRegistered, event.EventType)
	s.Equal("john@futo.edu.ng", event.Email)
}
