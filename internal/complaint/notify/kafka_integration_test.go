//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/notify"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/testutil/containers"
)

type KafkaNotifierSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaNotifierSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaNotifierSuite))
}

func (s *KafkaNotifierSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaNotifierSuite) TestPublishedRecordIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "status-" + uuid.NewString()[:8]

	client, err := notify.NewKafkaClient(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	s.Require().NoError(notify.EnsureTopic(ctx, client, topic, 1, 1))
	s.Require().NoError(notify.EnsureTopic(ctx, client, topic, 1, 1), "existing topic is not an error")

	n := notify.NewKafkaNotifier(client, notify.WithTopic(topic))
	ev := models.StatusChanged{
		ComplaintID: id.NewComplaintID(),
		From:        models.StatusInProgress,
		To:          models.StatusResolved,
		ActorID:     id.UserID(uuid.New()),
		OccurredAt:  time.Now().UTC(),
	}
	s.Require().NoError(n.NotifyStatusChanged(ctx, ev))
	s.Require().NoError(n.Close(ctx))

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
	s.Require().NotEmpty(records)

	s.Equal(ev.ComplaintID.String(), string(records[0].Key))
	var decoded models.StatusChanged
	s.Require().NoError(json.Unmarshal(records[0].Value, &decoded))
	s.Equal(models.StatusResolved, decoded.To)
}
