//go:build integration

package kafka_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"cardkeep/internal/platform/config"
	"cardkeep/internal/platform/kafka"
	"cardkeep/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T())
}

func (s *ProducerSuite) newProducer(topic string) *kafka.Producer {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p, err := kafka.NewProducer(ctx, config.KafkaConfig{
		Brokers:           []string{s.broker.Broker},
		AuditTopic:        topic,
		Partitions:        3,
		ReplicationFactor: 1,
	})
	s.Require().NoError(err)
	s.Require().NotNil(p)
	s.T().Cleanup(p.Close)
	return p
}

// consume reads want records from the start of topic.
func (s *ProducerSuite) consume(topic string, want int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out []*kgo.Record
	for len(out) < want {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out after %d of %d records", len(out), want)
		fetches.EachError(func(t string, p int32, err error) {
			s.Failf("fetch error", "%s/%d: %v", t, p, err)
		})
		out = append(out, fetches.Records()...)
	}
	return out
}

func (s *ProducerSuite) TestCreatesTopicWithPartitions() {
	topic := "cardkeep.test." + uuid.NewString()
	s.newProducer(topic)

	client, err := kgo.NewClient(kgo.SeedBrokers(s.broker.Broker))
	s.Require().NoError(err)
	defer client.Close()
	details, err := kadm.NewClient(client).ListTopics(context.Background(), topic)
	s.Require().NoError(err)
	s.Require().True(details.Has(topic))
	s.Len(details[topic].Partitions, 3)

	// A second bootstrap sees the topic and succeeds.
	s.Require().NoError(kafka.EnsureTopic(context.Background(), client, topic, 3, 1))
}

func (s *ProducerSuite) TestPublishKeepsKeyOrdering() {
	topic := "cardkeep.test." + uuid.NewString()
	p := s.newProducer(topic)
	s.Equal(topic, p.Topic())

	ctx := context.Background()
	for i := range 5 {
		s.Require().NoError(p.Publish(ctx, []byte("gift_card:7"), fmt.Appendf(nil, `{"n":%d}`, i)))
	}
	s.Require().NoError(p.Health(ctx))

	records := s.consume(topic, 5)
	s.Require().Len(records, 5)
	partition := records[0].Partition
	for i, rec := range records {
		s.Equal("gift_card:7", string(rec.Key))
		s.Equal(partition, rec.Partition)
		s.Equal(fmt.Sprintf(`{"n":%d}`, i), string(rec.Value))
	}
}
