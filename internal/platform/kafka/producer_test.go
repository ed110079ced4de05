package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardkeep/internal/platform/config"
)

func TestNewProducerWithoutBrokersDisablesStreaming(t *testing.T) {
	p, err := NewProducer(context.Background(), config.KafkaConfig{AuditTopic: "cardkeep.activity"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewProducerRequiresTopic(t *testing.T) {
	_, err := NewProducer(context.Background(), config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}
