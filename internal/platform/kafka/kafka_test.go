package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/platform/config"
)

func TestNewWithoutBrokersIsDisabled(t *testing.T) {
	client, err := New(context.Background(), config.KafkaConfig{Topic: "events"})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptionsCoverBrokersAndTopic(t *testing.T) {
	opts := Options(config.KafkaConfig{Brokers: []string{"k1:9092"}, Topic: "events", ClientID: "rollcall"})
	assert.Len(t, opts, 6)
}
