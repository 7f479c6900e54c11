package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/config"
)

type fakePublisher struct {
	connected bool
	failTopic string
	published []struct {
		topic   string
		payload []byte
	}
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte) error {
	if topic == f.failTopic {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, struct {
		topic   string
		payload []byte
	}{topic, payload})
	return nil
}

func TestRegionUpdateTopic(t *testing.T) {
	assert.Equal(t, "refuse/region/avondale/update", RegionUpdateTopic("Avondale"))
	assert.Equal(t, "refuse/region/mount pleasant/update", RegionUpdateTopic("  Mount Pleasant "))
}

func TestPublishUpdateFansOutToGlobalAndRegion(t *testing.T) {
	pub := &fakePublisher{connected: true}
	bridge := NewBridge(pub, zap.NewNop())

	bridge.PublishUpdate("Avondale", []byte(`{"type":"truck_update"}`))

	if assert.Len(t, pub.published, 2) {
		assert.Equal(t, TopicTruckUpdates, pub.published[0].topic)
		assert.Equal(t, "refuse/region/avondale/update", pub.published[1].topic)
		assert.JSONEq(t, `{"type":"truck_update"}`, string(pub.published[1].payload))
	}
}

func TestPublishUpdateWithoutRegion(t *testing.T) {
	pub := &fakePublisher{connected: true}
	bridge := NewBridge(pub, zap.NewNop())

	bridge.PublishUpdate("", []byte(`{}`))

	if assert.Len(t, pub.published, 1) {
		assert.Equal(t, TopicTruckUpdates, pub.published[0].topic)
	}
}

func TestPublishUpdateSkipsDisconnectedBroker(t *testing.T) {
	pub := &fakePublisher{connected: false}
	bridge := NewBridge(pub, zap.NewNop())

	bridge.PublishUpdate("Avondale", []byte(`{}`))

	assert.Empty(t, pub.published)
}

func TestPublishUpdateRegionFailureStillMirrorsGlobal(t *testing.T) {
	pub := &fakePublisher{connected: true, failTopic: "refuse/region/avondale/update"}
	bridge := NewBridge(pub, zap.NewNop())

	bridge.PublishUpdate("Avondale", []byte(`{}`))

	if assert.Len(t, pub.published, 1) {
		assert.Equal(t, TopicTruckUpdates, pub.published[0].topic)
	}
}

func TestNewClientNotConnectedInitially(t *testing.T) {
	client := NewClient(config.MQTTConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "test-client",
		ConnectTimeout: 5 * time.Second,
	}, zap.NewNop())

	assert.NotNil(t, client)
	assert.False(t, client.IsConnected())
}
