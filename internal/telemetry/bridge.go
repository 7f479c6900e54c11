package telemetry

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// TopicTruckUpdates carries every canonical update.
	TopicTruckUpdates = "refuse/trucks/update"

	regionTopicPrefix = "refuse/region/"
	regionTopicSuffix = "/update"
)

// RegionUpdateTopic returns the per-region feed topic for a normalized
// region name.
func RegionUpdateTopic(region string) string {
	return regionTopicPrefix + strings.ToLower(strings.TrimSpace(region)) + regionTopicSuffix
}

// Bridge mirrors truck updates onto the MQTT feed. Publishing is
// best-effort: a broker outage never blocks or fails the websocket path.
type Bridge struct {
	pub    Publisher
	logger *zap.Logger
}

// NewBridge wraps pub as an update mirror.
func NewBridge(pub Publisher, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		pub:    pub,
		logger: logger.With(zap.String("component", "telemetry")),
	}
}

// PublishUpdate republishes one canonical update frame. region may be empty
// when the reporting truck has no route assigned.
func (b *Bridge) PublishUpdate(region string, payload []byte) {
	if !b.pub.IsConnected() {
		b.logger.Debug("mirror skipped, broker not connected")
		return
	}

	if err := b.pub.Publish(TopicTruckUpdates, 0, false, payload); err != nil {
		b.logger.Warn("failed to mirror update",
			zap.String("topic", TopicTruckUpdates),
			zap.Error(err))
	}

	if region == "" {
		return
	}
	topic := RegionUpdateTopic(region)
	if err := b.pub.Publish(topic, 0, false, payload); err != nil {
		b.logger.Warn("failed to mirror update",
			zap.String("topic", topic),
			zap.Error(err))
	}
}
