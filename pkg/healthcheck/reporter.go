package healthcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PublishFunc delivers a serialized health report to an external feed.
type PublishFunc func(topic string, payload []byte) error

// Reporter periodically publishes the aggregated health report, typically
// onto the MQTT telemetry feed.
type Reporter struct {
	engine  *Engine
	topic   string
	publish PublishFunc
	logger  *zap.Logger
}

// NewReporter creates a reporter that publishes to topic via publish.
func NewReporter(engine *Engine, topic string, publish PublishFunc, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		engine:  engine,
		topic:   topic,
		publish: publish,
		logger:  logger,
	}
}

// Report runs all checks once and publishes the result.
func (r *Reporter) Report(ctx context.Context) error {
	result := r.engine.CheckAll(ctx)

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal health report: %w", err)
	}
	if err := r.publish(r.topic, payload); err != nil {
		return fmt.Errorf("failed to publish health report: %w", err)
	}

	r.logger.Debug("Health report published",
		zap.String("status", string(result.OverallStatus)),
		zap.Int("components", len(result.Components)))
	return nil
}

// Run publishes reports on interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	r.logger.Info("Starting health reporter", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Health reporter stopped")
			return
		case <-ticker.C:
			if err := r.Report(ctx); err != nil {
				r.logger.Warn("Health report failed", zap.Error(err))
			}
		}
	}
}
