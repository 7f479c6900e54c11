package healthcheck

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is the probe surface of a connection pool. Satisfied by
// pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionReporter is the probe surface of the MQTT client.
type ConnectionReporter interface {
	IsConnected() bool
}

type pingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func (c *pingChecker) Name() string { return c.name }

func (c *pingChecker) Check(ctx context.Context) *Result {
	result := &Result{
		ComponentName: c.name,
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
	}
	if err := c.ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// NewDatabaseChecker probes the postgres pool.
func NewDatabaseChecker(pool Pinger) Checker {
	return &pingChecker{name: "postgres", ping: pool.Ping}
}

// NewRedisChecker probes the redis connection backing the alert queue.
func NewRedisChecker(client *redis.Client) Checker {
	return &pingChecker{
		name: "redis",
		ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// NewBrokerChecker reports the MQTT connection state. A disconnected
// broker degrades rather than fails the service, since the websocket path
// does not depend on it.
func NewBrokerChecker(client ConnectionReporter) Checker {
	return &brokerChecker{client: client}
}

type brokerChecker struct {
	client ConnectionReporter
}

func (c *brokerChecker) Name() string { return "mqtt" }

func (c *brokerChecker) Check(_ context.Context) *Result {
	result := &Result{
		ComponentName: "mqtt",
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
	}
	if !c.client.IsConnected() {
		result.Status = StatusDegraded
		result.Message = "broker not connected"
	}
	return result
}
