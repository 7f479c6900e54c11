// Package gateway accepts persistent websocket connections from truck
// reporters and observers, relays location reports into persistence and
// fan-out, and enqueues proximity-alert jobs.
//
// Each connection moves through connecting → authenticating → subscribed →
// closed. Reporters must present a valid vehicle-reporter token or the
// handshake fails; observers fall back to an anonymous identity that joins
// the global feed only. Disconnect always removes the connection from every
// topic it joined, whatever state it reached.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/config"
	"github.com/Brandonkhumalo/refuse-tracker/internal/dispatch"
	"github.com/Brandonkhumalo/refuse-tracker/internal/ingest"
	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/registry"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

// TokenResolver turns an opaque bearer token into an identity. Satisfied by
// auth.Validator.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// LocationIngestor is the persistence capability the gateway depends on.
// Satisfied by ingest.Service; the indirection keeps the connection layer
// free of a concrete storage dependency.
type LocationIngestor interface {
	RecordLocation(ctx context.Context, truckID int64, lat, lng float64) (models.LocationRecord, error)
	LatestLocation(ctx context.Context, truckID int64) (models.LocationRecord, bool, error)
}

// Mirror republishes canonical updates to an external feed. Optional;
// satisfied by telemetry.Bridge.
type Mirror interface {
	PublishUpdate(region string, payload []byte)
}

// Gateway owns every live connection and the report-handling hot path.
type Gateway struct {
	registry *registry.Registry
	auth     TokenResolver
	ingestor LocationIngestor
	trucks   store.TruckStore
	queue    dispatch.Queue
	mirror   Mirror
	cfg      config.GatewayConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a gateway. mirror may be nil when no telemetry feed is
// configured.
func New(
	reg *registry.Registry,
	auth TokenResolver,
	ingestor LocationIngestor,
	trucks store.TruckStore,
	queue dispatch.Queue,
	mirror Mirror,
	cfg config.GatewayConfig,
	logger *zap.Logger,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendBufferSize < 1 {
		cfg.SendBufferSize = 256
	}

	return &Gateway{
		registry: reg,
		auth:     auth,
		ingestor: ingestor,
		trucks:   trucks,
		queue:    queue,
		mirror:   mirror,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "gateway")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes wires the websocket endpoints onto the router.
func (g *Gateway) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/trucks", g.handleReporter)
	r.GET("/ws/trucks/resident", g.handleObserver)
}

// handleReporter serves truck-mounted clients. Reporting requires a resolved
// vehicle-reporter identity; any rejection closes the handshake.
func (g *Gateway) handleReporter(c *gin.Context) {
	conn, ok := g.upgrade(c)
	if !ok {
		return
	}

	conn.setState(stateAuthenticating)
	identity, err := g.auth.Resolve(c.Request.Context(), tokenFrom(c.Request))
	if err != nil {
		g.rejectHandshake(conn, fmt.Sprintf("reporter authentication failed: %v", err))
		return
	}
	if identity.Role != models.RoleReporter {
		g.rejectHandshake(conn, "token does not grant vehicle-reporter access")
		return
	}
	conn.setIdentity(identity)

	g.registry.Subscribe(registry.TopicTrucks, conn)
	conn.setState(stateSubscribed)
	conn.logger.Info("Reporter connected", zap.String("subject", identity.Subject))

	go conn.writePump(g.cfg.PingInterval)
	g.readLoop(conn, true)
}

// handleObserver serves residents and monitors. A missing or invalid token
// downgrades to an anonymous identity on the global feed; a resolved region
// additionally joins the region topic.
func (g *Gateway) handleObserver(c *gin.Context) {
	conn, ok := g.upgrade(c)
	if !ok {
		return
	}

	conn.setState(stateAuthenticating)
	identity, err := g.auth.Resolve(c.Request.Context(), tokenFrom(c.Request))
	if err != nil {
		identity = models.Anonymous()
	}
	conn.setIdentity(identity)

	g.registry.Subscribe(registry.TopicTrucks, conn)
	if identity.HasRegion() {
		g.registry.Subscribe(registry.RegionTopic(identity.Region), conn)
	}
	conn.setState(stateSubscribed)
	conn.logger.Info("Observer connected",
		zap.String("subject", identity.Subject),
		zap.String("region", identity.Region),
		zap.Bool("anonymous", identity.IsAnonymous()))

	go conn.writePump(g.cfg.PingInterval)

	if raw := c.Query("truck_id"); raw != "" {
		g.pushCatchup(c.Request.Context(), conn, raw)
	}

	g.readLoop(conn, false)
}

// upgrade performs the websocket handshake and builds the connection handle.
func (g *Gateway) upgrade(c *gin.Context) (*Conn, bool) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return nil, false
	}
	if g.cfg.MaxPayloadBytes > 0 {
		ws.SetReadLimit(g.cfg.MaxPayloadBytes)
	}
	return newConn(ws, g.cfg.SendBufferSize, g.cfg.WriteTimeout, g.logger), true
}

// rejectHandshake reports the failure and closes before any subscription
// exists. Written directly because the writer pump is not running yet.
func (g *Gateway) rejectHandshake(conn *Conn, message string) {
	frame := newErrorFrame(CodeAuthRejected, message)
	_ = conn.ws.SetWriteDeadline(time.Now().Add(conn.writeTimeout))
	_ = conn.ws.WriteJSON(frame)
	conn.close()
	conn.logger.Info("Handshake rejected", zap.String("reason", message))
}

// pushCatchup delivers the last known position for the requested truck so a
// newly joined observer is not left without state. No record, no frame.
func (g *Gateway) pushCatchup(ctx context.Context, conn *Conn, rawTruckID string) {
	truckID, err := strconv.ParseInt(rawTruckID, 10, 64)
	if err != nil {
		conn.deliverJSON(newErrorFrame(CodeMalformedMessage, "truck_id must be an integer"))
		return
	}

	record, found, err := g.ingestor.LatestLocation(ctx, truckID)
	if err != nil {
		conn.logger.Error("Catch-up lookup failed", zap.Int64("truck_id", truckID), zap.Error(err))
		return
	}
	if !found {
		return
	}

	var name string
	if truck, err := g.trucks.GetTruck(ctx, truckID); err == nil {
		name = truck.Name
	}
	conn.deliverJSON(newTruckUpdate(record, name, true))
	conn.logger.Debug("Sent catch-up update", zap.Int64("truck_id", truckID))
}

// readLoop processes inbound frames until the peer disconnects, then tears
// the connection down. Teardown runs unconditionally, even for connections
// that never finished authenticating.
func (g *Gateway) readLoop(conn *Conn, reporter bool) {
	defer func() {
		g.registry.DropConnection(conn)
		conn.close()
		conn.logger.Info("Connection closed")
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.logger.Debug("Read failed", zap.Error(err))
			}
			return
		}

		if !reporter {
			conn.deliverJSON(newErrorFrame(CodeAuthRejected, "only vehicle reporters may send location reports"))
			continue
		}
		g.handleReport(context.Background(), conn, data)
	}
}

// handleReport runs one report through ingestion, fan-out and alert
// enqueueing. Ingestion failure aborts the report: no broadcast, no job.
func (g *Gateway) handleReport(ctx context.Context, conn *Conn, data []byte) {
	truckID, lat, lng, err := parseReport(data)
	if err != nil {
		conn.deliverJSON(newErrorFrame(CodeMalformedMessage, err.Error()))
		return
	}

	record, err := g.ingestor.RecordLocation(ctx, truckID, lat, lng)
	if err != nil {
		if errors.Is(err, ingest.ErrTruckNotFound) {
			conn.deliverJSON(newErrorFrame(CodeUnknownTruck, fmt.Sprintf("truck %d is not registered", truckID)))
			return
		}
		conn.logger.Error("Failed to persist report", zap.Int64("truck_id", truckID), zap.Error(err))
		conn.deliverJSON(newErrorFrame(CodeRegistryUnavailable, "report could not be processed"))
		return
	}

	truck, err := g.trucks.GetTruck(ctx, truckID)
	if err != nil {
		// The truck existed moments ago; degrade to a global-only broadcast.
		conn.logger.Warn("Truck metadata lookup failed after persist",
			zap.Int64("truck_id", truckID), zap.Error(err))
		truck = models.Truck{ID: truckID}
	}

	payload, err := marshalUpdate(newTruckUpdate(record, truck.Name, false))
	if err != nil {
		conn.logger.Error("Failed to marshal broadcast", zap.Error(err))
		return
	}

	// One delivery per connection even when it sits in both the global and
	// the region topic.
	topics := []string{registry.TopicTrucks}
	region := strings.TrimSpace(truck.Route)
	if region != "" {
		topics = append(topics, registry.RegionTopic(region))
	}
	g.registry.BroadcastTopics(topics, payload)

	job := models.ProximityAlertJob{TruckID: truckID, Latitude: lat, Longitude: lng}
	if err := g.queue.Enqueue(ctx, job); err != nil {
		// Alert-path failures are isolated from the reporting connection.
		conn.logger.Error("Failed to enqueue alert job", zap.Int64("truck_id", truckID), zap.Error(err))
	}

	if g.mirror != nil {
		g.mirror.PublishUpdate(strings.ToLower(region), payload)
	}
}

// tokenFrom extracts the bearer token from the handshake request: the
// "token" query parameter first, then an Authorization header.
func tokenFrom(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
