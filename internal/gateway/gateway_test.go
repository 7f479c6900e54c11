package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brandonkhumalo/refuse-tracker/internal/config"
	"github.com/Brandonkhumalo/refuse-tracker/internal/dispatch"
	"github.com/Brandonkhumalo/refuse-tracker/internal/ingest"
	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/registry"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

type stubResolver struct {
	identities map[string]models.Identity
}

func (s stubResolver) Resolve(_ context.Context, token string) (models.Identity, error) {
	id, ok := s.identities[token]
	if !ok {
		return models.Identity{}, errors.New("expired or invalid token")
	}
	return id, nil
}

type testEnv struct {
	server   *httptest.Server
	registry *registry.Registry
	store    *store.MemoryStore
	queue    *dispatch.ChannelQueue
	ingest   *ingest.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memStore := store.NewMemoryStore()
	memStore.AddTruck(models.Truck{ID: 1, Name: "Truck 1", Route: "Avondale"})

	reg := registry.New(nil)
	queue := dispatch.NewChannelQueue(16)
	svc := ingest.NewService(memStore, memStore, nil)

	resolver := stubResolver{identities: map[string]models.Identity{
		"reporter-token": {Subject: "driver-1", Role: models.RoleReporter},
		"observer-token": {Subject: "res-1", Role: models.RoleObserver, Region: "avondale"},
	}}

	gw := New(reg, resolver, svc, memStore, queue, nil, config.GatewayConfig{
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		SendBufferSize: 16,
	}, nil)

	router := gin.New()
	gw.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, registry: reg, store: memStore, queue: queue, ingest: svc}
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func assertNoFrame(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err, "expected no frame")
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

func TestObserverReceivesReporterBroadcast(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t, "/ws/trucks/resident?token=observer-token")
	reporter := env.dial(t, "/ws/trucks?token=reporter-token")

	// Let both subscriptions land before the report fans out.
	require.Eventually(t, func() bool {
		return env.registry.MemberCount(registry.TopicTrucks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, reporter.WriteMessage(websocket.TextMessage,
		[]byte(`{"truck_id":1,"latitude":-17.8,"longitude":31.0}`)))

	frame := readFrame(t, observer)
	assert.Equal(t, "truck_update", frame["type"])
	assert.Equal(t, float64(1), frame["truck_id"])
	assert.Equal(t, -17.8, frame["latitude"])
	assert.Equal(t, 31.0, frame["longitude"])
	assert.NotEmpty(t, frame["timestamp"], "timestamp is server-assigned")
	assert.Nil(t, frame["catchup"])

	// Exactly one copy despite global + region membership.
	assertNoFrame(t, observer)

	// The report also enqueued one proximity job.
	assert.Eventually(t, func() bool {
		return env.queue.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnonymousObserverGetsGlobalFeed(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t, "/ws/trucks/resident")
	reporter := env.dial(t, "/ws/trucks?token=reporter-token")

	require.Eventually(t, func() bool {
		return env.registry.MemberCount(registry.TopicTrucks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, reporter.WriteMessage(websocket.TextMessage,
		[]byte(`{"truck_id":1,"latitude":-17.8,"longitude":31.0}`)))

	frame := readFrame(t, observer)
	assert.Equal(t, "truck_update", frame["type"])
}

func TestReporterRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	ws := env.dial(t, "/ws/trucks")

	frame := readFrame(t, ws)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, CodeAuthRejected, frame["code"])

	// The server closes after the rejection frame.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, env.registry.MemberCount(registry.TopicTrucks))
}

func TestObserverTokenOnReporterEndpointRejected(t *testing.T) {
	env := newTestEnv(t)

	ws := env.dial(t, "/ws/trucks?token=observer-token")

	frame := readFrame(t, ws)
	assert.Equal(t, CodeAuthRejected, frame["code"])
}

func TestCatchupPushWithHistory(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingest.RecordLocation(context.Background(), 1, -17.82, 31.03)
	require.NoError(t, err)

	observer := env.dial(t, "/ws/trucks/resident?token=observer-token&truck_id=1")

	frame := readFrame(t, observer)
	assert.Equal(t, "truck_update", frame["type"])
	assert.Equal(t, true, frame["catchup"])
	assert.Equal(t, -17.82, frame["latitude"])
	assert.Equal(t, "Truck 1", frame["truck_name"])
}

func TestNoCatchupWithoutHistory(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t, "/ws/trucks/resident?token=observer-token&truck_id=1")

	assertNoFrame(t, observer)
}

func TestUnknownTruckReportHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t, "/ws/trucks/resident?token=observer-token")
	reporter := env.dial(t, "/ws/trucks?token=reporter-token")

	require.Eventually(t, func() bool {
		return env.registry.MemberCount(registry.TopicTrucks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, reporter.WriteMessage(websocket.TextMessage,
		[]byte(`{"truck_id":99,"latitude":-17.8,"longitude":31.0}`)))

	frame := readFrame(t, reporter)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, CodeUnknownTruck, frame["code"])

	assertNoFrame(t, observer)
	assert.Zero(t, env.queue.Len(), "no job for a rejected report")
	assert.Empty(t, env.store.History(99))
}

func TestMalformedReportKeepsConnectionOpen(t *testing.T) {
	env := newTestEnv(t)

	reporter := env.dial(t, "/ws/trucks?token=reporter-token")

	cases := []string{
		`not json`,
		`{"latitude":-17.8,"longitude":31.0}`,
		`{"truck_id":1,"latitude":95.0,"longitude":31.0}`,
		`{"truck_id":1,"latitude":-17.8,"longitude":181.0}`,
	}
	for _, payload := range cases {
		require.NoError(t, reporter.WriteMessage(websocket.TextMessage, []byte(payload)))
		frame := readFrame(t, reporter)
		assert.Equal(t, CodeMalformedMessage, frame["code"], "payload: %s", payload)
	}

	// The same connection can still submit a valid report.
	require.NoError(t, reporter.WriteMessage(websocket.TextMessage,
		[]byte(`{"truck_id":1,"latitude":-17.8,"longitude":31.0}`)))
	frame := readFrame(t, reporter)
	assert.Equal(t, "truck_update", frame["type"])
}

func TestObserverCannotReport(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t, "/ws/trucks/resident?token=observer-token")

	require.NoError(t, observer.WriteMessage(websocket.TextMessage,
		[]byte(`{"truck_id":1,"latitude":-17.8,"longitude":31.0}`)))

	frame := readFrame(t, observer)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, CodeAuthRejected, frame["code"])
	assert.Zero(t, env.queue.Len())
	assert.Empty(t, env.store.History(1), "observer reports are never persisted")
}

func TestDisconnectTearsDownMemberships(t *testing.T) {
	env := newTestEnv(t)

	observer := env.dial(t, "/ws/trucks/resident?token=observer-token")
	require.Eventually(t, func() bool {
		return env.registry.MemberCount(registry.TopicTrucks) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, env.registry.MemberCount(registry.RegionTopic("avondale")))

	require.NoError(t, observer.Close())

	assert.Eventually(t, func() bool {
		return env.registry.MemberCount(registry.TopicTrucks) == 0 &&
			env.registry.MemberCount(registry.RegionTopic("avondale")) == 0
	}, 2*time.Second, 10*time.Millisecond, "teardown must drop every membership")
}

func TestTokenFromHeaderFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/trucks", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", tokenFrom(req))

	req = httptest.NewRequest(http.MethodGet, "/ws/trucks?token=qp", nil)
	req.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "qp", tokenFrom(req), "query parameter wins")
}

func TestParseReportValidation(t *testing.T) {
	id, lat, lng, err := parseReport([]byte(`{"truck_id":7,"latitude":-17.5,"longitude":30.9}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, -17.5, lat)
	assert.Equal(t, 30.9, lng)

	_, _, _, err = parseReport([]byte(`{"truck_id":7}`))
	assert.Error(t, err)
}
