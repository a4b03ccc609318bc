package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/storetwin/internal/auth"
	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
	"github.com/rickgao/storetwin/internal/status"
)

const testSecret = "0123456789abcdef-hub-test"

type fakeSensors map[string]model.SensorReading

func (f fakeSensors) Get(id string) (model.SensorReading, bool) {
	r, ok := f[id]
	return r, ok
}

// startHub runs a hub with its router behind an httptest server.
func startHub(t *testing.T, cfg Config, verifier TokenVerifier, sensors SensorLookup) (*Hub, string) {
	t.Helper()

	r := router.New(router.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	h := New(cfg, r, verifier, sensors, nil)
	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))

	t.Cleanup(func() {
		h.Shutdown()
		server.Close()
		cancel()
		<-done
	})
	return h, "ws" + strings.TrimPrefix(server.URL, "http")
}

// dial connects a test client and returns it with its welcome client id.
func dial(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env := readEnvelope(t, conn)
	require.Equal(t, model.TypeWelcome, env.Type)
	w, err := model.DecodeWelcome(env)
	require.NoError(t, err)
	return conn, w.ClientID
}

func readEnvelope(t *testing.T, conn *websocket.Conn) codec.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := codec.Decode(data)
	require.NoError(t, err)
	return env
}

// expectSilence asserts nothing arrives on conn within a short window. The
// read deadline leaves conn unreadable afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, "timeout waiting for %s", what)
}

func sensorFrame(t *testing.T, id string) []byte {
	t.Helper()
	data, err := model.EncodeSensorUpdate(model.SensorReading{
		SensorID:  id,
		Kind:      "temperatura",
		Value:     21.5,
		Location:  "zona-a",
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return data
}

func TestHub_WelcomeAndRegistry(t *testing.T) {
	h, url := startHub(t, DefaultConfig(), nil, nil)

	_, idA := dial(t, url)
	_, idB := dial(t, url)

	assert.NotEqual(t, idA, idB)
	waitFor(t, "two clients", func() bool { return h.Registry().Len() == 2 })

	_, ok := h.Registry().Lookup(idA)
	assert.True(t, ok)
}

func TestHub_InitialDataFollowsWelcome(t *testing.T) {
	h, url := startHub(t, DefaultConfig(), nil, nil)
	snapshots := status.New(status.Config{}, h, status.Sources{Clients: h.Registry()}, nil)
	h.SetSnapshot(snapshots.InitialData)

	conn, id := dial(t, url)
	require.NotEmpty(t, id)

	env := readEnvelope(t, conn)
	require.Equal(t, model.TypeInitialData, env.Type)
	d, err := model.DecodeInitialData(env)
	require.NoError(t, err)

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal(d.Data, &snap))
	assert.Equal(t, 1, snap.Clients)
	assert.NotNil(t, snap.Sensors)
}

func TestHub_SnapshotErrorSkipsFrame(t *testing.T) {
	h, url := startHub(t, DefaultConfig(), nil, nil)
	h.SetSnapshot(func() ([]byte, error) { return nil, errors.New("no state yet") })

	a, _ := dial(t, url)
	b, _ := dial(t, url)

	require.NoError(t, b.WriteMessage(websocket.TextMessage, sensorFrame(t, "temp-1")))
	env := readEnvelope(t, a)
	assert.Equal(t, model.TypeSensorUpdate, env.Type)
}

func TestHub_ForwardsToOtherClients(t *testing.T) {
	h, url := startHub(t, DefaultConfig(), nil, nil)

	a, _ := dial(t, url)
	b, _ := dial(t, url)

	frame := sensorFrame(t, "temp-1")
	require.NoError(t, a.WriteMessage(websocket.TextMessage, frame))

	env := readEnvelope(t, b)
	assert.Equal(t, model.TypeSensorUpdate, env.Type)
	assert.JSONEq(t, string(frame), string(env.Raw))

	expectSilence(t, a)
	waitFor(t, "forward counted", func() bool { return h.Stats().Forwarded == 1 })
}

func TestHub_InvalidPayloadNotForwarded(t *testing.T) {
	_, url := startHub(t, DefaultConfig(), nil, nil)

	a, _ := dial(t, url)
	b, _ := dial(t, url)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"sensor_update","data":{"sensor":"x"}}`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	expectSilence(t, b)
}

func TestHub_SensorRequestReply(t *testing.T) {
	sensors := fakeSensors{
		"temp-1": {
			SensorID:  "temp-1",
			Kind:      "temperatura",
			Value:     19,
			Location:  "zona-b",
			Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
	}
	_, url := startHub(t, DefaultConfig(), nil, sensors)

	a, _ := dial(t, url)
	b, _ := dial(t, url)

	req, err := model.EncodeSensorRequest("temp-1")
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, req))

	env := readEnvelope(t, a)
	require.Equal(t, model.TypeSensorUpdate, env.Type)
	reading, err := model.DecodeSensorUpdate(env)
	require.NoError(t, err)
	assert.Equal(t, "temp-1", reading.SensorID)
	assert.Equal(t, 19.0, reading.Value)

	expectSilence(t, b)

	unknown, err := model.EncodeSensorRequest("nope")
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, unknown))
	expectSilence(t, a)
}

func TestHub_RequireAuthDropsUnauthenticated(t *testing.T) {
	creds, err := auth.NewCredentials(testSecret)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RequireAuth = true
	h, url := startHub(t, cfg, creds, nil)

	a, idA := dial(t, url)
	b, _ := dial(t, url)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, sensorFrame(t, "temp-1")))
	waitFor(t, "unauthorized counted", func() bool { return h.Stats().Unauthorized == 1 })

	token, err := creds.Issue("dashboard", "viewer", time.Minute)
	require.NoError(t, err)
	authFrame, err := model.EncodeAuth(token)
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, authFrame))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, sensorFrame(t, "temp-2")))

	// temp-1 was dropped, so the first frame b sees is temp-2.
	env := readEnvelope(t, b)
	reading, err := model.DecodeSensorUpdate(env)
	require.NoError(t, err)
	assert.Equal(t, "temp-2", reading.SensorID)

	assert.True(t, h.isAuthenticated(idA))
	assert.Equal(t, 1, h.Stats().Authenticated)
}

func TestHub_InvalidTokenClosesWithPolicyViolation(t *testing.T) {
	creds, err := auth.NewCredentials(testSecret)
	require.NoError(t, err)
	h, url := startHub(t, DefaultConfig(), creds, nil)

	a, _ := dial(t, url)

	authFrame, err := model.EncodeAuth("not-a-jwt")
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, authFrame))

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = a.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	waitFor(t, "client removed", func() bool { return h.Registry().Len() == 0 })
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	h, url := startHub(t, DefaultConfig(), nil, nil)

	a, _ := dial(t, url)
	_, idB := dial(t, url)
	waitFor(t, "two clients", func() bool { return h.Registry().Len() == 2 })

	a.Close()
	waitFor(t, "one client", func() bool { return h.Registry().Len() == 1 })
	assert.Equal(t, []string{idB}, h.Registry().IDs())
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h, url := startHub(t, DefaultConfig(), nil, nil)

	a, _ := dial(t, url)
	h.Shutdown()

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := a.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, h.Registry().Len())
}
