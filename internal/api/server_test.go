package api

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

	"github.com/rickgao/storetwin/internal/auth"
	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/hub"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
	"github.com/rickgao/storetwin/internal/sensors"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// testServer wires a hub, router and sensor store behind the gin engine.
func testServer(t *testing.T, modify func(*ServerDeps)) (*httptest.Server, ServerDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := router.New(router.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	store := sensors.NewStore(nil)
	store.Update(model.SensorReading{SensorID: "temp-1", Kind: "temperatura", Value: 21, Location: "zona-a"})

	h := hub.New(hub.DefaultConfig(), r, nil, store, nil)
	deps := ServerDeps{Hub: h, Router: r, Sensors: store}
	if modify != nil {
		modify(&deps)
	}

	server := httptest.NewServer(NewServer(deps, nil))
	t.Cleanup(func() {
		h.Shutdown()
		server.Close()
		cancel()
		<-done
	})
	return server, deps
}

func getJSON(t *testing.T, url string, header http.Header, v any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, vals := range header {
		req.Header[k] = vals
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	server, _ := testServer(t, nil)

	var resp HealthResponse
	code := getJSON(t, server.URL+"/health", nil, &resp)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "disabled", resp.Database)
	assert.Equal(t, 1, resp.Sensors)
	assert.Greater(t, resp.Router.Subscriptions, 0)
	assert.NotEmpty(t, resp.Version.Version)
}

func TestServer_HealthDegraded(t *testing.T) {
	server, _ := testServer(t, func(d *ServerDeps) {
		d.DB = fakePinger{err: errors.New("connection refused")}
	})

	var resp HealthResponse
	code := getJSON(t, server.URL+"/health", nil, &resp)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "error: connection refused", resp.Database)
}

func TestServer_WebSocketAndClients(t *testing.T) {
	server, _ := testServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := codec.Decode(data)
	require.NoError(t, err)
	welcome, err := model.DecodeWelcome(env)
	require.NoError(t, err)

	var resp ClientsResponse
	code := getJSON(t, server.URL+"/clients", nil, &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{welcome.ClientID}, resp.Clients)
	assert.Equal(t, 1, resp.Count)
}

func TestServer_Sensors(t *testing.T) {
	server, _ := testServer(t, nil)

	var all SensorsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sensors", nil, &all))
	require.Len(t, all.Sensors, 1)
	assert.Equal(t, "temp-1", all.Sensors[0].SensorID)

	var one SensorResponse
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/sensors/temp-1", nil, &one))
	assert.Equal(t, 21.0, one.Sensor.Value)

	var notFound ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/sensors/nope", nil, &notFound))
	assert.Equal(t, "sensor not found: nope", notFound.Error)
}

func TestServer_BearerAuth(t *testing.T) {
	creds, err := auth.NewCredentials("0123456789abcdef-api")
	require.NoError(t, err)
	server, _ := testServer(t, func(d *ServerDeps) { d.Verifier = creds })

	token, err := creds.Issue("ops", "admin", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		want    int
		wantErr string
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized, wantErr: "missing authorization header"},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized, wantErr: "invalid authorization header format"},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized, wantErr: "invalid token"},
		{name: "valid token", header: "Bearer " + token, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			var body map[string]any
			code := getJSON(t, server.URL+"/clients", header, &body)
			assert.Equal(t, tt.want, code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["error"])
			}
		})
	}

	// Health stays public.
	var health HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health", nil, &health))
}

func TestClient_AgainstServer(t *testing.T) {
	server, _ := testServer(t, nil)
	c := NewClient(server.URL, "", WithRetryPolicy(RetryPolicy{}))
	ctx := context.Background()

	health, err := c.GetHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, health.Status)

	ids, err := c.GetClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	readings, err := c.GetSensors(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	reading, err := c.GetSensor(ctx, "temp-1")
	require.NoError(t, err)
	assert.Equal(t, "zona-a", reading.Location)

	_, err = c.GetSensor(ctx, "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "sensor not found: nope", apiErr.Message)
}

func TestClient_GetHealthDegraded(t *testing.T) {
	server, _ := testServer(t, func(d *ServerDeps) {
		d.DB = fakePinger{err: errors.New("down")}
	})
	c := NewClient(server.URL, "")

	health, err := c.GetHealth(context.Background())
	require.Error(t, err)
	require.NotNil(t, health)
	assert.Equal(t, StatusDegraded, health.Status)
}
