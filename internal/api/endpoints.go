package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/storetwin/internal/model"
)

// GetHealth fetches GET /health without retrying. A degraded server
// answers 503 with a health body; that body is returned together with the
// *APIError.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse

	body, err := c.send(ctx, http.MethodGet, "/health")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable &&
			json.Unmarshal(apiErr.Body, &resp) == nil {
			return &resp, err
		}
		return nil, err
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode /health: %w", err)
	}
	return &resp, nil
}

// GetClients fetches the connected client ids.
func (c *Client) GetClients(ctx context.Context) ([]string, error) {
	var resp ClientsResponse
	if err := c.getJSON(ctx, "/clients", &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

// GetSensors fetches every latest sensor reading.
func (c *Client) GetSensors(ctx context.Context) ([]model.SensorReading, error) {
	var resp SensorsResponse
	if err := c.getJSON(ctx, "/sensors", &resp); err != nil {
		return nil, err
	}
	return resp.Sensors, nil
}

// GetSensor fetches one sensor's latest reading.
func (c *Client) GetSensor(ctx context.Context, sensorID string) (*model.SensorReading, error) {
	var resp SensorResponse
	if err := c.getJSON(ctx, "/sensors/"+url.PathEscape(sensorID), &resp); err != nil {
		return nil, err
	}
	return &resp.Sensor, nil
}
