package api

import (
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/version"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthResponse from GET /health
type HealthResponse struct {
	Status        string       `json:"status"`
	Version       version.Info `json:"version"`
	Clients       int          `json:"clients"`
	Authenticated int          `json:"authenticated"`
	Sensors       int          `json:"sensors"`
	Router        RouterStats  `json:"router"`
	Database      string       `json:"database"`
}

// RouterStats is the router section of HealthResponse.
type RouterStats struct {
	Received         int64 `json:"received"`
	Routed           int64 `json:"routed"`
	Dropped          int64 `json:"dropped"`
	DecodeErrors     int64 `json:"decode_errors"`
	ListenerFailures int64 `json:"listener_failures"`
	Subscriptions    int   `json:"subscriptions"`
	MailboxDepth     int   `json:"mailbox_depth"`
}

// ClientsResponse from GET /clients
type ClientsResponse struct {
	Clients []string `json:"clients"`
	Count   int      `json:"count"`
}

// SensorsResponse from GET /sensors
type SensorsResponse struct {
	Sensors []model.SensorReading `json:"sensors"`
}

// SensorResponse from GET /sensors/:id
type SensorResponse struct {
	Sensor model.SensorReading `json:"sensor"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
