package model

import (
	"encoding/json"
	"time"
)

// Message types observed on the store event stream. The list is not closed:
// routers accept any discriminator.
const (
	TypeAuth           = "auth"
	TypeWelcome        = "welcome"
	TypeSensorUpdate   = "sensor_update"
	TypeSensorRequest  = "sensor_request"
	TypeSecurityEvent  = "security_event"
	TypeInventoryEvent = "inventory_event"
	TypeCustomerEvent  = "customer_event"
	TypeLayoutEvent    = "layout_event"
	TypeLayoutWarning  = "layout_warning"
	TypeStatusUpdate   = "status_update"
	TypeInitialData    = "initial_data"
)

// KnownTypes returns every message type this package can decode.
func KnownTypes() []string {
	return []string{
		TypeAuth,
		TypeWelcome,
		TypeSensorUpdate,
		TypeSensorRequest,
		TypeSecurityEvent,
		TypeInventoryEvent,
		TypeCustomerEvent,
		TypeLayoutEvent,
		TypeLayoutWarning,
		TypeStatusUpdate,
		TypeInitialData,
	}
}

// -----------------------------------------------------------------------------
// Session Types
// -----------------------------------------------------------------------------

// Auth is sent by a client right after connecting.
type Auth struct {
	Token string `json:"token"`
}

// Welcome is sent by the server to a newly registered client.
type Welcome struct {
	ClientID string `json:"client_id"`
}

// -----------------------------------------------------------------------------
// Sensor Types
// -----------------------------------------------------------------------------

// SensorReading is a single decoded sensor_update.
type SensorReading struct {
	SensorID  string    `json:"sensor_id"`
	Kind      string    `json:"kind"`   // temperatura, humedad, presion, movimiento, stock
	Value     float64   `json:"value"`  // As received, no unit conversion
	Unit      string    `json:"unit"`   // Optional
	Status    string    `json:"status"` // Optional
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// SensorRequest asks the peer for the latest reading of one sensor.
type SensorRequest struct {
	Sensor string `json:"sensor"`
}

// -----------------------------------------------------------------------------
// Store Event Types
// -----------------------------------------------------------------------------

// DomainEvent is the shared shape of security, inventory, customer and layout
// events: a sub-kind in Event and an event-specific Data object.
type DomainEvent struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Security sub-kinds.
const (
	EventMotionDetected = "motion_detected"
	EventNewAlert       = "new_alert"
)

// Inventory sub-kinds.
const (
	EventStockUpdated    = "stock_updated"
	EventReorderNeeded   = "reorder_needed"
	EventStockPrediction = "stock_prediction"
)

// Customer sub-kinds.
const (
	EventCustomerEntered     = "customer_entered"
	EventCustomerMoved       = "customer_moved"
	EventCustomerInteraction = "customer_interaction"
	EventCustomerPurchase    = "customer_purchase"
	EventCustomerLeft        = "customer_left"
)

// EventObjectAdded is the layout_event sub-kind for a placed object.
const EventObjectAdded = "object_added"

// MotionDetected is the data of a motion_detected security event.
type MotionDetected struct {
	Zone      string `json:"zone"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	Camera    string `json:"camera"`
	Sensor    string `json:"sensor"`
}

// SecurityAlert is the data of a new_alert security event.
type SecurityAlert struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Zone      string `json:"zone"`
	Message   string `json:"message"`
	Severity  string `json:"severity"` // low, medium, high
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// StockUpdate is the data of a stock_updated inventory event.
type StockUpdate struct {
	ProductID string `json:"productId"`
	OldStock  int    `json:"oldStock"`
	NewStock  int    `json:"newStock"`
	Change    int    `json:"change"`
	Reason    string `json:"type"` // manual, sale, restock
}

// ReorderNeeded is the data of a reorder_needed inventory event.
type ReorderNeeded struct {
	ProductID      string `json:"productId"`
	CurrentStock   int    `json:"currentStock"`
	ReorderPoint   int    `json:"reorderPoint"`
	SuggestedOrder int    `json:"suggestedOrder"`
}

// CustomerMoved is the data of a customer_moved customer event.
type CustomerMoved struct {
	CustomerID string `json:"customerId"`
	FromZone   string `json:"fromZone"`
	ToZone     string `json:"toZone"`
	Timestamp  int64  `json:"timestamp"`
}

// LayoutWarning reports a zone whose evacuation routes failed validation.
type LayoutWarning struct {
	ZoneID     string          `json:"zoneId"`
	Validation json.RawMessage `json:"validation"`
}

// StatusUpdate is the periodic whole-store status push.
type StatusUpdate struct {
	Timestamp int64           `json:"timestamp"` // ms since epoch
	Data      json.RawMessage `json:"data"`
}

// InitialData is the whole-store snapshot a server sends to each new client
// right after its welcome.
type InitialData struct {
	Data json.RawMessage `json:"data"`
}

// Wire types for JSON parsing

// sensorUpdateWire is the wire format for sensor_update messages.
// Pointers distinguish absent fields from zero values.
type sensorUpdateWire struct {
	Data *struct {
		Sensor    *string  `json:"sensor"`
		Tipo      *string  `json:"tipo"`
		Valor     *float64 `json:"valor"`
		Ubicacion *string  `json:"ubicacion"`
		Timestamp *string  `json:"timestamp"`
		Unidad    string   `json:"unidad"`
		Estado    string   `json:"estado"`
	} `json:"data"`
}

// authWire is the wire format for auth messages.
type authWire struct {
	Token *string `json:"token"`
}

// welcomeWire is the wire format for welcome messages.
type welcomeWire struct {
	ClientID *string `json:"client_id"`
}

// sensorRequestWire is the wire format for sensor_request messages.
type sensorRequestWire struct {
	Sensor *string `json:"sensor"`
}
