package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/storetwin/internal/codec"
)

// isoLocalLayout accepts ISO-8601 timestamps without a zone, as produced by
// Python's datetime.isoformat(). They are interpreted as UTC.
const isoLocalLayout = "2006-01-02T15:04:05.999999999"

// DecodeAuth decodes an auth message.
func DecodeAuth(env codec.Envelope) (Auth, error) {
	var wire authWire
	if err := env.Unmarshal(&wire); err != nil {
		return Auth{}, err
	}
	if wire.Token == nil {
		return Auth{}, codec.MissingField(env.Type, "token")
	}
	return Auth{Token: *wire.Token}, nil
}

// DecodeWelcome decodes a welcome message.
func DecodeWelcome(env codec.Envelope) (Welcome, error) {
	var wire welcomeWire
	if err := env.Unmarshal(&wire); err != nil {
		return Welcome{}, err
	}
	if wire.ClientID == nil {
		return Welcome{}, codec.MissingField(env.Type, "client_id")
	}
	return Welcome{ClientID: *wire.ClientID}, nil
}

// DecodeSensorRequest decodes a sensor_request message.
func DecodeSensorRequest(env codec.Envelope) (SensorRequest, error) {
	var wire sensorRequestWire
	if err := env.Unmarshal(&wire); err != nil {
		return SensorRequest{}, err
	}
	if wire.Sensor == nil {
		return SensorRequest{}, codec.MissingField(env.Type, "sensor")
	}
	return SensorRequest{Sensor: *wire.Sensor}, nil
}

// DecodeSensorUpdate decodes a sensor_update message. All of data.sensor,
// data.tipo, data.valor, data.ubicacion and data.timestamp are required.
func DecodeSensorUpdate(env codec.Envelope) (SensorReading, error) {
	var wire sensorUpdateWire
	if err := env.Unmarshal(&wire); err != nil {
		return SensorReading{}, err
	}

	d := wire.Data
	switch {
	case d == nil:
		return SensorReading{}, codec.MissingField(env.Type, "data")
	case d.Sensor == nil:
		return SensorReading{}, codec.MissingField(env.Type, "data.sensor")
	case d.Tipo == nil:
		return SensorReading{}, codec.MissingField(env.Type, "data.tipo")
	case d.Valor == nil:
		return SensorReading{}, codec.MissingField(env.Type, "data.valor")
	case d.Ubicacion == nil:
		return SensorReading{}, codec.MissingField(env.Type, "data.ubicacion")
	case d.Timestamp == nil:
		return SensorReading{}, codec.MissingField(env.Type, "data.timestamp")
	}

	ts, err := ParseTimestamp(*d.Timestamp)
	if err != nil {
		return SensorReading{}, &codec.DecodeError{
			Stage: codec.StagePayload,
			Type:  env.Type,
			Field: "data.timestamp",
			Err:   err,
		}
	}

	return SensorReading{
		SensorID:  *d.Sensor,
		Kind:      *d.Tipo,
		Value:     *d.Valor,
		Unit:      d.Unidad,
		Status:    d.Estado,
		Location:  *d.Ubicacion,
		Timestamp: ts,
	}, nil
}

// DecodeDomainEvent decodes security, inventory, customer and layout events.
// Only the type is required; Event and Data may be empty.
func DecodeDomainEvent(env codec.Envelope) (DomainEvent, error) {
	var ev DomainEvent
	if err := env.Unmarshal(&ev); err != nil {
		return DomainEvent{}, err
	}
	ev.Type = env.Type
	return ev, nil
}

// DecodeData decodes the event-specific data object into v.
func (e DomainEvent) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return codec.MissingField(e.Type, "data")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return &codec.DecodeError{Stage: codec.StagePayload, Type: e.Type, Field: "data", Err: err}
	}
	return nil
}

// DecodeLayoutWarning decodes a layout_warning message.
func DecodeLayoutWarning(env codec.Envelope) (LayoutWarning, error) {
	var w LayoutWarning
	if err := env.Unmarshal(&w); err != nil {
		return LayoutWarning{}, err
	}
	return w, nil
}

// DecodeStatusUpdate decodes a status_update message.
func DecodeStatusUpdate(env codec.Envelope) (StatusUpdate, error) {
	var s StatusUpdate
	if err := env.Unmarshal(&s); err != nil {
		return StatusUpdate{}, err
	}
	return s, nil
}

// DecodeInitialData decodes an initial_data message. Data is required.
func DecodeInitialData(env codec.Envelope) (InitialData, error) {
	var d InitialData
	if err := env.Unmarshal(&d); err != nil {
		return InitialData{}, err
	}
	if len(d.Data) == 0 || string(d.Data) == "null" {
		return InitialData{}, codec.MissingField(env.Type, "data")
	}
	return d, nil
}

// ParseTimestamp parses an ISO-8601 timestamp with or without a zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(isoLocalLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: not ISO-8601", s)
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Encoders
// -----------------------------------------------------------------------------

// EncodeAuth builds an auth frame.
func EncodeAuth(token string) ([]byte, error) {
	return codec.EncodeValue(TypeAuth, Auth{Token: token})
}

// EncodeWelcome builds a welcome frame.
func EncodeWelcome(clientID string) ([]byte, error) {
	return codec.EncodeValue(TypeWelcome, Welcome{ClientID: clientID})
}

// EncodeSensorRequest builds a sensor_request frame.
func EncodeSensorRequest(sensorID string) ([]byte, error) {
	return codec.EncodeValue(TypeSensorRequest, SensorRequest{Sensor: sensorID})
}

// EncodeSensorUpdate builds a sensor_update frame in the wire layout.
func EncodeSensorUpdate(r SensorReading) ([]byte, error) {
	data := map[string]any{
		"sensor":    r.SensorID,
		"tipo":      r.Kind,
		"valor":     r.Value,
		"ubicacion": r.Location,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if r.Unit != "" {
		data["unidad"] = r.Unit
	}
	if r.Status != "" {
		data["estado"] = r.Status
	}
	return codec.Encode(TypeSensorUpdate, map[string]any{"data": data})
}

// EncodeStatusUpdate builds a status_update frame.
func EncodeStatusUpdate(at time.Time, data any) ([]byte, error) {
	return codec.Encode(TypeStatusUpdate, map[string]any{
		"timestamp": at.UnixMilli(),
		"data":      data,
	})
}

// EncodeInitialData builds an initial_data frame.
func EncodeInitialData(data any) ([]byte, error) {
	return codec.Encode(TypeInitialData, map[string]any{"data": data})
}
