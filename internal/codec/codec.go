package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Frame is one inbound text frame as delivered by a transport.
type Frame struct {
	Data       []byte    // Raw frame bytes
	Source     string    // Origin: client ID, session URL or relay channel
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// Envelope is a decoded frame: its discriminator plus the untouched bytes.
// Payload decoding is left to whichever listener owns Type.
type Envelope struct {
	Type       string
	Raw        []byte
	Source     string
	ReceivedAt time.Time
}

// Decode validates raw as a JSON object with a non-empty string "type".
func Decode(raw []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, &DecodeError{Stage: StageEnvelope, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if fields == nil {
		// "null" unmarshals into a nil map without error
		return Envelope{}, &DecodeError{Stage: StageEnvelope, Err: ErrMalformed}
	}

	rawType, ok := fields["type"]
	if !ok {
		return Envelope{}, &DecodeError{Stage: StageEnvelope, Err: ErrMissingType}
	}

	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil || msgType == "" {
		return Envelope{}, &DecodeError{Stage: StageEnvelope, Err: ErrMissingType}
	}

	return Envelope{Type: msgType, Raw: raw}, nil
}

// DecodeFrame decodes f and carries over its source and receive time.
func DecodeFrame(f Frame) (Envelope, error) {
	env, err := Decode(f.Data)
	if err != nil {
		return Envelope{}, err
	}
	env.Source = f.Source
	env.ReceivedAt = f.ReceivedAt
	return env, nil
}

// Encode builds an outgoing frame from a type and a set of top-level fields.
// msgType always wins over a "type" key in fields.
func Encode(msgType string, fields map[string]any) ([]byte, error) {
	m := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["type"] = msgType

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return data, nil
}

// EncodeValue marshals v, which must encode to a JSON object, and stamps
// msgType onto it.
func EncodeValue(msgType string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("encode %s: value is not a JSON object", msgType)
	}

	typeJSON, _ := json.Marshal(msgType)
	fields["type"] = typeJSON

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return data, nil
}

// Fields decodes all top-level fields. Numbers are returned as json.Number so
// their text is preserved exactly as received.
func (e Envelope) Fields() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(e.Raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, &DecodeError{Stage: StagePayload, Type: e.Type, Err: err}
	}
	return fields, nil
}

// Unmarshal decodes the whole frame into v.
func (e Envelope) Unmarshal(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return &DecodeError{Stage: StagePayload, Type: e.Type, Err: err}
	}
	return nil
}
