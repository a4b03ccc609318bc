package codec

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformed    = errors.New("malformed frame")
	ErrMissingType  = errors.New("missing or non-string type")
	ErrMissingField = errors.New("missing required field")
)

// Decode stages.
const (
	StageEnvelope = "envelope"
	StagePayload  = "payload"
)

// DecodeError describes a frame that could not be decoded.
type DecodeError struct {
	Stage string // StageEnvelope or StagePayload
	Type  string // Discriminator, empty when the envelope itself failed
	Field string // Offending field for payload errors, if known
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Type == "":
		return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
	case e.Field == "":
		return fmt.Sprintf("decode %s %q: %v", e.Stage, e.Type, e.Err)
	default:
		return fmt.Sprintf("decode %s %q field %s: %v", e.Stage, e.Type, e.Field, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingField returns a payload DecodeError for an absent required field.
func MissingField(msgType, field string) *DecodeError {
	return &DecodeError{
		Stage: StagePayload,
		Type:  msgType,
		Field: field,
		Err:   ErrMissingField,
	}
}
