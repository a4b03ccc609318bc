package router

import (
	"context"

	"github.com/rickgao/storetwin/internal/codec"
)

// Decoder is a stage-two payload decoder such as model.DecodeSensorUpdate.
type Decoder[T any] func(env codec.Envelope) (T, error)

// On subscribes a typed handler. The payload is decoded before fn runs; a
// decode failure is reported for that frame only and fn is not called.
func On[T any](r *Router, msgType string, decode Decoder[T], fn func(ctx context.Context, env codec.Envelope, v T) error) Subscription {
	return r.Subscribe(msgType, func(ctx context.Context, env codec.Envelope) error {
		v, err := decode(env)
		if err != nil {
			return err
		}
		return fn(ctx, env, v)
	})
}
