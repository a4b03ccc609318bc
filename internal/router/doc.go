// Package router implements the Event Router: a per-source dispatcher that
// decodes each inbound frame's envelope and fans it out to the listeners
// subscribed to its type.
//
// Unknown types are dropped silently. Malformed frames are counted, logged
// and reported to Config.OnError without affecting the next frame. A
// listener that errors or panics is isolated from the others.
//
// Typical use:
//
//	r := router.New(router.DefaultConfig(), logger)
//	router.On(r, model.TypeSensorUpdate, model.DecodeSensorUpdate, handle)
//	go r.Run(ctx)
//	r.Enqueue(codec.Frame{Data: raw, Source: clientID})
package router
