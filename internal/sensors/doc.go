// Package sensors keeps the latest reading of every sensor seen on a router.
//
// A Store subscribes to sensor_update envelopes, replaces the stored reading
// per sensor id and notifies observers registered with OnUpdate. The hub
// answers sensor_request messages from it; clients use Request to ask a
// server for a sensor's current value.
package sensors
