// Package relay feeds Redis pub/sub messages into an event router.
//
// Every payload published on a configured channel becomes one frame whose
// source is "redis:<channel>". Subscription failures are retried with
// exponential backoff until the context ends.
package relay
