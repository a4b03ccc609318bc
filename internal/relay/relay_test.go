package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/storetwin/internal/codec"
)

type captureSink struct {
	mu     sync.Mutex
	frames []codec.Frame
	reject bool
}

func (s *captureSink) Enqueue(f codec.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *captureSink) Frames() []codec.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]codec.Frame(nil), s.frames...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// startRelay runs a relay against addr until the test ends.
func startRelay(t *testing.T, addr string, sink Sink) *Relay {
	t.Helper()
	r := New(Config{
		Addr:         addr,
		Channels:     []string{"store:sensors"},
		DialTimeout:  200 * time.Millisecond,
		RetryInitial: 10 * time.Millisecond,
		RetryMax:     50 * time.Millisecond,
	}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
		r.Close()
	})
	return r
}

func TestFrame(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := &redis.Message{Channel: "store:sensors", Payload: `{"type":"sensor_update"}`}

	f := Frame(msg, at)

	if string(f.Data) != msg.Payload {
		t.Errorf("Data = %s, want %s", f.Data, msg.Payload)
	}
	if f.Source != "redis:store:sensors" {
		t.Errorf("Source = %s, want redis:store:sensors", f.Source)
	}
	if !f.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %v, want %v", f.ReceivedAt, at)
	}
}

func TestRelay_RelayCountsAndRejects(t *testing.T) {
	sink := &captureSink{}
	r := New(Config{Addr: "localhost:0", Channels: []string{"c"}}, sink, nil)
	defer r.Close()

	r.relay(&redis.Message{Channel: "c", Payload: `{"type":"a"}`})
	sink.reject = true
	r.relay(&redis.Message{Channel: "c", Payload: `{"type":"b"}`})

	if len(sink.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(sink.frames))
	}
	stats := r.Stats()
	if stats.Received != 2 {
		t.Errorf("Received = %d, want 2", stats.Received)
	}
	if stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", stats.Rejected)
	}
}

func TestRelay_RunWithoutChannels(t *testing.T) {
	r := New(Config{Addr: "localhost:0"}, &captureSink{}, nil)
	defer r.Close()

	if err := r.Run(context.Background()); !errors.Is(err, ErrNoChannels) {
		t.Errorf("Run() error = %v, want ErrNoChannels", err)
	}
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	// Nothing listens on port 1, so every subscription attempt fails and is
	// retried until the context ends.
	r := New(Config{
		Addr:         "127.0.0.1:1",
		Channels:     []string{"c"},
		DialTimeout:  50 * time.Millisecond,
		RetryInitial: 10 * time.Millisecond,
		RetryMax:     20 * time.Millisecond,
	}, &captureSink{}, nil)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Run() error = %v, want DeadlineExceeded", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after context deadline")
	}
	if got := r.Stats().Subscriptions; got != 0 {
		t.Errorf("Subscriptions = %d, want 0", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RetryInitial != 100*time.Millisecond {
		t.Errorf("RetryInitial = %v, want 100ms", cfg.RetryInitial)
	}
	if cfg.RetryMax != 5*time.Second {
		t.Errorf("RetryMax = %v, want 5s", cfg.RetryMax)
	}
}

func TestRelay_RunRelaysPublishedMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := &captureSink{}
	r := startRelay(t, mr.Addr(), sink)

	payload := `{"type":"sensor_update","data":{"sensor":"t1"}}`
	waitFor(t, "subscriber", func() bool { return mr.Publish("store:sensors", payload) == 1 })
	waitFor(t, "relayed frame", func() bool { return len(sink.Frames()) == 1 })

	f := sink.Frames()[0]
	if string(f.Data) != payload {
		t.Errorf("Data = %s, want %s", f.Data, payload)
	}
	if f.Source != "redis:store:sensors" {
		t.Errorf("Source = %s, want redis:store:sensors", f.Source)
	}
	if f.ReceivedAt.IsZero() {
		t.Error("ReceivedAt is zero")
	}

	stats := r.Stats()
	if stats.Received != 1 {
		t.Errorf("Received = %d, want 1", stats.Received)
	}
	if stats.Subscriptions != 1 {
		t.Errorf("Subscriptions = %d, want 1", stats.Subscriptions)
	}
}

func TestRelay_RunSubscribesOnceRedisIsUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	sink := &captureSink{}
	r := startRelay(t, addr, sink)

	// Let a few subscribe attempts fail.
	time.Sleep(100 * time.Millisecond)
	if n := r.Stats().Subscriptions; n != 0 {
		t.Fatalf("Subscriptions = %d while redis is down, want 0", n)
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	payload := `{"type":"security_event","event":"new_alert"}`
	waitFor(t, "subscriber after restart", func() bool { return mr.Publish("store:sensors", payload) == 1 })
	waitFor(t, "relayed frame", func() bool { return len(sink.Frames()) == 1 })

	if got := string(sink.Frames()[0].Data); got != payload {
		t.Errorf("Data = %s, want %s", got, payload)
	}
	if n := r.Stats().Subscriptions; n < 1 {
		t.Errorf("Subscriptions = %d, want >= 1", n)
	}
}
