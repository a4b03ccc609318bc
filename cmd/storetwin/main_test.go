package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/config"
	"github.com/rickgao/storetwin/internal/model"
)

func TestHubConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RequireAuth = true
	cfg.Server.RateLimit = -1
	cfg.Server.SendBuffer = 32

	hc := hubConfig(cfg.Server)

	if !hc.RequireAuth {
		t.Error("RequireAuth = false, want true")
	}
	if hc.RateLimit != -1 {
		t.Errorf("RateLimit = %v, want -1", hc.RateLimit)
	}
	if hc.SendBufferSize != 32 {
		t.Errorf("SendBufferSize = %d, want 32", hc.SendBufferSize)
	}
	if hc.PongTimeout != cfg.Server.PongTimeout {
		t.Errorf("PongTimeout = %v, want %v", hc.PongTimeout, cfg.Server.PongTimeout)
	}
	if len(hc.ForwardTypes) == 0 {
		t.Error("ForwardTypes is empty, want hub defaults")
	}
}

func TestSessionConfig(t *testing.T) {
	sc := sessionConfig(config.ClientConfig{
		URL:                "ws://hub:8080/ws",
		Token:              "tok",
		Reconnect:          true,
		ReconnectBaseDelay: 2 * time.Second,
	})

	if sc.URL != "ws://hub:8080/ws" {
		t.Errorf("URL = %q", sc.URL)
	}
	if sc.Token != "tok" {
		t.Errorf("Token = %q, want tok", sc.Token)
	}
	if !sc.Reconnect {
		t.Error("Reconnect = false, want true")
	}
	if sc.ReconnectBaseWait != 2*time.Second {
		t.Errorf("ReconnectBaseWait = %v, want 2s", sc.ReconnectBaseWait)
	}
	if sc.ReconnectMaxWait != 60*time.Second {
		t.Errorf("ReconnectMaxWait = %v, want default 60s", sc.ReconnectMaxWait)
	}
}

func TestLogDomainEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		data    string
		want    string
		wantErr bool
	}{
		{
			name:  "motion",
			event: model.EventMotionDetected,
			data:  `{"zone":"z1","camera":"cam-1","sensor":"mov-1","timestamp":1}`,
			want:  "motion detected",
		},
		{
			name:  "reorder",
			event: model.EventReorderNeeded,
			data:  `{"productId":"p1","currentStock":2,"reorderPoint":5,"suggestedOrder":10}`,
			want:  "reorder needed",
		},
		{
			name:  "unknown sub-kind",
			event: "customer_left",
			data:  `{}`,
			want:  "event",
		},
		{
			name:    "missing data",
			event:   model.EventStockUpdated,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			ev := model.DomainEvent{Type: model.TypeInventoryEvent, Event: tt.event}
			if tt.data != "" {
				ev.Data = json.RawMessage(tt.data)
			}

			err := logDomainEvent(logger, ev)
			if tt.wantErr {
				var decErr *codec.DecodeError
				if !errors.As(err, &decErr) {
					t.Fatalf("error = %v, want *codec.DecodeError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("logDomainEvent() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled at warn level")
	}
}
