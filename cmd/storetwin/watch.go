package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/config"
	"github.com/rickgao/storetwin/internal/connection"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
	"github.com/rickgao/storetwin/internal/sensors"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "connect to a hub and log every event",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "override client.url"},
			&cli.StringFlag{Name: "token", Usage: "override client.token", Sources: cli.EnvVars("STORETWIN_TOKEN")},
			&cli.StringSliceFlag{Name: "request", Usage: "sensor id to request after connecting (repeatable)"},
			&cli.BoolFlag{Name: "reconnect", Usage: "redial after the connection drops"},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	sessCfg := sessionConfig(cfg.Client)
	if url := cmd.String("url"); url != "" {
		sessCfg.URL = url
	}
	if token := cmd.String("token"); token != "" {
		sessCfg.Token = token
	}
	if cmd.Bool("reconnect") {
		sessCfg.Reconnect = true
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rtr := router.New(router.Config{
		MailboxSize:  cfg.Router.MailboxSize,
		MailboxLimit: cfg.Router.MailboxLimit,
	}, logger.With("component", "router"))
	sessCfg.Executor = rtr

	store := sensors.NewStore(logger.With("component", "sensors"))
	store.Attach(rtr)
	store.OnUpdate(func(c sensors.Change) {
		logger.Info("sensor",
			"sensor", c.Current.SensorID,
			"kind", c.Current.Kind,
			"value", c.Current.Value,
			"unit", c.Current.Unit,
			"location", c.Current.Location,
			"new", c.New,
		)
	})
	subscribeLoggers(rtr, logger)

	requests := cmd.StringSlice("request")
	var sess *connection.Session
	sess = connection.NewSession(sessCfg, connection.Handlers{
		OnConnected: func() {
			logger.Info("connected", "url", sessCfg.URL)
			for _, id := range requests {
				if err := sensors.Request(sess, id); err != nil {
					logger.Warn("sensor request failed", "sensor", id, "error", err)
				}
			}
		},
		// Runs on the router goroutine as a posted function.
		OnMessage: func(f codec.Frame) {
			_ = rtr.Dispatch(ctx, f)
		},
		OnClosed: func(ev connection.CloseEvent) {
			logger.Warn("connection closed", "code", ev.Code, "reason", ev.Reason, "clean", ev.Clean)
			if !sessCfg.Reconnect {
				cancel()
			}
		},
	}, logger.With("component", "session"))

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	err = rtr.Run(ctx)
	sess.Close()

	st := rtr.Stats()
	logger.Info("watch stopped",
		"received", st.FramesReceived,
		"routed", st.FramesRouted,
		"decode_errors", st.DecodeErrors,
		"sensors", store.Len(),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sessionConfig maps client config onto a session.
func sessionConfig(c config.ClientConfig) connection.Config {
	cfg := connection.DefaultConfig()
	cfg.URL = c.URL
	cfg.Token = c.Token
	cfg.Reconnect = c.Reconnect
	if c.ReconnectBaseDelay > 0 {
		cfg.ReconnectBaseWait = c.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay > 0 {
		cfg.ReconnectMaxWait = c.ReconnectMaxDelay
	}
	if c.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = c.HandshakeTimeout
	}
	if c.PingInterval > 0 {
		cfg.PingInterval = c.PingInterval
	}
	if c.PongTimeout > 0 {
		cfg.PongTimeout = c.PongTimeout
	}
	return cfg
}

// subscribeLoggers logs every known type except sensor_update, which the
// sensor store reports.
func subscribeLoggers(r *router.Router, logger *slog.Logger) {
	router.On(r, model.TypeWelcome, model.DecodeWelcome, func(_ context.Context, _ codec.Envelope, w model.Welcome) error {
		logger.Info("welcome", "client_id", w.ClientID)
		return nil
	})
	router.On(r, model.TypeStatusUpdate, model.DecodeStatusUpdate, func(_ context.Context, _ codec.Envelope, s model.StatusUpdate) error {
		logger.Debug("status", "timestamp", s.Timestamp, "bytes", len(s.Data))
		return nil
	})
	router.On(r, model.TypeInitialData, model.DecodeInitialData, func(_ context.Context, _ codec.Envelope, d model.InitialData) error {
		logger.Info("initial data", "bytes", len(d.Data))
		return nil
	})
	router.On(r, model.TypeLayoutWarning, model.DecodeLayoutWarning, func(_ context.Context, _ codec.Envelope, w model.LayoutWarning) error {
		logger.Warn("layout warning", "zone", w.ZoneID)
		return nil
	})

	for _, t := range []string{
		model.TypeSecurityEvent,
		model.TypeInventoryEvent,
		model.TypeCustomerEvent,
		model.TypeLayoutEvent,
	} {
		router.On(r, t, model.DecodeDomainEvent, func(_ context.Context, _ codec.Envelope, ev model.DomainEvent) error {
			return logDomainEvent(logger, ev)
		})
	}
}

func logDomainEvent(logger *slog.Logger, ev model.DomainEvent) error {
	switch ev.Event {
	case model.EventMotionDetected:
		var m model.MotionDetected
		if err := ev.DecodeData(&m); err != nil {
			return err
		}
		logger.Info("motion detected", "zone", m.Zone, "camera", m.Camera, "sensor", m.Sensor)
	case model.EventNewAlert:
		var a model.SecurityAlert
		if err := ev.DecodeData(&a); err != nil {
			return err
		}
		logger.Warn("security alert", "id", a.ID, "zone", a.Zone, "severity", a.Severity, "message", a.Message)
	case model.EventStockUpdated:
		var s model.StockUpdate
		if err := ev.DecodeData(&s); err != nil {
			return err
		}
		logger.Info("stock updated", "product", s.ProductID, "old", s.OldStock, "new", s.NewStock, "reason", s.Reason)
	case model.EventReorderNeeded:
		var o model.ReorderNeeded
		if err := ev.DecodeData(&o); err != nil {
			return err
		}
		logger.Warn("reorder needed", "product", o.ProductID, "stock", o.CurrentStock, "suggested", o.SuggestedOrder)
	case model.EventCustomerMoved:
		var m model.CustomerMoved
		if err := ev.DecodeData(&m); err != nil {
			return err
		}
		logger.Info("customer moved", "customer", m.CustomerID, "from", m.FromZone, "to", m.ToZone)
	default:
		logger.Info("event", "type", ev.Type, "event", ev.Event)
	}
	return nil
}
