package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/storetwin/internal/database"
	"github.com/rickgao/storetwin/internal/hub"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
	"github.com/rickgao/storetwin/internal/version"
)

// healthTimeout bounds the database ping on /health.
const healthTimeout = 2 * time.Second

// SensorSource serves /sensors. *sensors.Store implements it.
type SensorSource interface {
	All() []model.SensorReading
	Get(sensorID string) (model.SensorReading, bool)
	Len() int
}

// ServerDeps are the components behind the HTTP surface. Hub and Router are
// required; the rest may be nil.
type ServerDeps struct {
	Hub      *hub.Hub
	Router   *router.Router
	Sensors  SensorSource
	DB       database.Pinger
	Verifier hub.TokenVerifier // Guards /clients and /sensors when set
}

type server struct {
	deps   ServerDeps
	logger *slog.Logger
}

// NewServer builds the gin engine for the server.
func NewServer(deps ServerDeps, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{deps: deps, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/ws", gin.WrapF(deps.Hub.ServeWS))
	r.GET("/health", s.health)

	protected := r.Group("/")
	if deps.Verifier != nil {
		protected.Use(bearerAuth(deps.Verifier))
	}
	protected.GET("/clients", s.clients)
	protected.GET("/sensors", s.sensors)
	protected.GET("/sensors/:id", s.sensor)

	return r
}

func (s *server) health(c *gin.Context) {
	hs := s.deps.Hub.Stats()
	rs := s.deps.Router.Stats()

	resp := HealthResponse{
		Status:        StatusOK,
		Version:       version.Get(),
		Clients:       hs.Clients,
		Authenticated: hs.Authenticated,
		Router: RouterStats{
			Received:         rs.FramesReceived,
			Routed:           rs.FramesRouted,
			Dropped:          rs.FramesDropped,
			DecodeErrors:     rs.DecodeErrors,
			ListenerFailures: rs.ListenerFailures,
			Subscriptions:    rs.Subscriptions,
			MailboxDepth:     rs.Mailbox.Depth,
		},
		Database: "disabled",
	}
	if s.deps.Sensors != nil {
		resp.Sensors = s.deps.Sensors.Len()
	}
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		resp.Database = database.Health(ctx, s.deps.DB)
		cancel()
	}

	code := http.StatusOK
	if resp.Database != "ok" && resp.Database != "disabled" {
		resp.Status = StatusDegraded
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *server) clients(c *gin.Context) {
	ids := s.deps.Hub.Registry().IDs()
	c.JSON(http.StatusOK, ClientsResponse{Clients: ids, Count: len(ids)})
}

func (s *server) sensors(c *gin.Context) {
	readings := []model.SensorReading{}
	if s.deps.Sensors != nil {
		readings = s.deps.Sensors.All()
	}
	c.JSON(http.StatusOK, SensorsResponse{Sensors: readings})
}

func (s *server) sensor(c *gin.Context) {
	id := c.Param("id")
	if s.deps.Sensors != nil {
		if reading, ok := s.deps.Sensors.Get(id); ok {
			c.JSON(http.StatusOK, SensorResponse{Sensor: reading})
			return
		}
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "sensor not found: " + id})
}

// bearerAuth rejects requests without a valid "Bearer <token>" header.
func bearerAuth(v hub.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// requestLogger logs every request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		)
	}
}
