// Package httpserver exposes the WebSocket upgrade endpoint devices
// connect to, plus health and Prometheus metrics routes, on a gin engine.
package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/auth"
	voicesession "github.com/code-100-precent/lingecho-voice/internal/voice/session"
)

var (
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lingecho_connections_total",
		Help: "Total accepted device WebSocket connections.",
	})
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lingecho_sessions_active",
		Help: "Currently open device sessions.",
	})
)

func init() {
	prometheus.MustRegister(connectionsTotal, sessionsActive)
}

// SessionBuilder constructs per-connection dependencies once a device has
// upgraded to WebSocket; it is supplied by the process entry point, which
// owns provider construction and configuration.
type SessionBuilder func(ctx context.Context, conn *websocket.Conn, deviceID, clientID string) (*voicesession.Session, error)

// Server owns the gin engine, the handshake auth policy, and the
// upgrader used for device connections.
type Server struct {
	engine   *gin.Engine
	upgrader websocket.Upgrader
	build    SessionBuilder
	auth     *auth.Policy
	logger   *zap.Logger
}

// New builds a server with its routes registered; the listen address is
// given to Run.
// authPolicy may be nil, which behaves like a disabled policy.
func New(build SessionBuilder, authPolicy *auth.Policy, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		build:  build,
		auth:   authPolicy,
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/voice", s.handleUpgrade)
}

// handleUpgrade reads the handshake metadata from transport headers per
// §4.1/§6 — device-id and authorization: Bearer <token> — and rejects the
// connection before ever attempting the WebSocket upgrade.
func (s *Server) handleUpgrade(c *gin.Context) {
	deviceID := c.GetHeader("device-id")
	clientID := c.Query("client_id")
	token := bearerToken(c.GetHeader("authorization"))

	if s.auth != nil {
		if err := s.auth.Authorize(auth.HelloFrame{DeviceID: deviceID, Token: token}); err != nil {
			s.logger.Info("handshake rejected", zap.Error(err), zap.String("device_id", deviceID))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	connectionsTotal.Inc()
	sessionsActive.Inc()
	defer sessionsActive.Dec()

	sess, err := s.build(c.Request.Context(), conn, deviceID, clientID)
	if err != nil {
		s.logger.Warn("session build failed", zap.Error(err))
		conn.Close()
		return
	}
	sess.Run()
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value, returning "" if the header is absent or malformed.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// Run starts the HTTP server and blocks until ctx is cancelled, at which
// point it shuts down gracefully with a bounded timeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
