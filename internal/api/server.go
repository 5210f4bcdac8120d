package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/auth"
	"github.com/maxsfamily/stripgate/internal/device"
	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
	"github.com/maxsfamily/stripgate/internal/infrastructure/logging"
	"github.com/maxsfamily/stripgate/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Sessions is the part of the session cache the API uses.
type Sessions interface {
	Resolve(ctx context.Context, token string) (*session.Session, error)
	Put(s session.Session) (*session.Session, error)
	Evict(s *session.Session) bool
	UserIDs() []string
}

// Connections accepts controller WebSocket connections.
type Connections interface {
	// Serve blocks for the lifetime of the connection.
	Serve(w http.ResponseWriter, r *http.Request, deviceID string) error
	Count() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Sessions    Sessions
	Connections Connections

	// Optional.
	Operator  *auth.Operator
	AuditRepo audit.Repository
	Recorder  *audit.Recorder
	Hub       *Hub                            // If set, the server uses this hub instead of creating its own
	Health    func(ctx context.Context) error // Infrastructure health for /api/v1/health
	Version   string
}

// Server is the HTTP API server for the strip gateway.
//
// It manages the HTTP listener, routes, middleware and the operator event
// hub. The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	registry    *device.Registry
	sessions    Sessions
	connections Connections
	operator    *auth.Operator
	auditRepo   audit.Repository
	recorder    *audit.Recorder
	health      func(ctx context.Context) error
	version     string
	server      *http.Server
	hub         *Hub
	tickets     *ticketStore
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. When no hub is
// injected, New creates one and subscribes it to the registry.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session cache is required")
	}
	if deps.Connections == nil {
		return nil, fmt.Errorf("connection manager is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger.With("component", "api"),
		registry:    deps.Registry,
		sessions:    deps.Sessions,
		connections: deps.Connections,
		operator:    deps.Operator,
		auditRepo:   deps.AuditRepo,
		recorder:    deps.Recorder,
		health:      deps.Health,
		version:     deps.Version,
		hub:         deps.Hub,
		tickets:     newTicketStore(),
	}

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.registry.AddObserver(s.hub)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the event hub and ticket cleanup, builds the router, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		// WriteTimeout is left at zero: controller WebSockets are hijacked
		// and live far longer than any request. Handlers bound their own work.
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections. Hijacked WebSocket connections
// are not tracked by the HTTP server; the connection manager and hub close
// those.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}
