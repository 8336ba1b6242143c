package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/authz"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/idp"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/metrics"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lexgate-core/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// sweepInterval is how often expired refresh tokens are deleted.
const sweepInterval = time.Hour

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Session  config.SessionConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Auth     *auth.Service
	Resolver *identity.Resolver
	Engine   *authz.Engine
	IdP      *idp.Flow // optional; without it the IdP routes report failure

	AuditRepo audit.Repository // optional
	Metrics   *metrics.Metrics // optional
	Influx    *influxdb.Client // optional
	MQTT      *mqtt.Client     // optional

	Version string
}

// Server is the HTTP API server for LexGate Core.
//
// It manages the HTTP listener, routes, middleware, the audit writer and the
// refresh-token sweeper. The server is created with New() and started with
// Start().
type Server struct {
	cfg        config.APIConfig
	sessionCfg config.SessionConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger

	auth     *auth.Service
	bridge   *session.Bridge
	resolver *identity.Resolver
	engine   *authz.Engine
	idp      *idp.Flow

	auditRepo audit.Repository
	auditCh   chan *audit.AuditLog
	metrics   *metrics.Metrics
	influx    *influxdb.Client
	mqtt      *mqtt.Client
	limiter   *ipLimiter

	version string

	routerOnce sync.Once
	router     http.Handler

	server *http.Server
	cancel context.CancelFunc // cancels background goroutines on Close()
	wg     sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("authorization engine is required")
	}

	s := &Server{
		cfg:        deps.Config,
		sessionCfg: deps.Session,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		auth:       deps.Auth,
		bridge:     session.NewBridge(deps.Auth),
		resolver:   deps.Resolver,
		engine:     deps.Engine,
		idp:        deps.IdP,
		auditRepo:  deps.AuditRepo,
		metrics:    deps.Metrics,
		influx:     deps.Influx,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		auditCh:    make(chan *audit.AuditLog, auditChanSize),
	}

	rl := deps.Security.RateLimit
	if rl.Enabled && rl.RequestsPerMinute > 0 {
		proxies, err := parseTrustedProxies(rl.TrustedProxies)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		s.limiter = newIPLimiter(rl.RequestsPerMinute, rl.Burst)
		s.limiter.proxies = proxies
	}
	return s, nil
}

// Handler returns the fully-wired router. It is built once.
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() {
		s.router = s.buildRouter()
	})
	return s.router
}

// Start begins listening for HTTP connections.
//
// It launches the audit writer, the refresh-token sweeper and the rate
// limiter cleanup, then starts the HTTP listener in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.goBackground(func() { s.drainAuditLog(srvCtx) })
	s.goBackground(func() { s.sweepLoop(srvCtx) })
	if s.limiter != nil {
		s.goBackground(func() { s.limiter.cleanupLoop(srvCtx) })
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
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

func (s *Server) goBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then stops
// the background goroutines after the audit channel has been drained.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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

// sweepLoop deletes expired refresh tokens once at start and then hourly.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		n, err := s.auth.SweepExpired(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Error("refresh token sweep failed", "error", err)
		case n > 0:
			s.logger.Info("expired refresh tokens deleted", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
