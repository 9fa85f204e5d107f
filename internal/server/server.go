package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/go-bundle-host/pkg/config"
	"github.com/sirosfoundation/go-bundle-host/pkg/middleware"
)

// Provider is a deployed module that serves everything below its context
// path. The handler sees request paths relative to that context path.
type Provider interface {
	// Name returns the module name for logging
	Name() string

	// ContextPath returns the URL prefix, "/" for the root.
	ContextPath() string

	// Handler serves the module.
	Handler() http.Handler
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPAddress string
	HTTPPort    int

	// Admin server settings
	AdminPort      int
	AdminToken     string
	AdminRateLimit config.AttemptLimitConfig

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	LoggingLevel string

	// Gatherer backs GET /metrics on the admin server; nil disables it.
	Gatherer prometheus.Gatherer

	// State reports the host lifecycle state on the status endpoint.
	State func() string

	// Inventory is served on GET /admin/modules.
	Inventory func() any
}

// NewServerConfig maps the process configuration onto the server.
func NewServerConfig(cfg *config.Config, port int) *ServerConfig {
	return &ServerConfig{
		HTTPAddress:    cfg.Server.Host,
		HTTPPort:       port,
		AdminPort:      cfg.Server.AdminPort,
		AdminToken:     cfg.Server.AdminToken,
		AdminRateLimit: cfg.Server.AdminRateLimit,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		LoggingLevel:   cfg.Logging.Level,
	}
}

// StatusResponse is served on GET /admin/status.
type StatusResponse struct {
	Status     string   `json:"status"`
	Service    string   `json:"service"`
	InstanceID string   `json:"instance_id"`
	State      string   `json:"state,omitempty"`
	Modules    []string `json:"modules"`
}

// Manager owns the HTTP and admin servers.
type Manager struct {
	cfg        *ServerConfig
	logger     *zap.Logger
	instanceID string

	providers []Provider

	httpServer  *http.Server
	adminServer *http.Server
	httpLn      net.Listener
	adminLn     net.Listener

	done    chan struct{}
	errMu   sync.Mutex
	err     error
	started bool
}

// NewManager creates a new server manager
func NewManager(cfg *ServerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		providers:  make([]Provider, 0),
		done:       make(chan struct{}),
	}
}

// AddProvider registers a module. Call this before Start. Two providers
// may not share a context path.
func (m *Manager) AddProvider(p Provider) error {
	if m.started {
		return errors.New("cannot add provider after start")
	}
	for _, existing := range m.providers {
		if existing.ContextPath() == p.ContextPath() {
			return fmt.Errorf("context path %q of %s already used by %s", p.ContextPath(), p.Name(), existing.Name())
		}
	}
	m.providers = append(m.providers, p)
	m.logger.Debug("Added provider",
		zap.String("name", p.Name()),
		zap.String("context_path", p.ContextPath()))
	return nil
}

// Providers returns the registered providers in registration order.
func (m *Manager) Providers() []Provider {
	out := make([]Provider, len(m.providers))
	copy(out, m.providers)
	return out
}

// Handler returns the context-path dispatcher over all providers.
func (m *Manager) Handler() http.Handler {
	return newDispatcher(m.providers)
}

// Start binds all listeners and serves in the background. Bind failures
// are returned before anything is served.
func (m *Manager) Start(ctx context.Context) error {
	if m.started {
		return errors.New("server already started")
	}

	ConfigureGin(m.cfg.LoggingLevel)

	httpAddr := net.JoinHostPort(m.cfg.HTTPAddress, fmt.Sprint(m.cfg.HTTPPort))
	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind HTTP server on %s: %w", httpAddr, err)
	}
	m.httpLn = ln

	for _, p := range m.providers {
		m.logger.Info("Mounting module", zap.String("module", p.Name()), zap.String("context_path", p.ContextPath()))
	}

	m.httpServer = &http.Server{
		Handler:      m.Handler(),
		ReadTimeout:  m.cfg.ReadTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		IdleTimeout:  m.cfg.IdleTimeout,
	}

	if m.cfg.AdminPort > 0 {
		if err := m.prepareAdminServer(); err != nil {
			_ = ln.Close()
			return err
		}
	}

	m.started = true

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.logger.Info("HTTP server listening", zap.String("address", m.httpLn.Addr().String()))
		return serve(m.httpServer, m.httpLn)
	})
	if m.adminServer != nil {
		g.Go(func() error {
			m.logger.Info("Admin server listening", zap.String("address", m.adminLn.Addr().String()))
			return serve(m.adminServer, m.adminLn)
		})
	}

	go func() {
		err := g.Wait()
		m.errMu.Lock()
		m.err = err
		m.errMu.Unlock()
		if err != nil {
			m.logger.Error("Server error", zap.Error(err))
		}
		close(m.done)
	}()

	return nil
}

// ConfigureGin sets the gin mode for the given log level. It is called
// before any module engine is built.
func ConfigureGin(level string) {
	if gin.Mode() == gin.TestMode {
		return
	}
	if level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Done is closed once every server has stopped serving.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the error that ended serving, if any.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// HTTPAddr returns the bound HTTP address, nil before Start.
func (m *Manager) HTTPAddr() net.Addr {
	if m.httpLn == nil {
		return nil
	}
	return m.httpLn.Addr()
}

// AdminAddr returns the bound admin address, nil when disabled.
func (m *Manager) AdminAddr() net.Addr {
	if m.adminLn == nil {
		return nil
	}
	return m.adminLn.Addr()
}

// Shutdown gracefully shuts down all servers
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.httpServer != nil {
		if err := m.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	if m.adminServer != nil {
		if err := m.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	if m.started {
		select {
		case <-m.done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	return errors.Join(errs...)
}

// prepareAdminServer binds the admin port and builds its router
func (m *Manager) prepareAdminServer() error {
	token := m.cfg.AdminToken
	if token == "" {
		var err error
		token, err = middleware.GenerateAdminToken()
		if err != nil {
			return fmt.Errorf("failed to generate admin token: %w", err)
		}
		m.logger.Info("Generated admin API token (set BUNDLE_SERVER_ADMIN_TOKEN to use a fixed token)",
			zap.String("token", token))
	}

	adminAddr := net.JoinHostPort(m.cfg.HTTPAddress, fmt.Sprint(m.cfg.AdminPort))
	ln, err := net.Listen("tcp", adminAddr)
	if err != nil {
		return fmt.Errorf("failed to bind admin server on %s: %w", adminAddr, err)
	}
	m.adminLn = ln

	m.adminServer = &http.Server{
		Handler:      m.adminRouter(token),
		ReadTimeout:  m.cfg.ReadTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		IdleTimeout:  m.cfg.IdleTimeout,
	}
	return nil
}

func (m *Manager) adminRouter(token string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(m.logger.Named("admin")))

	router.GET("/admin/status", m.status)
	if m.cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := middleware.NewAttemptLimiter(m.cfg.AdminRateLimit, m.logger)
	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(token, limiter, m.logger))
	{
		admin.GET("/modules", func(c *gin.Context) {
			if m.cfg.Inventory == nil {
				c.JSON(http.StatusOK, gin.H{"modules": m.moduleNames()})
				return
			}
			c.JSON(http.StatusOK, m.cfg.Inventory())
		})
	}
	return router
}

func (m *Manager) status(c *gin.Context) {
	resp := StatusResponse{
		Status:     "ok",
		Service:    "bundle-host",
		InstanceID: m.instanceID,
		Modules:    m.moduleNames(),
	}
	if m.cfg.State != nil {
		resp.State = m.cfg.State()
	}
	c.JSON(http.StatusOK, resp)
}

func (m *Manager) moduleNames() []string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return names
}
