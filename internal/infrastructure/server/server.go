// Package server assembles the daemon: configuration, persistent store,
// supervisor, installer, control facade and the HTTP router.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	apihttp "github.com/GriffinCanCode/seadaemon/internal/api/http"
	"github.com/GriffinCanCode/seadaemon/internal/api/middleware"
	"github.com/GriffinCanCode/seadaemon/internal/api/ws"
	"github.com/GriffinCanCode/seadaemon/internal/domain/control"
	"github.com/GriffinCanCode/seadaemon/internal/domain/events"
	"github.com/GriffinCanCode/seadaemon/internal/domain/installer"
	"github.com/GriffinCanCode/seadaemon/internal/domain/status"
	"github.com/GriffinCanCode/seadaemon/internal/domain/store"
	"github.com/GriffinCanCode/seadaemon/internal/domain/supervisor"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/config"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/logging"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/tracing"
)

// ShutdownTimeout bounds graceful HTTP shutdown
const ShutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	store      *store.Store
	supervisor *supervisor.Supervisor
	controller *control.Controller
	bus        *events.Bus
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	janitor *cron.Cron
}

// NewServer creates a new server instance. A config file lacking a
// required option fails with types.ErrConfigMissingKey.
func NewServer(cfg *config.Config, version string) (*Server, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.ConfigPath()), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	st, err := store.Open(cfg.ConfigPath(), cfg.AppsPath(), store.WithLogger(logger.Logger))
	if err != nil {
		return nil, err
	}

	// The log_level option applies unless the environment overrides it
	if cfg.Logging.Level == "" {
		if err := logger.SetLevel(st.OptionString(store.OptLogLevel)); err != nil {
			logger.Warn("Ignoring invalid log_level option", zap.Error(err))
		}
	}

	logger.Info("Initializing seadaemon",
		zap.String("version", version),
		zap.String("config", st.Path()),
		zap.String("apps_dir", st.AppsDir()),
		zap.Strings("apps", st.AppNames()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	stopSignal, err := supervisor.ParseSignal(cfg.Supervisor.StopSignal)
	if err != nil {
		return nil, err
	}
	if logDir := cfg.LogPath(); logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
	}
	sup := supervisor.New(st,
		supervisor.WithLogger(logger.Logger),
		supervisor.WithLogDir(cfg.LogPath()),
		supervisor.WithStopSignal(stopSignal),
	).WithMetrics(metrics)

	fetcher := installer.NewFetcher(installer.FetchConfig{
		Timeout:    cfg.Install.DownloadTimeout,
		MaxBytes:   cfg.Install.MaxArchiveBytes,
		AllowLocal: cfg.Install.LocalSources,
		UserAgent:  "seadaemon/" + version,
	}, logger.Logger)
	tracer := tracing.New("seadaemon", logger.Logger)
	inst := installer.New(st, sup, fetcher, cfg.Install.HookTimeout, logger.Logger).WithTracer(tracer)

	bus := events.NewBus(events.DefaultBuffer)
	ctrl := control.New(control.Deps{
		Store:      st,
		Supervisor: sup,
		Installer:  inst,
		Reporter:   status.New(st, sup),
		Bus:        bus,
		Metrics:    metrics,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.AccessLog(logger.Logger))
	router.Use(middleware.Recovery(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	if len(cfg.HTTP.CORSOrigins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowOrigins = cfg.HTTP.CORSOrigins
		router.Use(middleware.CORS(corsCfg))
	}
	if cfg.HTTP.RateLimit > 0 {
		logger.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimit),
			zap.Int("burst", cfg.HTTP.RateBurst))
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.HTTP.RateLimit,
			Burst:             cfg.HTTP.RateBurst,
		}))
	}

	handlers := apihttp.NewHandlers(ctrl, metrics, logger.Logger, version)
	wsHandler := ws.NewHandler(ctx, bus, ctrl.Status, metrics, logger.Logger)

	// Public routes
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	if cfg.HTTP.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	}

	// Authenticated routes
	authed := router.Group("/")
	authed.Use(middleware.BasicAuth(func() string {
		return st.OptionString(store.OptXAuth)
	}, logger.Logger))
	authed.POST("/app-install", handlers.InstallApp)
	authed.POST("/app-remove", handlers.RemoveApp)
	authed.POST("/app-run", handlers.RunApp)
	authed.POST("/app-stop", handlers.StopApp)
	authed.GET("/option", handlers.GetOption)
	authed.POST("/option", handlers.SetOption)
	authed.GET("/events", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:     router,
		store:      st,
		supervisor: sup,
		controller: ctrl,
		bus:        bus,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		tracer:     tracer,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Controller returns the control facade
func (s *Server) Controller() *control.Controller {
	return s.controller
}

// Addr returns the listen address from the host and port options, unless
// overridden by process configuration
func (s *Server) Addr() (string, error) {
	host := s.config.HTTP.ListenHost
	if host == "" {
		host = s.store.OptionString(store.OptHost)
	}
	port := s.config.HTTP.ListenPort
	if port == 0 {
		p, err := s.store.OptionInt(store.OptPort)
		if err != nil {
			return "", err
		}
		port = p
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// Start launches the background workers: the apps directory watcher and
// the instance janitor, when configured.
func (s *Server) Start() error {
	if s.config.Supervisor.WatchApps {
		if err := s.controller.Watch(s.ctx, store.DefaultDebounce); err != nil {
			return err
		}
	}
	if schedule := s.config.Supervisor.PruneSchedule; schedule != "" {
		janitor, err := s.supervisor.StartJanitor(s.ctx, schedule)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.janitor = janitor
		s.mu.Unlock()
	}
	return nil
}

// Run serves HTTP on the configured address until ctx is done, then shuts
// down gracefully. Launched apps keep running.
func (s *Server) Run(ctx context.Context) error {
	addr, err := s.Addr()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.Start(); err != nil {
		ln.Close()
		return err
	}

	if limit := s.config.HTTP.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	// Stop websocket streams before draining HTTP
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Close stops background workers and flushes logs
func (s *Server) Close() error {
	s.cancel()

	s.mu.Lock()
	janitor := s.janitor
	s.mu.Unlock()
	if janitor != nil {
		<-janitor.Stop().Done()
	}

	s.tracer.Close()

	s.logger.Info("Server closed", zap.Int("tracked_instances", s.supervisor.Count()))
	// Sync fails on stderr for some platforms
	_ = s.logger.Sync()
	return nil
}
