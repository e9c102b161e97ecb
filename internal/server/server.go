// Package server integrates all components into the skillrelay HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vivars7/skillrelay/internal/adapter"
	"github.com/vivars7/skillrelay/internal/audit"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/bots"
	"github.com/vivars7/skillrelay/internal/channel"
	"github.com/vivars7/skillrelay/internal/config"
	"github.com/vivars7/skillrelay/internal/connector"
	"github.com/vivars7/skillrelay/internal/health"
	"github.com/vivars7/skillrelay/internal/oauth"
	"github.com/vivars7/skillrelay/internal/security"
	"github.com/vivars7/skillrelay/internal/skills"
	"github.com/vivars7/skillrelay/internal/storage"
	"github.com/vivars7/skillrelay/internal/telemetry"
	"github.com/vivars7/skillrelay/internal/transport"
)

// Audit route labels.
const (
	RouteMessages = "messages"
	RouteSkills   = "skills"
)

// connectorTimeout bounds calls to channel and token services.
const connectorTimeout = 30 * time.Second

// store is the storage surface the server needs: the bot and conversation
// id factory read and write through it, readiness pings it.
type store interface {
	storage.Storage
	storage.Pinger
}

// Option customizes a Server.
type Option func(*Server)

// WithConfigPath enables hot reload from path when cfg.Reload.Enabled is set.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the skillrelay HTTP server assembling all components.
type Server struct {
	cfg        *config.Config
	configPath string
	version    string
	logger     *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener // if non-nil, Start uses this instead of creating one

	storage       store
	redis         *redis.Client
	authenticator *auth.JWTAuthenticator
	adapter       *adapter.CloudAdapter
	host          *channel.Host
	root          *bots.RootBot
	skillRoutes   *skills.Routes
	middlewares   []security.Middleware
	healthHandler *health.Handler
	auditLogger   *audit.Logger
	metrics       *audit.Metrics
	reloader      *config.ConfigReloader
}

// New creates a Server from configuration. Nothing is started until Start.
func New(cfg *config.Config, version string, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, version: version}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = buildLogger(cfg)
	}
	logger := s.logger

	// 1. Audit and metrics
	s.auditLogger = audit.NewLogger(logger, audit.SamplingConfig{
		Rate:      cfg.Logging.Audit.SamplingRate,
		ErrorRate: cfg.Logging.Audit.ErrorSamplingRate,
	})
	s.metrics = audit.NewMetrics()
	s.metrics.SetBuildInfo(version, runtime.Version())

	// 2. Storage
	if err := s.buildStorage(); err != nil {
		return nil, err
	}

	// 3. Outbound credentials
	providers, err := buildProviders(cfg.Connections)
	if err != nil {
		return nil, err
	}
	botTokens, err := botTokenProvider(cfg.Bot)
	if err != nil {
		return nil, err
	}

	// 4. Turn adapter
	connectorClient := transport.NewClient(connectorTimeout)
	factory := connector.NewRESTClientFactory(cfg.Bot.AppID, cfg.Bot.TokenServiceURL, botTokens, connectorClient)
	base := adapter.NewCloudAdapterBase(factory, adapter.Options{
		AllowAnonymousEmulator: cfg.Bot.AllowAnonymousEmulator,
		OnTurnError:            adapter.DefaultTurnErrorHandler(logger),
		Logger:                 logger,
	})
	base.Use(
		telemetry.NewTracingMiddleware(nil),
		audit.NewTurnMiddleware(s.auditLogger, s.metrics),
	)
	s.adapter = adapter.NewCloudAdapter(base, cfg.Listen.MaxBodySize)

	// 5. Skill host
	s.host = channel.NewHost(providers, channel.HostOptions{
		HostAppID:     cfg.Bot.AppID,
		DefaultTokens: botTokens,
		Logger:        logger,
	})
	s.host.RegisterFactory("http", channel.NewHTTPBotChannelFactory(transport.NewClient(0), logger))
	s.host.SetSkills(cfg.Skills.HostEndpoint, channel.SkillsFromConfig(cfg))
	s.metrics.SetSkillsRegistered(len(s.host.Skills()))

	ids := skills.NewStorageConversationIDFactory(s.storage)
	forwarder := skills.NewForwarder(s.host, ids, s.metrics, logger)

	// 6. Sign-in
	var flow *oauth.Flow
	if cfg.OAuth.ConnectionName != "" {
		flow, err = oauth.NewFlow(oauth.Settings{
			ConnectionName: cfg.OAuth.ConnectionName,
			Title:          cfg.OAuth.Title,
			Text:           cfg.OAuth.Text,
			Timeout:        cfg.OAuth.Timeout.Duration,
			ShowSignInLink: cfg.OAuth.ShowSignInLink,
		}, oauth.Options{
			Logger:    logger,
			OnOutcome: s.metrics.RecordOAuthOutcome,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring sign-in: %w", err)
		}
	}

	// 7. Bot and skill callbacks
	s.root = bots.NewRootBot(s.storage, flow, forwarder, logger)
	s.skillRoutes = skills.NewRoutes(skills.NewHandler(base, s.root, ids, logger), cfg.Listen.MaxBodySize)

	// 8. Ingress security
	s.authenticator = auth.NewJWTAuthenticator(auth.JWTConfig{
		Issuers:  cfg.Auth.Issuers,
		Audience: cfg.Auth.Audience,
		JWKSURL:  cfg.Auth.JWKSURL,
		CacheTTL: cfg.Auth.CacheTTL.Duration,
	})
	s.middlewares = security.BuildPipeline(security.PipelineConfig{
		GlobalRateLimit:      cfg.Listen.GlobalRateLimit,
		IPRateLimit:          cfg.Listen.IPRateLimit,
		CallerRateLimit:      cfg.Listen.CallerRateLimit,
		TrustedProxies:       cfg.Listen.TrustedProxies,
		Authenticator:        s.authenticator,
		AllowUnauthenticated: cfg.Auth.AllowUnauthenticated,
		OnReject:             s.metrics.RecordRateLimited,
	})

	// 9. Health
	s.healthHandler = health.NewHandler(s.storage, health.SkillCountFunc(func() int {
		return len(s.host.Skills())
	}), version, health.Options{
		LivenessPath:  cfg.Health.LivenessPath,
		ReadinessPath: cfg.Health.ReadinessPath,
	})

	// 10. Hot reload
	if s.configPath != "" && cfg.Reload.Enabled {
		s.reloader = config.NewConfigReloader(s.configPath, cfg, logger)
		s.reloader.Register(s.host)
		s.reloader.Register(reloadFunc(func(newCfg *config.Config) error {
			s.metrics.SetSkillsRegistered(len(s.host.Skills()))
			return nil
		}))
		s.reloader.SetObserver(func(success bool) {
			s.metrics.RecordConfigReload(success)
			if success {
				s.metrics.SetConfigReloadTime(time.Now())
			}
		})
	}

	logger.Info("server configured",
		"storage", cfg.Storage.Type,
		"skills", len(s.host.Skills()),
		"oauth", flow != nil,
		"connections", len(cfg.Connections),
	)
	return s, nil
}

func (s *Server) buildStorage() error {
	switch s.cfg.Storage.Type {
	case config.StorageRedis:
		rc := s.cfg.Storage.Redis
		s.redis = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		s.storage = storage.NewRedisStorage(s.redis,
			storage.WithPrefix(rc.Prefix),
			storage.WithTTL(rc.TTL.Duration),
		)
	case config.StorageMemory, "":
		s.storage = storage.NewMemoryStorage()
	default:
		return fmt.Errorf("unknown storage type %q", s.cfg.Storage.Type)
	}
	return nil
}

// reloadFunc adapts a function to config.Reloadable.
type reloadFunc func(*config.Config) error

func (f reloadFunc) OnConfigReload(cfg *config.Config) error { return f(cfg) }

// Start begins listening and serving. It blocks until the context is canceled
// or an unrecoverable error occurs.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, telemetry.Options{
			ServiceName: s.cfg.Telemetry.ServiceName,
			Endpoint:    s.cfg.Telemetry.Endpoint,
			Insecure:    s.cfg.Telemetry.Insecure,
			Version:     s.version,
		})
		if err != nil {
			return fmt.Errorf("starting telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				s.logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	} else {
		telemetry.SetupPropagation()
	}

	if err := s.authenticator.Start(ctx); err != nil {
		return fmt.Errorf("starting authenticator: %w", err)
	}

	if s.reloader != nil {
		if err := s.reloader.Start(ctx); err != nil {
			s.logger.Error("config reloader not started", "error", err)
		}
	}

	handler := s.handler()

	listenAddr := fmt.Sprintf("%s:%d", s.cfg.Listen.Host, s.cfg.Listen.Port)

	// Use injected listener or create one
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", listenAddr, err)
		}

		if s.cfg.Listen.MaxConnections > 0 {
			ln = newLimitedListener(ln, s.cfg.Listen.MaxConnections)
		}
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening",
			"addr", ln.Addr().String(),
			"messages_path", s.cfg.Bot.MessagesPath,
			"skills_path", s.cfg.Skills.CallbackPath,
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.Timeout.Duration)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown stops accepting requests, waits for in-flight turns and releases
// background resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()

	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.reloader != nil {
		s.reloader.Stop()
	}
	security.StopPipeline(s.middlewares)

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis client", "error", err)
		}
	}
	return nil
}

// handler builds the complete HTTP handler with security pipeline and routing.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics endpoints bypass security
	mux.Handle(s.cfg.Health.LivenessPath, s.healthHandler)
	mux.Handle(s.cfg.Health.ReadinessPath, s.healthHandler)
	mux.Handle(s.cfg.Health.MetricsPath, s.metrics.Handler())

	// Channel traffic
	mux.Handle(s.cfg.Bot.MessagesPath, s.secure(RouteMessages, s.adapter.Handler(s.root)))

	// Skill callbacks
	prefix := strings.TrimSuffix(s.cfg.Skills.CallbackPath, "/")
	mux.Handle(prefix+"/", s.secure(RouteSkills, http.StripPrefix(prefix, s.skillRoutes)))

	return otelhttp.NewHandler(mux, "skillrelay",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != s.cfg.Health.LivenessPath &&
				r.URL.Path != s.cfg.Health.ReadinessPath &&
				r.URL.Path != s.cfg.Health.MetricsPath
		}),
	)
}

// secure wraps h with the audit stage followed by the shared security
// pipeline, so rejected requests are audited too.
func (s *Server) secure(route string, h http.Handler) http.Handler {
	mws := make([]security.Middleware, 0, len(s.middlewares)+1)
	mws = append(mws, audit.NewHTTPMiddleware(route, s.auditLogger, s.metrics))
	mws = append(mws, s.middlewares...)
	return security.ApplyPipeline(h, mws)
}

// buildLogger creates an slog.Logger based on configuration.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var output *os.File
	switch cfg.Logging.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}

// ── LimitedListener ──

// limitedListener wraps a net.Listener to limit maximum concurrent connections.
type limitedListener struct {
	net.Listener
	sem chan struct{}
}

// newLimitedListener creates a listener that limits concurrent connections.
func newLimitedListener(l net.Listener, maxConns int) net.Listener {
	return &limitedListener{
		Listener: l,
		sem:      make(chan struct{}, maxConns),
	}
}

// Accept waits for and returns the next connection, blocking if at limit.
func (l *limitedListener) Accept() (net.Conn, error) {
	l.sem <- struct{}{}
	c, err := l.Listener.Accept()
	if err != nil {
		<-l.sem
		return nil, err
	}
	return &limitedConn{Conn: c, sem: l.sem}, nil
}

// limitedConn wraps a net.Conn to release the semaphore slot on close.
type limitedConn struct {
	net.Conn
	sem    chan struct{}
	closed sync.Once
}

// Close releases the connection and frees the semaphore slot.
func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.closed.Do(func() { <-c.sem })
	return err
}
