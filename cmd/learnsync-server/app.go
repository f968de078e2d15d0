package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"learnsync/adapters/jsonfile"
	mem "learnsync/adapters/memory"
	redisAdapter "learnsync/adapters/redis"
	sqlxAdapter "learnsync/adapters/sqlx"
	wsAdapter "learnsync/adapters/websocket"
	"learnsync/api/httpapi"
	"learnsync/config"
	"learnsync/engine"
	"learnsync/platform"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Stores    *Stores
	Platform  *platform.Platform
	Transport *wsAdapter.Transport
	Handler   http.Handler
	Server    *http.Server
}

// Stores bundles the storage adapters behind the engine interfaces, plus
// whatever needs closing on shutdown.
type Stores struct {
	Users         engine.UserStore
	Content       engine.ContentStore
	Notifications engine.NotificationStore

	closers []io.Closer
}

// Close releases adapter resources (DB pools, redis clients).
func (s *Stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideTransport(logger *slog.Logger) *wsAdapter.Transport {
	return wsAdapter.NewTransport(logger)
}

func provideStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	return setupStores(ctx, cfg, logger)
}

func providePlatform(cfg *config.Config, logger *slog.Logger, transport *wsAdapter.Transport, stores *Stores) *platform.Platform {
	mode := engine.DispatchAsync
	if cfg.Realtime.Dispatch == "sync" {
		mode = engine.DispatchSync
	}
	return platform.New(
		platform.WithUserStore(stores.Users),
		platform.WithContentStore(stores.Content),
		platform.WithNotificationStore(stores.Notifications),
		platform.WithTransport(transport),
		platform.WithDispatchMode(mode),
		platform.WithBufferCapacity(cfg.Realtime.BufferCapacity),
		platform.WithReaperTimings(cfg.Realtime.ReapInterval, cfg.Realtime.LivenessTimeout),
		platform.WithLogger(logger),
	)
}

func provideHandler(p *platform.Platform, transport *wsAdapter.Transport, cfg *config.Config, logger *slog.Logger) http.Handler {
	ws := wsAdapter.Handler(wsAdapter.Options{
		Registry:  p.Registry,
		Buffer:    p.Buffer,
		Transport: transport,
		Logger:    logger,
	})
	return httpapi.NewMux(p, ws, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStores creates the storage adapters the configuration asks for. The
// redis adapter covers notifications only, so tenant and content reads fall
// back to memory under it; the sql adapter covers everything.
func setupStores(_ context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		store := mem.New()
		return &Stores{Users: store, Content: store, Notifications: store}, nil

	case "sql":
		store, err := sqlxAdapter.NewFromConfig(cfg.Storage.SQL)
		if err != nil {
			return nil, fmt.Errorf("sql storage: %w", err)
		}
		return &Stores{
			Users: store, Content: store, Notifications: store,
			closers: []io.Closer{store},
		}, nil

	case "redis":
		notifications, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		store := mem.New()
		logger.Warn("redis adapter persists notifications only; tenant and content data stay in memory")
		return &Stores{
			Users: store, Content: store, Notifications: notifications,
			closers: []io.Closer{notifications},
		}, nil

	case "file":
		store, err := jsonfile.SeedStore(cfg.Storage.File.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("file storage seed: %w", err)
		}
		notifications, err := jsonfile.NewNotificationStore(cfg.Storage.File.NotificationsPath)
		if err != nil {
			return nil, fmt.Errorf("file storage notifications: %w", err)
		}
		return &Stores{Users: store, Content: store, Notifications: notifications}, nil

	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
