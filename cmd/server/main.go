package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/venue-console/opmap/internal/api"
	"github.com/venue-console/opmap/internal/backend"
	"github.com/venue-console/opmap/internal/cache"
	"github.com/venue-console/opmap/internal/config"
	"github.com/venue-console/opmap/internal/events"
	"github.com/venue-console/opmap/internal/history"
	"github.com/venue-console/opmap/internal/loader"
	"github.com/venue-console/opmap/internal/logging"
	"github.com/venue-console/opmap/internal/render"
	"github.com/venue-console/opmap/internal/session"
	"github.com/venue-console/opmap/internal/telemetry"
	"github.com/venue-console/opmap/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Config lives next to the executable unless OPMAP_CONFIG points elsewhere
	configPath := os.Getenv("OPMAP_CONFIG")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "opmap.config")
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat, cfg.Advanced.LogFile)
	if err != nil {
		fmt.Printf("Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, configPath, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	palette, err := render.LoadPaletteFile(cfg.Map.PaletteFile)
	if err != nil {
		return fmt.Errorf("failed to load palette: %w", err)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), backend.WithToken(cfg.Backend.Token))
	loaderOpts := []loader.Option{loader.WithLogger(logger)}
	components := map[string]bool{"cache": false, "history": false, "broker": false}

	// Shared snapshot cache
	if cfg.Cache.Enabled {
		rdb, err := cache.Connect(ctx, cache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Warn("redis unavailable, running without snapshot cache", "addr", cfg.Cache.Addr, "error", err)
		} else {
			defer rdb.Close()
			loaderOpts = append(loaderOpts, loader.WithCache(cache.NewSnapshots(rdb, cfg.CacheTTL(), logger)))
			components["cache"] = true
		}
	}

	// Statistics journal
	var historyReader api.HistoryReader
	if cfg.History.Enabled {
		journal, err := history.Open(cfg.History.DatabasePath)
		if err != nil {
			logger.Warn("statistics history unavailable", "path", cfg.History.DatabasePath, "error", err)
		} else {
			defer journal.Close()
			loaderOpts = append(loaderOpts, loader.WithRecorder(journal))
			historyReader = journal
			components["history"] = true
			go pruneHistory(ctx, journal, cfg.History.RetentionDays, logger)
		}
	}

	ld := loader.New(client, loaderOpts...)

	// Initialize session manager
	sessionMgr := session.NewManager(ld, session.ManagerConfig{
		Session: session.Options{
			Palette:          palette,
			ServerSideFilter: cfg.Backend.ServerSideFilter,
			LoadTimeout:      2 * cfg.BackendTimeout(),
			SearchTimeout:    cfg.BackendTimeout(),
			DefaultWidth:     cfg.Map.DefaultWidth,
			DefaultHeight:    cfg.Map.DefaultHeight,
		},
		MaxSessions: cfg.Sessions.MaxSessions,
		MaxAge:      cfg.SessionTimeout(),
	}, logger)
	defer sessionMgr.Close()

	// Start background session cleanup
	go sessionMgr.Run(ctx, cfg.CleanupInterval())

	// Status change refresh trigger
	if cfg.Broker.Enabled {
		consumer := events.NewConsumer(cfg.Broker.URL, cfg.Broker.Queue, sessionMgr, logger)
		components["broker"] = true
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("status consumer stopped", "error", err)
			}
		}()
	}

	api.ShowErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	embeddedMode := web.HasEmbeddedFiles()
	e := newEcho(cfg, logger)

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		SessionMgr:       sessionMgr,
		History:          historyReader,
		Palette:          palette,
		Version:          Version,
		Components:       components,
		RefreshWait:      2 * cfg.BackendTimeout(),
		WSMaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Logger:           logger,
	}))

	// Register embedded viewer if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register viewer routes", "error", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      otelhttp.NewHandler(e, cfg.Telemetry.ServiceName),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode, components)

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(sctx)
}

func newEcho(cfg *config.AppConfig, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/health") ||
				strings.HasSuffix(path, "/pointer") ||
				strings.HasSuffix(path, "/wheel")
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/ws") ||
				strings.HasSuffix(path, "/refresh")
		},
		ErrorMessage: "Request timeout",
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	return e
}

// pruneHistory drops journalled snapshots older than the retention window
// once an hour.
func pruneHistory(ctx context.Context, journal *history.Journal, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		n, err := journal.Prune(ctx, cutoff)
		if err != nil {
			logger.Warn("failed to prune statistics history", "error", err)
		} else if n > 0 {
			logger.Info("pruned statistics history", "rows", n, "before", cutoff.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool, components map[string]bool) {
	viewer := "disabled"
	if embeddedMode {
		viewer = "embedded"
	}
	enabled := func(name string) string {
		if components[name] {
			return "on"
		}
		return "off"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Venue Operation Map Server                      ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Viewer:     %-45s║\n", viewer)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-39s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Cache: %-3s  History: %-3s  Broker: %-21s║\n", enabled("cache"), enabled("history"), enabled("broker"))
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
