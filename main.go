// Command prebot is the main entrypoint for the release tracker.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the worker selected by MODE: the IRC release scraper, the
//     request-id tracker, the outbound publisher, or the web feed poller.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /metrics, and the request-ID XML lookup.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scenefeed/prebot/config"
	"github.com/scenefeed/prebot/db"
	"github.com/scenefeed/prebot/irc"
	"github.com/scenefeed/prebot/predb"
	"github.com/scenefeed/prebot/publish"
	"github.com/scenefeed/prebot/scrape"
	"github.com/scenefeed/prebot/server"
	"github.com/scenefeed/prebot/telemetry"
	"github.com/scenefeed/prebot/webfeed"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("prebot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	migrationCtx, cancelMigration := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrationCtx, database); err != nil {
		cancelMigration()
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	cancelMigration()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := predb.NewStore(database)

	slog.Info("starting worker", slog.String("mode", string(cfg.Mode)))
	switch cfg.Mode {
	case config.ModeScrape, config.ModeReqScrape:
		client, err := connectIRC(ctx, cfg)
		if err != nil {
			slog.Error("irc connect failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer client.Quit("shutting down")
		scraper := scrape.New(client, store, cfg.Mode == config.ModeReqScrape)
		go func() {
			if err := scraper.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("scraper exited with error", slog.Any("err", err))
				stop()
			}
		}()
	case config.ModePost:
		client, err := connectIRC(ctx, cfg)
		if err != nil {
			slog.Error("irc connect failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer client.Quit("shutting down")
		publisher := publish.New(client, database, cfg.IRCChannels, publish.Options{
			ScanDelay:   cfg.PostScanDelay,
			PostDelay:   cfg.PostDelay,
			CleanupDays: cfg.PostCleanupDays,
			PingTarget:  cfg.PostPingTarget,
			BoxColor:    cfg.PostBoxColor,
			InnerColor:  cfg.PostInnerColor,
		})
		go func() {
			if err := publisher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("publisher exited with error", slog.Any("err", err))
				stop()
			}
		}()
	case config.ModeWeb:
		feeds := webfeed.New(store, webfeed.Options{
			SrrDB:     cfg.FetchSrrDB,
			Xrel:      cfg.FetchXrel,
			XrelP2P:   cfg.FetchXrelP2P,
			M2V:       cfg.FetchM2V,
			SleepTime: cfg.WebSleepTime,
		})
		go func() {
			if err := feeds.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("web feed poller exited with error", slog.Any("err", err))
				stop()
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/request lookup)
	go func() {
		if err := server.Start(ctx, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// connectIRC dials the configured network and completes the login handshake
// and channel joins.
func connectIRC(ctx context.Context, cfg *config.Config) (*irc.Client, error) {
	if err := cfg.ValidateIRCReady(); err != nil {
		return nil, err
	}
	client := irc.NewClient(cfg.IRCHost, cfg.IRCPort, cfg.IRCTLS, irc.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		SocketTimeout:  cfg.SocketTimeout,
		ConnectRetries: cfg.ConnectRetries,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxWriteErrors: cfg.MaxWriteErrors,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := client.Login(ctx, cfg.IRCNick, cfg.IRCUsername, cfg.IRCRealName, cfg.IRCPassword); err != nil {
		return nil, err
	}
	if err := client.Join(cfg.IRCChannels); err != nil {
		return nil, err
	}
	return client, nil
}
