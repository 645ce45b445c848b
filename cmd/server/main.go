/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the crisis-assistance portal core server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire notification channels (in-app always; AMQP when configured)
  4. Create the approval engine and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: aid.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  AMQP_URL        Broker URL; external notifications are disabled if unset
  AMQP_EXCHANGE   Exchange name (default: aid.notifications)
  AMQP_QUEUE      Queue/routing key (default: decision-events)
  LOG_LEVEL       debug|info|warn|error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain in-flight notification sends
  4. Close broker and database connections

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/aid-engine/api"
	"github.com/warp/aid-engine/engine"
	"github.com/warp/aid-engine/logging"
	"github.com/warp/aid-engine/notify"
	"github.com/warp/aid-engine/store/sqlite"
)

func main() {
	// .env is optional; flags and environment win.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "aid.db", "SQLite database path")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:     logLevel(os.Getenv("LOG_LEVEL")),
		Component: "aid-engine",
	})

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Notification channels: in-app notices always; AMQP when configured.
	channels := []notify.Channel{notify.NewInApp(store)}
	var broker *notify.AMQP
	if url := os.Getenv("AMQP_URL"); url != "" {
		exchange := envOr("AMQP_EXCHANGE", "aid.notifications")
		queue := envOr("AMQP_QUEUE", "decision-events")
		broker, err = notify.NewAMQP(url, exchange, queue)
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		channels = append(channels, broker)
		logger.Info("external notifications enabled", "exchange", exchange, "queue", queue)
	} else {
		logger.Info("AMQP_URL not set, external notifications disabled")
	}
	dispatcher := notify.NewDispatcher(logging.WithComponent(logger, "notify"), 5*time.Second, channels...)

	// Approval engine
	eng := engine.New(store,
		engine.WithNotifier(dispatcher),
		engine.WithLogger(logging.WithComponent(logger, "engine")),
	)

	// HTTP surface
	handler := api.NewHandler(eng, store, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Drain notifications before closing the broker and database.
	dispatcher.Wait()

	logger.Info("server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
