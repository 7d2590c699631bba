// World Engine server — hosts multi-agent simulation sessions and serves
// their event streams over HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/agentarium/worldengine/pkg/agent"
	"github.com/agentarium/worldengine/pkg/api"
	"github.com/agentarium/worldengine/pkg/cleanup"
	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/driver"
	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/llm"
	llmopenai "github.com/agentarium/worldengine/pkg/llm/openai"
	"github.com/agentarium/worldengine/pkg/narrator"
	"github.com/agentarium/worldengine/pkg/session"
	"github.com/agentarium/worldengine/pkg/stream"
	"github.com/agentarium/worldengine/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting world engine",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize the event store
	store, closeStore, err := newEventStore(ctx, cfg.EventStore)
	if err != nil {
		slog.Error("Failed to initialize event store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("Event store initialized", "backend", cfg.EventStore.Backend)

	// 3. Wire the completion provider. Without a key, sessions run on
	// externally submitted actions only.
	var provider llm.Provider
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		client, err := llmopenai.NewFromAPIKey(apiKey, os.Getenv("OPENAI_BASE_URL"), cfg.LLM.Model)
		if err != nil {
			slog.Error("Failed to initialize LLM provider", "error", err)
			os.Exit(1)
		}
		provider = client
		slog.Info("LLM provider initialized", "model", cfg.LLM.Model)
	} else {
		slog.Warn("OPENAI_API_KEY not set, autopilot and narration disabled")
	}

	var narr narrator.Narrator
	if provider != nil {
		narr = narrator.NewLLM(provider, narrator.StyleProse)
	}

	// 4. Streaming hub
	hub := stream.NewConnectionManager(store, 10*time.Second, slog.Default())

	// 5. Session manager with per-session drivers
	var mgr *session.Manager
	factory := func(s *session.Session) session.Driver {
		var actor driver.Actor
		if provider != nil {
			personas := make([]agent.Persona, 0, len(s.Agents))
			for _, spec := range s.Agents {
				personas = append(personas, agent.Persona{
					ID:     spec.ID,
					Name:   spec.Name,
					Stance: spec.Stance,
					Role:   spec.Role,
				})
			}
			actor = agent.New(agent.Params{
				Provider:    provider,
				Kind:        s.Kind,
				Topic:       s.Topic,
				Personas:    personas,
				MaxTokens:   cfg.LLM.MaxTokens,
				Temperature: cfg.LLM.Temperature,
			})
		}
		deadline := cfg.Driver.ActionDeadline.Std()
		if s.RoundTimeLimit > 0 {
			deadline = s.RoundTimeLimit
		}
		sessionID := s.ID
		return driver.New(driver.Params{
			Engine:         s.Engine(),
			Store:          store,
			Broadcast:      hub,
			Actor:          actor,
			TickInterval:   cfg.Driver.TickInterval.Std(),
			ActionDeadline: deadline,
			CollectTimeout: cfg.Driver.CollectTimeout.Std(),
			Logger:         slog.Default(),
			OnEnded:        func(reason string) { mgr.MarkEnded(sessionID, reason) },
			OnFailed:       func(reason string) { mgr.MarkFailed(sessionID, reason) },
		})
	}
	mgr = session.NewManager(session.ManagerParams{
		Config:    cfg,
		Store:     store,
		Narrator:  narr,
		Factory:   factory,
		Broadcast: hub,
		Logger:    slog.Default(),
	})
	hub.SetManager(mgr)
	slog.Info("Session manager initialized")

	// 6. Start the retention sweeper
	sweeper := cleanup.NewService(cfg.EventStore.KeepEvents, cfg.EventStore.SweepInterval.Std(), mgr, slog.Default())
	sweeper.Start(ctx)

	// 7. Create HTTP server
	httpServer := api.NewServer(mgr, hub, cfg.Server, slog.Default())

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("World engine started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown
	sweeper.Stop()

	sessionCtx, sessionCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.Std())
	defer sessionCancel()

	done := make(chan struct{})
	go func() {
		mgr.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Session manager stopped gracefully")
	case <-sessionCtx.Done():
		slog.Warn("Session shutdown timeout exceeded, abandoning in-flight drivers")
	}

	// Stop HTTP server with its own timeout budget
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// newEventStore builds the configured event log backend. The returned close
// function releases the Redis connection when that backend is selected.
func newEventStore(ctx context.Context, cfg *config.EventStoreConfig) (eventlog.Store, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return eventlog.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing redis client", "error", err)
		}
	}
	return eventlog.NewRedisStore(rdb, cfg.TTL.Std()), closeFn, nil
}
