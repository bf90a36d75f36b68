package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chequemate/platform/internal/api"
	"github.com/chequemate/platform/internal/database"
	"github.com/chequemate/platform/internal/messaging"
	"github.com/chequemate/platform/internal/moderation"
	"github.com/chequemate/platform/internal/ratelimit"
)

func main() {
	log.Println("Starting ChequeMate moderation service...")

	serverConfig := api.DefaultServerConfig()
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		serverConfig.ListenAddr = v
	}

	// --- Scoring provider (required) ---
	perspectiveKey := os.Getenv("PERSPECTIVE_KEY")
	if perspectiveKey == "" {
		log.Fatal("PERSPECTIVE_KEY is required")
	}
	scorer := moderation.NewPerspectiveClient(moderation.PerspectiveConfig{
		APIKey: perspectiveKey,
	})

	// --- Rewrite provider (optional: without it, flagged verdicts carry no
	// suggestion) ---
	var rewriter moderation.RewriteProvider
	if xaiKey := os.Getenv("XAI_API_KEY"); xaiKey != "" {
		rewriter = moderation.NewRewriteClient(moderation.RewriteConfig{
			APIKey:  xaiKey,
			BaseURL: os.Getenv("XAI_BASE_URL"),
			Model:   os.Getenv("REWRITE_MODEL"),
		})
	} else {
		log.Println("[moderator] XAI_API_KEY not set, rewrite suggestions disabled")
	}

	gatewayConfig := moderation.DefaultConfig()
	if v := os.Getenv("TOXICITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			gatewayConfig.Threshold = f
		}
	}
	gateway := moderation.NewGateway(scorer, rewriter, gatewayConfig)

	opts := api.Options{}

	// --- PostgreSQL (optional: verdict persistence) ---
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		migrationsPath := "migrations"
		if v := os.Getenv("MIGRATIONS_PATH"); v != "" {
			migrationsPath = v
		}
		if err := database.Migrate(databaseURL, migrationsPath); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		db, err := database.Open(databaseURL)
		if err != nil {
			log.Fatalf("failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		opts.Events = moderation.NewEventStore(db)
	} else {
		log.Println("[moderator] DATABASE_URL not set, verdict persistence disabled")
	}

	// --- Redis (optional: per-client rate limiting) ---
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		defer rdb.Close()
		opts.Limiter = ratelimit.NewLimiter(rdb)
	} else {
		log.Println("[moderator] REDIS_ADDR not set, rate limiting disabled")
	}

	// --- NATS (optional: flagged-verdict publication) ---
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = natsURL
		natsConfig.Name = "chequemate-moderator"
		natsClient, err := messaging.NewClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer natsClient.Close()
		opts.NATS = natsClient
	} else {
		log.Println("[moderator] NATS_URL not set, verdict publication disabled")
	}

	// Repeat offenders surface for review when both the event store and the
	// verdict feed are available.
	if opts.Events != nil && opts.NATS != nil {
		monitor := moderation.NewEscalationMonitor(opts.Events, moderation.DefaultEscalationConfig())
		if err := monitor.Start(opts.NATS); err != nil {
			log.Fatalf("failed to start escalation monitor: %v", err)
		}
		log.Println("[moderator] escalation monitor watching flagged verdicts")
	}

	server := api.NewServer(serverConfig, gateway, opts)

	log.Printf("ChequeMate moderation service running")
	log.Printf("  listen_addr: %s", serverConfig.ListenAddr)
	log.Printf("  threshold:   %.2f", gateway.Threshold())

	// Serve until signalled, then drain in-flight requests.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
