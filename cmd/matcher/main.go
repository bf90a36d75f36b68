package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chequemate/platform/internal/chesscom"
	"github.com/chequemate/platform/internal/database"
	"github.com/chequemate/platform/internal/features"
	"github.com/chequemate/platform/internal/lichess"
	"github.com/chequemate/platform/internal/matching"
	"github.com/chequemate/platform/internal/messaging"
	"github.com/chequemate/platform/internal/metrics"
)

func main() {
	log.Println("Starting ChequeMate matchmaking service...")

	config := matching.DefaultConfig()

	roster := os.Getenv("ROSTER")
	if roster == "" {
		log.Fatal("ROSTER is required (comma-separated chess.com usernames)")
	}
	for _, name := range strings.Split(roster, ",") {
		if name = strings.TrimSpace(name); name != "" {
			config.Roster = append(config.Roster, name)
		}
	}

	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.RefreshInterval = d
		}
	}
	if v := os.Getenv("ARCHIVE_MONTHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ArchiveMonths = n
		}
	}

	userAgent := os.Getenv("USER_AGENT")
	if userAgent == "" {
		userAgent = "chequemate-matcher/1.0"
	}

	// --- PostgreSQL (required) ---
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
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

	// --- NATS (required: match requests arrive here) ---
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "chequemate-matcher"
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	gamesClient := chesscom.NewClient(chesscom.Config{UserAgent: userAgent})

	var ratingsClient matching.RatingSource
	if os.Getenv("LICHESS_BACKFILL") != "false" {
		ratingsClient = lichess.NewClient(lichess.Config{UserAgent: userAgent})
	}

	service := matching.NewService(config, gamesClient, ratingsClient, features.NewStore(db), natsClient)
	if err := service.Start(); err != nil {
		log.Fatalf("failed to start matching service: %v", err)
	}

	// Metrics endpoint.
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("[matcher] metrics server: %v", err)
		}
	}()

	log.Printf("ChequeMate matchmaking service running")
	log.Printf("  roster:           %d players", len(config.Roster))
	log.Printf("  refresh_interval: %s", config.RefreshInterval)
	log.Printf("  archive_months:   %d", config.ArchiveMonths)
	log.Printf("  nats_url:         %s", natsConfig.URL)
	log.Printf("  metrics_addr:     %s", metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	service.Stop()
}
