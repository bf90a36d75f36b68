// Package matching runs the background matchmaking service. It periodically
// refreshes every rostered player's feature profile from the chess platform
// APIs, persists the profiles, and answers match requests over NATS with the
// best-scoring opponent.
package matching

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/chequemate/platform/internal/chesscom"
	"github.com/chequemate/platform/internal/features"
	"github.com/chequemate/platform/internal/lichess"
	"github.com/chequemate/platform/internal/metrics"
)

// MatchRequest is the NATS payload asking for an opponent.
type MatchRequest struct {
	Username string `json:"username"`
}

// MatchResult is the NATS payload answering a match request. Opponent is nil
// when no stored candidate qualifies.
type MatchResult struct {
	Opponent *string `json:"opponent"`
	Score    float64 `json:"score"`
}

// Config holds tunable parameters for the matchmaking service.
type Config struct {
	Roster          []string         // usernames to keep features fresh for
	RefreshInterval time.Duration    // how often to refresh the whole roster
	ArchiveMonths   int              // how many monthly archives to fetch per player
	Weights         features.Weights // signal weighting for opponent scoring
}

// DefaultConfig returns a Config with production defaults (roster must still
// be supplied).
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 1 * time.Hour,
		ArchiveMonths:   3,
		Weights:         features.DefaultWeights(),
	}
}

// GameSource supplies a player's recent games. Satisfied by *chesscom.Client.
type GameSource interface {
	RecentGames(ctx context.Context, username string, months int) ([]chesscom.Game, error)
}

// RatingSource supplies a fallback rating profile. Satisfied by
// *lichess.Client.
type RatingSource interface {
	User(ctx context.Context, username string) (*lichess.User, error)
}

// FeatureStore persists and loads player feature profiles. Satisfied by
// *features.Store.
type FeatureStore interface {
	Upsert(ctx context.Context, f features.Features) error
	LoadAll(ctx context.Context) (map[string]features.Features, error)
}

// MatchBus carries match requests in and match results out. Satisfied by
// *messaging.Client.
type MatchBus interface {
	SubscribeMatchRequest(handler func(data []byte)) error
	PublishMatchFound(username string, data []byte) error
}

// Service is the background matchmaking service.
type Service struct {
	config  Config
	games   GameSource
	ratings RatingSource // optional rating backfill, may be nil
	store   FeatureStore
	nats    MatchBus
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a matchmaking service. ratings may be nil, in which case
// players with no recent chess.com games keep a zero rating until they play.
func NewService(config Config, games GameSource, ratings RatingSource, store FeatureStore, nats MatchBus) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:  config,
		games:   games,
		ratings: ratings,
		store:   store,
		nats:    nats,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to match requests and starts the refresh loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribeMatchRequest(s.handleMatchRequest); err != nil {
		return err
	}

	go s.refreshLoop()

	log.Printf("[matcher] service started (roster=%d, refresh=%s)",
		len(s.config.Roster), s.config.RefreshInterval)
	return nil
}

// Stop gracefully shuts down the matchmaking service.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[matcher] service stopped")
}

// refreshLoop refreshes the roster immediately and then on every tick.
func (s *Service) refreshLoop() {
	s.refreshRoster()

	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[matcher] refresh loop stopped")
			return
		case <-ticker.C:
			s.refreshRoster()
		}
	}
}

// refreshRoster fetches games and upserts features for every rostered player.
// Per-player failures are logged and skipped so one unreachable profile does
// not starve the rest of the roster.
func (s *Service) refreshRoster() {
	start := time.Now()

	for _, username := range s.config.Roster {
		if err := s.refreshPlayer(username); err != nil {
			log.Printf("[matcher] refresh %s: %v", username, err)
		}
	}

	metrics.FeatureRefreshDuration.Observe(time.Since(start).Seconds())
	metrics.RosterSize.Set(float64(len(s.config.Roster)))
	log.Printf("[matcher] roster refreshed in %s", time.Since(start).Round(time.Millisecond))
}

func (s *Service) refreshPlayer(username string) error {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	games, err := s.games.RecentGames(ctx, username, s.config.ArchiveMonths)
	if err != nil {
		return err
	}

	f := features.Extract(username, games)

	// No recent chess.com games means no rating; backfill from lichess when
	// a client is configured.
	if f.Rating == 0 && s.ratings != nil {
		if user, err := s.ratings.User(ctx, username); err != nil {
			log.Printf("[matcher] lichess backfill %s: %v", username, err)
		} else if rating, ok := user.BestRating(); ok {
			f.Rating = rating
		}
	}

	return s.store.Upsert(ctx, f)
}

func (s *Service) handleMatchRequest(data []byte) {
	var req MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid match request: %v", err)
		return
	}
	if req.Username == "" {
		log.Printf("[matcher] match request without username")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	all, err := s.store.LoadAll(ctx)
	if err != nil {
		log.Printf("[matcher] load features: %v", err)
		return
	}

	var result MatchResult
	if opponent, score, ok := features.FindOpponent(req.Username, all, s.config.Weights); ok {
		result = MatchResult{Opponent: &opponent, Score: score}
		metrics.Matches.WithLabelValues("matched").Inc()
		log.Printf("[matcher] matched %s -> %s (score=%.4f)", req.Username, opponent, score)
	} else {
		metrics.Matches.WithLabelValues("unmatched").Inc()
		log.Printf("[matcher] no opponent for %s", req.Username)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("[matcher] marshal result: %v", err)
		return
	}
	if err := s.nats.PublishMatchFound(req.Username, payload); err != nil {
		log.Printf("[matcher] publish result for %s: %v", req.Username, err)
	}
}
