package matching

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chequemate/platform/internal/chesscom"
	"github.com/chequemate/platform/internal/features"
	"github.com/chequemate/platform/internal/lichess"
	"github.com/chequemate/platform/internal/messaging"
)

type stubGames struct {
	games map[string][]chesscom.Game
}

func (s *stubGames) RecentGames(ctx context.Context, username string, months int) ([]chesscom.Game, error) {
	return s.games[username], nil
}

type stubRatings struct {
	user *lichess.User
}

func (s *stubRatings) User(ctx context.Context, username string) (*lichess.User, error) {
	return s.user, nil
}

// memStore keeps profiles in a map so refresh and matching run without
// PostgreSQL.
type memStore struct {
	profiles map[string]features.Features
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]features.Features)}
}

func (s *memStore) Upsert(ctx context.Context, f features.Features) error {
	s.profiles[f.Username] = f
	return nil
}

func (s *memStore) LoadAll(ctx context.Context) (map[string]features.Features, error) {
	return s.profiles, nil
}

// fakeBus records published results and hands the request handler back to the
// test so it can be driven directly.
type fakeBus struct {
	handler   func(data []byte)
	published map[string][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][]byte)}
}

func (b *fakeBus) SubscribeMatchRequest(handler func(data []byte)) error {
	b.handler = handler
	return nil
}

func (b *fakeBus) PublishMatchFound(username string, data []byte) error {
	b.published[username] = data
	return nil
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.RefreshInterval != time.Hour {
		t.Errorf("expected 1h refresh interval, got %s", config.RefreshInterval)
	}
	if config.ArchiveMonths != 3 {
		t.Errorf("expected 3 archive months, got %d", config.ArchiveMonths)
	}
	if config.Weights.Rating != 0.5 {
		t.Errorf("expected rating weight 0.5, got %v", config.Weights.Rating)
	}
}

func TestMatchRequest_Unmarshal(t *testing.T) {
	var req MatchRequest
	if err := json.Unmarshal([]byte(`{"username":"guessworkceoke"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Username != "guessworkceoke" {
		t.Errorf("unexpected username %q", req.Username)
	}
}

func TestMatchResult_WithOpponent(t *testing.T) {
	opponent := "ashot2016"
	data, err := json.Marshal(MatchResult{Opponent: &opponent, Score: 0.6234})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded MatchResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Opponent == nil || *decoded.Opponent != "ashot2016" {
		t.Errorf("unexpected opponent: %v", decoded.Opponent)
	}
	if decoded.Score != 0.6234 {
		t.Errorf("unexpected score: %v", decoded.Score)
	}
}

func newStubService(games *stubGames, ratings RatingSource, store FeatureStore, bus MatchBus) *Service {
	config := DefaultConfig()
	config.Roster = []string{"alice"}
	return NewService(config, games, ratings, store, bus)
}

func TestRefreshPlayer_UpsertsNewestRating(t *testing.T) {
	games := &stubGames{games: map[string][]chesscom.Game{
		"alice": {
			{White: chesscom.Player{Username: "alice", Rating: 1540, Result: "win"}, Black: chesscom.Player{Username: "x", Rating: 1500}, TimeControl: "600", EndTime: 200},
			{White: chesscom.Player{Username: "alice", Rating: 1500, Result: "resigned"}, Black: chesscom.Player{Username: "y", Rating: 1510}, TimeControl: "600", EndTime: 100},
		},
	}}
	store := newMemStore()
	s := newStubService(games, nil, store, newFakeBus())

	if err := s.refreshPlayer("alice"); err != nil {
		t.Fatalf("refreshPlayer: %v", err)
	}

	f, ok := store.profiles["alice"]
	if !ok {
		t.Fatal("expected an upserted profile for alice")
	}
	if f.Rating != 1540 {
		t.Errorf("expected rating from the newest game (1540), got %d", f.Rating)
	}
	if f.Streak != 1 {
		t.Errorf("expected streak 1, got %d", f.Streak)
	}
}

func TestRefreshPlayer_LichessBackfill(t *testing.T) {
	games := &stubGames{games: map[string][]chesscom.Game{}}
	ratings := &stubRatings{user: &lichess.User{
		Username: "alice",
		Perfs:    map[string]lichess.Perf{"blitz": {Rating: 1615, Games: 120}},
	}}
	store := newMemStore()
	s := newStubService(games, ratings, store, newFakeBus())

	if err := s.refreshPlayer("alice"); err != nil {
		t.Fatalf("refreshPlayer: %v", err)
	}

	if got := store.profiles["alice"].Rating; got != 1615 {
		t.Errorf("expected backfilled rating 1615, got %d", got)
	}
}

func TestRefreshPlayer_NoRatingSourceKeepsZero(t *testing.T) {
	games := &stubGames{games: map[string][]chesscom.Game{}}
	store := newMemStore()
	s := newStubService(games, nil, store, newFakeBus())

	if err := s.refreshPlayer("alice"); err != nil {
		t.Fatalf("refreshPlayer: %v", err)
	}

	if got := store.profiles["alice"].Rating; got != 0 {
		t.Errorf("expected zero rating without a backfill source, got %d", got)
	}
}

func TestHandleMatchRequest_PublishesMatch(t *testing.T) {
	store := newMemStore()
	store.profiles["alice"] = features.Features{Username: "alice", Rating: 1500, TimePref: map[string]float64{"600": 1}}
	store.profiles["bob"] = features.Features{Username: "bob", Rating: 1520, TimePref: map[string]float64{"600": 1}}

	bus := newFakeBus()
	s := newStubService(&stubGames{}, nil, store, bus)

	payload, _ := json.Marshal(MatchRequest{Username: "alice"})
	s.handleMatchRequest(payload)

	data, ok := bus.published["alice"]
	if !ok {
		t.Fatal("expected a result published to alice")
	}
	var result MatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Opponent == nil || *result.Opponent != "bob" {
		t.Errorf("expected opponent bob, got %v", result.Opponent)
	}
	if result.Score <= 0 {
		t.Errorf("expected a positive score, got %v", result.Score)
	}
}

func TestHandleMatchRequest_NoOpponentStillCarriesScore(t *testing.T) {
	store := newMemStore()
	store.profiles["alice"] = features.Features{Username: "alice", Rating: 1500, TimePref: map[string]float64{"600": 1}}

	bus := newFakeBus()
	s := newStubService(&stubGames{}, nil, store, bus)

	payload, _ := json.Marshal(MatchRequest{Username: "alice"})
	s.handleMatchRequest(payload)

	data, ok := bus.published["alice"]
	if !ok {
		t.Fatal("expected a result published to alice")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if string(raw["opponent"]) != "null" {
		t.Errorf("unmatched results should carry opponent=null, got %s", raw["opponent"])
	}
	if string(raw["score"]) != "0" {
		t.Errorf("score must always be present, got %s", raw["score"])
	}
}

func TestHandleMatchRequest_InvalidPayloadIgnored(t *testing.T) {
	bus := newFakeBus()
	s := newStubService(&stubGames{}, nil, newMemStore(), bus)

	s.handleMatchRequest([]byte("{not json"))
	s.handleMatchRequest([]byte(`{"username":""}`))

	if len(bus.published) != 0 {
		t.Errorf("expected no published results, got %d", len(bus.published))
	}
}

// TestService_MatchRoundTrip exercises the request/reply contract over a real
// NATS server. Skipped when no local server is running.
func TestService_MatchRoundTrip(t *testing.T) {
	config := messaging.DefaultConfig()
	config.Name = "matcher-test"
	config.MaxReconnects = 0
	client, err := messaging.NewClient(config)
	if err != nil {
		t.Skipf("NATS not available at %s: %v", config.URL, err)
	}
	defer client.Close()

	store := newMemStore()
	store.profiles["alice"] = features.Features{Username: "alice", Rating: 1500, TimePref: map[string]float64{"600": 1}}
	store.profiles["bob"] = features.Features{Username: "bob", Rating: 1520, TimePref: map[string]float64{"600": 1}}

	serviceConfig := DefaultConfig()
	s := NewService(serviceConfig, &stubGames{}, nil, store, client)
	if err := s.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	defer s.Stop()

	results := make(chan []byte, 1)
	if err := client.SubscribeMatchFound("alice", func(data []byte) {
		results <- data
	}); err != nil {
		t.Fatalf("subscribe match found: %v", err)
	}

	payload, _ := json.Marshal(MatchRequest{Username: "alice"})
	if err := client.PublishMatchRequest(payload); err != nil {
		t.Fatalf("publish match request: %v", err)
	}

	select {
	case data := <-results:
		var result MatchResult
		if err := json.Unmarshal(data, &result); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		if result.Opponent == nil || *result.Opponent != "bob" {
			t.Errorf("expected opponent bob, got %v", result.Opponent)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a match result")
	}

	if err := client.UnsubscribeMatchFound("alice"); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}
}
