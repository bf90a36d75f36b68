// Package chesscom is a minimal client for the chess.com published-data API.
// It fetches a player's monthly game archives, which carry the ratings,
// results, time controls, and PGN needed for matchmaking feature extraction.
//
// chess.com asks API consumers to identify themselves with a User-Agent and
// throttles anonymous bursts, so every request goes through a token-bucket
// limiter and carries the configured agent string.
package chesscom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the chess.com published-data API root.
const DefaultBaseURL = "https://api.chess.com"

// Config holds settings for the chess.com client.
type Config struct {
	BaseURL        string        // defaults to DefaultBaseURL
	UserAgent      string        // defaults to "chequemate/1.0"
	Timeout        time.Duration // HTTP client timeout, defaults to 15s
	RequestsPerSec float64       // request pacing, defaults to 2 req/s
}

// Client talks to the chess.com published-data API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client from config, filling in defaults for unset
// fields.
func NewClient(config Config) *Client {
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "chequemate/1.0"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := config.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Player is one side of a finished game.
type Player struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"` // "win", "checkmated", "timeout", "resigned", draws...
}

// Game is a single archived game.
type Game struct {
	White       Player `json:"white"`
	Black       Player `json:"black"`
	TimeControl string `json:"time_control"`
	PGN         string `json:"pgn"`
	EndTime     int64  `json:"end_time"`
}

// Side returns the given player's side of the game, matched case-insensitively
// on username. If the username does not match white, black is returned.
func (g Game) Side(username string) Player {
	if strings.EqualFold(g.White.Username, username) {
		return g.White
	}
	return g.Black
}

// Archives returns the list of monthly archive URLs for a player, oldest
// first (the API's order).
func (c *Client) Archives(ctx context.Context, username string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/pub/player/%s/games/archives", c.baseURL, username)

	var parsed struct {
		Archives []string `json:"archives"`
	}
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("chesscom: archives for %s: %w", username, err)
	}
	return parsed.Archives, nil
}

// ArchiveGames fetches all games in one monthly archive.
func (c *Client) ArchiveGames(ctx context.Context, archiveURL string) ([]Game, error) {
	var parsed struct {
		Games []Game `json:"games"`
	}
	if err := c.getJSON(ctx, archiveURL, &parsed); err != nil {
		return nil, fmt.Errorf("chesscom: archive games: %w", err)
	}
	return parsed.Games, nil
}

// RecentGames fetches up to the last `months` monthly archives for a player
// and returns the combined games sorted newest first.
func (c *Client) RecentGames(ctx context.Context, username string, months int) ([]Game, error) {
	archives, err := c.Archives(ctx, username)
	if err != nil {
		return nil, err
	}
	if months > 0 && len(archives) > months {
		archives = archives[len(archives)-months:]
	}

	var games []Game
	for _, url := range archives {
		monthly, err := c.ArchiveGames(ctx, url)
		if err != nil {
			return nil, err
		}
		games = append(games, monthly...)
	}

	sort.Slice(games, func(i, j int) bool {
		return games[i].EndTime > games[j].EndTime
	})
	return games, nil
}

// getJSON performs a paced GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
