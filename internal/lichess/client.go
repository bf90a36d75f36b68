// Package lichess is a minimal client for the lichess.org public API, used to
// backfill a player's rating when their chess.com archives are empty.
package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the lichess.org API root.
const DefaultBaseURL = "https://lichess.org"

// Config holds settings for the lichess client.
type Config struct {
	BaseURL        string        // defaults to DefaultBaseURL
	UserAgent      string        // defaults to "chequemate/1.0"
	Timeout        time.Duration // HTTP client timeout, defaults to 15s
	RequestsPerSec float64       // request pacing, defaults to 2 req/s
}

// Client talks to the lichess.org public API.
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

// Perf is a player's standing in one time-control category.
type Perf struct {
	Rating int `json:"rating"`
	Games  int `json:"games"`
}

// User is a lichess account with its per-category performance ratings.
type User struct {
	Username string          `json:"username"`
	Perfs    map[string]Perf `json:"perfs"`
}

// BestRating returns the rating of the category the user has played most.
// The second return value is false when the user has no rated games.
func (u User) BestRating() (int, bool) {
	best := Perf{}
	found := false
	for _, p := range u.Perfs {
		if p.Games > 0 && p.Games > best.Games {
			best = p
			found = true
		}
	}
	return best.Rating, found
}

// User fetches a player's public profile.
func (c *Client) User(ctx context.Context, username string) (*User, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("lichess: rate wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/user/%s", c.baseURL, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("lichess: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lichess: get user %s: %w", username, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lichess: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lichess: get user %s: status %d", username, resp.StatusCode)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("lichess: decode user: %w", err)
	}
	return &user, nil
}
