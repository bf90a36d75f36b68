package moderation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/chequemate/platform/internal/metrics"
)

// Escalation defaults: a user whose flagged count reaches the limit within
// the window is surfaced for moderator review.
const (
	DefaultEscalationLimit  = 3
	DefaultEscalationWindow = 24 * time.Hour
)

// FlaggedCounter reports how many flagged verdicts a username accumulated
// within a window. Satisfied by *EventStore.
type FlaggedCounter interface {
	CountFlaggedRecent(ctx context.Context, username string, window time.Duration) (int, error)
}

// VerdictFeed delivers flagged moderation verdicts. Satisfied by
// *messaging.Client.
type VerdictFeed interface {
	SubscribeFlaggedVerdicts(handler func(data []byte)) error
}

// EscalationConfig holds the repeat-offender policy.
type EscalationConfig struct {
	Limit  int           // flagged count at which a user is escalated
	Window time.Duration // how far back flagged events are counted
}

// DefaultEscalationConfig returns the default repeat-offender policy.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Limit:  DefaultEscalationLimit,
		Window: DefaultEscalationWindow,
	}
}

// EscalationMonitor watches the flagged-verdict feed and surfaces users who
// keep getting flagged. It never blocks moderation: every failure here is
// logged and dropped.
type EscalationMonitor struct {
	counter FlaggedCounter
	config  EscalationConfig
}

// NewEscalationMonitor creates a monitor over the given counter, filling in
// defaults for unset config fields.
func NewEscalationMonitor(counter FlaggedCounter, config EscalationConfig) *EscalationMonitor {
	if config.Limit <= 0 {
		config.Limit = DefaultEscalationLimit
	}
	if config.Window <= 0 {
		config.Window = DefaultEscalationWindow
	}
	return &EscalationMonitor{counter: counter, config: config}
}

// Start subscribes the monitor to the flagged-verdict feed.
func (m *EscalationMonitor) Start(feed VerdictFeed) error {
	return feed.SubscribeFlaggedVerdicts(m.HandleVerdict)
}

// HandleVerdict processes one flagged-verdict payload.
func (m *EscalationMonitor) HandleVerdict(data []byte) {
	var verdict struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &verdict); err != nil {
		log.Printf("[moderation] invalid flagged verdict: %v", err)
		return
	}
	if verdict.Username == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	escalated, count, err := m.check(ctx, verdict.Username)
	if err != nil {
		log.Printf("[moderation] escalation check for user=%s: %v", verdict.Username, err)
		return
	}
	if escalated {
		metrics.Escalations.Inc()
		log.Printf("[moderation] user=%s has %d flagged messages in the last %s, escalating for review",
			verdict.Username, count, m.config.Window)
	}
}

// check counts the user's recent flagged events against the limit.
func (m *EscalationMonitor) check(ctx context.Context, username string) (bool, int, error) {
	count, err := m.counter.CountFlaggedRecent(ctx, username, m.config.Window)
	if err != nil {
		return false, 0, err
	}
	return count >= m.config.Limit, count, nil
}
