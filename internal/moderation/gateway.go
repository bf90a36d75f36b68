// Package moderation implements the moderation gateway: a stateless pipeline
// that scores a chat message for toxicity through an external classifier and,
// for messages over the threshold, asks an external text-generation service
// for a polite rewrite. Both upstream calls degrade gracefully: a scoring
// failure is treated as toxicity 0.0 and a rewrite failure only means the
// verdict carries no suggestion.
package moderation

import (
	"context"
	"log"
	"strings"

	"github.com/chequemate/platform/internal/metrics"
)

// DefaultThreshold is the toxicity score above which a message is flagged.
const DefaultThreshold = 0.7

// ScoreProvider estimates how likely a message is to be perceived as hostile
// or rude, as a value in [0.0, 1.0].
type ScoreProvider interface {
	Score(ctx context.Context, text string) (float64, error)
}

// RewriteProvider produces a meaning-preserving, depoliticized rewrite of a
// flagged message.
type RewriteProvider interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Config holds the gateway's tunable parameters.
type Config struct {
	Threshold float64 // flag messages with toxicity strictly above this
}

// DefaultConfig returns a Config with the observed production threshold.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Gateway runs moderation checks. It holds no mutable state and is safe for
// concurrent use; every dependency is injected at construction so tests can
// substitute stub providers.
type Gateway struct {
	scorer    ScoreProvider
	rewriter  RewriteProvider
	threshold float64
}

// NewGateway creates a Gateway. rewriter may be nil, in which case flagged
// verdicts are returned without suggestions.
func NewGateway(scorer ScoreProvider, rewriter RewriteProvider, config Config) *Gateway {
	threshold := config.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gateway{
		scorer:    scorer,
		rewriter:  rewriter,
		threshold: threshold,
	}
}

// Threshold returns the configured toxicity threshold.
func (g *Gateway) Threshold() float64 {
	return g.threshold
}

// Moderate validates req, scores the message, and assembles the verdict.
//
// Failure semantics: a missing username or message returns a
// *MissingFieldError before any upstream call. A scoring failure substitutes
// toxicity 0.0 (fail open: the request proceeds as "not flagged" rather than
// being rejected). A rewrite failure leaves the suggestion absent while the
// verdict is still returned with Flagged set.
func (g *Gateway) Moderate(ctx context.Context, req Request) (*Verdict, error) {
	if req.Username == "" {
		return nil, &MissingFieldError{Field: "username"}
	}
	if req.Message == "" {
		return nil, &MissingFieldError{Field: "message"}
	}

	toxicity, err := g.scorer.Score(ctx, req.Message)
	if err != nil {
		log.Printf("[moderation] scoring degraded for user=%s: %v (defaulting to 0.0)", req.Username, err)
		metrics.UpstreamErrors.WithLabelValues("scoring").Inc()
		toxicity = 0.0
	}

	verdict := &Verdict{
		Flagged:  toxicity > g.threshold,
		Toxicity: toxicity,
	}
	if !verdict.Flagged {
		return verdict, nil
	}

	if g.rewriter == nil {
		return verdict, nil
	}

	suggestion, err := g.rewriter.Rewrite(ctx, req.Message)
	if err != nil {
		log.Printf("[moderation] rewrite degraded for user=%s: %v (omitting suggestion)", req.Username, err)
		metrics.UpstreamErrors.WithLabelValues("rewrite").Inc()
		return verdict, nil
	}
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return verdict, nil
	}

	verdict.Suggestion = &suggestion
	return verdict, nil
}
