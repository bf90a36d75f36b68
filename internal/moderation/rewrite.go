package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Defaults for the rewrite client. The generation service speaks the
// OpenAI-compatible chat completions protocol; by default the SDK is pointed
// at x.ai's endpoint.
const (
	DefaultRewriteBaseURL = "https://api.x.ai/v1"
	DefaultRewriteModel   = "grok-3-mini"

	rewriteMaxTokens   = 150
	rewriteTemperature = 0.7
)

// RewriteConfig holds settings for the rewrite generation client.
type RewriteConfig struct {
	APIKey  string // required, sent as a bearer credential
	BaseURL string // defaults to DefaultRewriteBaseURL
	Model   string // defaults to DefaultRewriteModel
}

// RewriteClient asks a chat-completion model for a polite rewrite of a
// flagged message. It implements RewriteProvider.
type RewriteClient struct {
	client openai.Client
	model  string
}

// NewRewriteClient creates a rewrite client from config, filling in defaults
// for unset fields.
func NewRewriteClient(config RewriteConfig) *RewriteClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultRewriteBaseURL
	}
	model := config.Model
	if model == "" {
		model = DefaultRewriteModel
	}
	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(baseURL),
	)
	return &RewriteClient{client: client, model: model}
}

// Rewrite submits a single-turn instruction embedding text verbatim and
// returns the first completion choice, whitespace-trimmed. An empty choice
// list or empty completion is reported as an error so the caller can omit the
// suggestion.
func (c *RewriteClient) Rewrite(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Rewrite the following message politely without changing its meaning. "+
			"Give no explanatory text, only your revision of this message:\n%q\n",
		text,
	)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(rewriteMaxTokens),
		Temperature: openai.Float(rewriteTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("rewrite: completion call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("rewrite: no completion choices returned")
	}

	suggestion := strings.TrimSpace(resp.Choices[0].Message.Content)
	if suggestion == "" {
		return "", fmt.Errorf("rewrite: empty completion")
	}
	return suggestion, nil
}
