package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultAnalyzeURL is the Perspective API comment analysis endpoint.
const DefaultAnalyzeURL = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze"

// PerspectiveConfig holds settings for the Perspective scoring client.
type PerspectiveConfig struct {
	APIKey     string        // required
	AnalyzeURL string        // defaults to DefaultAnalyzeURL
	Languages  []string      // declared language context, defaults to ["en"]
	Timeout    time.Duration // HTTP client timeout, defaults to 10s
}

// PerspectiveClient scores messages through the Perspective API's TOXICITY
// attribute. It implements ScoreProvider.
type PerspectiveClient struct {
	apiKey     string
	analyzeURL string
	languages  []string
	httpClient *http.Client
}

// NewPerspectiveClient creates a scoring client from config, filling in
// defaults for unset fields.
func NewPerspectiveClient(config PerspectiveConfig) *PerspectiveClient {
	analyzeURL := config.AnalyzeURL
	if analyzeURL == "" {
		analyzeURL = DefaultAnalyzeURL
	}
	languages := config.Languages
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PerspectiveClient{
		apiKey:     config.APIKey,
		analyzeURL: analyzeURL,
		languages:  languages,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// analyzeRequest is the Perspective comments:analyze wire format, restricted
// to the single TOXICITY attribute.
type analyzeRequest struct {
	Comment struct {
		Text string `json:"text"`
	} `json:"comment"`
	Languages           []string                   `json:"languages"`
	RequestedAttributes map[string]json.RawMessage `json:"requestedAttributes"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Score submits text for analysis and extracts the TOXICITY summary score.
// A response that parses but lacks the expected field path yields 0.0 without
// error; network failures, non-2xx statuses, and unparseable bodies are
// returned as errors for the caller's fail-open handling.
func (c *PerspectiveClient) Score(ctx context.Context, text string) (float64, error) {
	reqBody := analyzeRequest{
		Languages:           c.languages,
		RequestedAttributes: map[string]json.RawMessage{"TOXICITY": json.RawMessage("{}")},
	}
	reqBody.Comment.Text = text

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("perspective: marshal request: %w", err)
	}

	endpoint := c.analyzeURL + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("perspective: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("perspective: analyze call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("perspective: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("perspective: analyze returned status %d", resp.StatusCode)
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("perspective: decode response: %w", err)
	}

	// Absent attribute path is not an error: the score just defaults to 0.0.
	return parsed.AttributeScores["TOXICITY"].SummaryScore.Value, nil
}
