package moderation

import "fmt"

// Request is a single moderation check submitted by a chat client.
// Username identifies the sender and is treated as an opaque identifier;
// it does not influence the scoring decision.
type Request struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Verdict is the outcome of a moderation check. Suggestion is non-nil only
// when the message was flagged and a rewrite was obtained.
type Verdict struct {
	Flagged    bool    `json:"flagged"`
	Toxicity   float64 `json:"toxicity"`
	Suggestion *string `json:"suggestion"`
}

// MissingFieldError reports a required request field that was absent or empty.
// It is the only request-level fatal error: the gateway returns it before any
// upstream call is made.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("moderation: missing required field %q", e.Field)
}
