// Package ai wraps the generative-AI provider behind a narrow interface and
// records every call in the usage log.
package ai

import (
	"context"
	"math"
	"time"
)

// Request is one opaque text-completion call.
type Request struct {
	Prompt       string
	SystemPrompt string
	// SessionID correlates the usage log entry with a conversation.
	SessionID string
}

// Result carries the provider response. Failures are values, not panics:
// a failed call produces Success=false with the error message captured.
type Result struct {
	Text         string
	TokensInput  int
	TokensOutput int
	LatencyMs    int
	Model        string
	Success      bool
	Error        string
}

// Provider is the single opaque operation the assistant needs from a
// generative backend.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	TestConnection(ctx context.Context) error
	Name() string
}

// Gemini Flash pricing per million tokens, used for cost estimates only.
const (
	costPerMInputTokens  = 0.075
	costPerMOutputTokens = 0.30
)

// EstimateCost returns the approximate dollar cost of one call.
func EstimateCost(tokensInput, tokensOutput int) float64 {
	cost := float64(tokensInput)/1_000_000*costPerMInputTokens +
		float64(tokensOutput)/1_000_000*costPerMOutputTokens
	return math.Round(cost*1e6) / 1e6
}

// latencyMs converts an elapsed duration to whole milliseconds.
func latencyMs(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}
