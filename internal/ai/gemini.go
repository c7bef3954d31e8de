package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rtvpioli/assistant-engine/internal/config"
	"github.com/rtvpioli/assistant-engine/internal/observability"
)

// GeminiProvider generates replies through the Gemini API (Google AI Studio).
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	logger      *observability.Logger
}

func NewGeminiProvider(ctx context.Context, cfg config.AIConfig, logger *observability.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{Model: p.model}

	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.Prompt
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	content := genai.NewContentFromText(prompt, genai.RoleUser)
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{content}, genCfg)
	result.LatencyMs = latencyMs(start)
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		result.Error = "no response candidates"
		return result, fmt.Errorf("gemini generate: no response candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	result.Text = strings.TrimSpace(text.String())
	result.Success = result.Text != ""
	if !result.Success {
		result.Error = "empty response"
	}

	if resp.UsageMetadata != nil {
		result.TokensInput = int(resp.UsageMetadata.PromptTokenCount)
		result.TokensOutput = int(resp.UsageMetadata.CandidatesTokenCount)
	} else {
		// Estimate when the API reports no usage: ~4 characters per token.
		result.TokensInput = len(prompt) / 4
		result.TokensOutput = len(result.Text) / 4
	}

	p.logger.Debug().
		Str("model", p.model).
		Int("tokens_input", result.TokensInput).
		Int("tokens_output", result.TokensOutput).
		Int("latency_ms", result.LatencyMs).
		Bool("success", result.Success).
		Msg("Gemini generation completed")

	return result, nil
}

func (p *GeminiProvider) TestConnection(ctx context.Context) error {
	res, err := p.Generate(ctx, Request{Prompt: "Responde solo con la palabra: OK"})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("gemini test: %s", res.Error)
	}
	return nil
}
