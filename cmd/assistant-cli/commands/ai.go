package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtvpioli/assistant-engine/cmd/assistant-cli/ui"
	"github.com/rtvpioli/assistant-engine/internal/ai"
)

var aiTestPrompt string

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Inspect the generative AI provider",
}

var aiTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify the configured AI provider responds",
	RunE:  runAITest,
}

func init() {
	aiTestCmd.Flags().StringVarP(&aiTestPrompt, "prompt", "p", "", "optional prompt for a sample generation")

	aiCmd.AddCommand(aiTestCmd)
	rootCmd.AddCommand(aiCmd)
}

func runAITest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	var provider ai.Provider = ai.NoneProvider{}
	if cfg.AI.Provider == "gemini" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.AI, logger)
		if err != nil {
			return fmt.Errorf("create gemini provider: %w", err)
		}
		provider = gemini
	}

	ui.Info("Provider: %s", provider.Name())
	ui.Info("Model: %s", cfg.AI.Model)

	spinner := ui.NewSpinner("Testing connection...")
	spinner.Start()
	err = provider.TestConnection(ctx)
	spinner.Stop()

	if err != nil {
		ui.Error("Connection failed: %v", err)
		return err
	}
	ui.Success("Connection OK")

	if aiTestPrompt == "" {
		return nil
	}

	spinner = ui.NewSpinner("Generating...")
	spinner.Start()
	result, err := provider.Generate(ctx, ai.Request{
		Prompt:       aiTestPrompt,
		SystemPrompt: cfg.Assistant.SystemPrompt,
	})
	spinner.Stop()

	if err != nil {
		ui.Error("Generation failed: %v", err)
		return err
	}
	if !result.Success {
		ui.Error("Generation failed: %s", result.Error)
		return fmt.Errorf("provider returned an error")
	}

	ui.Section("Sample Generation")
	fmt.Println(result.Text)
	ui.Table([]string{"Metric", "Value"}, [][]string{
		{"Tokens in", fmt.Sprintf("%d", result.TokensInput)},
		{"Tokens out", fmt.Sprintf("%d", result.TokensOutput)},
		{"Latency", fmt.Sprintf("%d ms", result.LatencyMs)},
		{"Est. cost", fmt.Sprintf("$%.6f", ai.EstimateCost(result.TokensInput, result.TokensOutput))},
	})
	return nil
}
