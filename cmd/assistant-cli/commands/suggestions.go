package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtvpioli/assistant-engine/cmd/assistant-cli/ui"
	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/notify"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Review what users asked and the assistant could not answer",
}

var suggestionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open suggestions",
	RunE:  runSuggestionsList,
}

var suggestionsDigestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Email the open-suggestions digest to the review team",
	RunE:  runSuggestionsDigest,
}

func init() {
	suggestionsCmd.AddCommand(suggestionsListCmd)
	suggestionsCmd.AddCommand(suggestionsDigestCmd)
	rootCmd.AddCommand(suggestionsCmd)
}

func runSuggestionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := storage.NewSuggestionRepository(db).ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list suggestions: %w", err)
	}
	if len(list) == 0 {
		ui.Info("No open suggestions")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			nlp.Truncate(s.Topic, 60),
			string(s.State),
			fmt.Sprintf("%d", s.TimesDetected),
			s.UpdatedAt.Format("02/01/2006"),
		})
	}
	ui.Table([]string{"Topic", "State", "Seen", "Updated"}, rows)
	return nil
}

func runSuggestionsDigest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := storage.NewSuggestionRepository(db).ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list suggestions: %w", err)
	}
	if len(list) == 0 {
		ui.Info("No open suggestions, digest not sent")
		return nil
	}

	mailer := notify.NewSMTPMailer(cfg.Escalation.SMTP, logger)
	notifier := notify.NewNotifier(mailer, cfg.Assistant.CompanyName, cfg.Assistant.SiteURL,
		cfg.Assistant.LinkSecret, cfg.Escalation.ReviewRecipients, logger)

	spinner := ui.NewSpinner("Sending digest...")
	spinner.Start()
	err = notifier.SendSuggestionDigest(ctx, list)
	spinner.Stop()

	if err != nil {
		return fmt.Errorf("send digest: %w", err)
	}

	ui.Success("Digest with %d suggestions sent to %d recipients",
		len(list), len(cfg.Escalation.ReviewRecipients))
	return nil
}
