package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtvpioli/assistant-engine/cmd/assistant-cli/ui"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Close sessions with no activity past the configured TTL",
	RunE:  runSessionsPurge,
}

func init() {
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsPurge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
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

	closed, err := storage.NewSessionRepository(db).CloseExpired(ctx, cfg.Assistant.SessionTTL)
	if err != nil {
		return fmt.Errorf("close expired sessions: %w", err)
	}

	if closed == 0 {
		ui.Info("No expired sessions")
		return nil
	}
	ui.Success("Closed %d expired sessions", closed)
	return nil
}
