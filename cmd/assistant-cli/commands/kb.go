package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rtvpioli/assistant-engine/cmd/assistant-cli/ui"
	"github.com/rtvpioli/assistant-engine/internal/knowledge"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

var kbImportFile string

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base documents",
}

var kbImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import knowledge base documents from a YAML file",
	Long: `Import reads a YAML file with a documents list and loads each entry
into the knowledge base. Keywords are generated automatically unless the
entry provides its own.`,
	RunE: runKBImport,
}

var kbReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Regenerate search keywords for every document",
	RunE:  runKBReindex,
}

func init() {
	kbImportCmd.Flags().StringVarP(&kbImportFile, "file", "f", "", "YAML file with documents (required)")
	kbImportCmd.MarkFlagRequired("file")

	kbCmd.AddCommand(kbImportCmd)
	kbCmd.AddCommand(kbReindexCmd)
	rootCmd.AddCommand(kbCmd)
}

type kbImportDoc struct {
	Title    string   `yaml:"title"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
}

type kbImportFileSpec struct {
	Documents []kbImportDoc `yaml:"documents"`
}

func runKBImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(kbImportFile)
	if err != nil {
		return fmt.Errorf("read documents file: %w", err)
	}

	var spec kbImportFileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parse documents file: %w", err)
	}
	if len(spec.Documents) == 0 {
		return fmt.Errorf("no documents found in %s", kbImportFile)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := storage.NewKnowledgeRepository(db)

	spinner := ui.NewSpinner(fmt.Sprintf("Importing %d documents...", len(spec.Documents)))
	spinner.Start()

	imported := 0
	for _, doc := range spec.Documents {
		if doc.Title == "" || doc.Content == "" {
			spinner.Stop()
			return fmt.Errorf("document %d: title and content are required", imported+1)
		}

		keywords := doc.Keywords
		if len(keywords) == 0 {
			keywords = knowledge.GenerateKeywords(doc.Title, doc.Content)
		}

		if err := repo.Create(ctx, &storage.KnowledgeDocument{
			Title:    doc.Title,
			Content:  doc.Content,
			Keywords: keywords,
			Active:   true,
		}); err != nil {
			spinner.Stop()
			return fmt.Errorf("import %q: %w", doc.Title, err)
		}

		imported++
		ui.Verbose("imported %q (%d keywords)", doc.Title, len(keywords))
	}
	spinner.Stop()

	ui.Success("Imported %d documents from %s", imported, kbImportFile)
	return nil
}

func runKBReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
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

	repo := storage.NewKnowledgeRepository(db)

	docs, err := repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		ui.Warning("Knowledge base is empty, nothing to reindex")
		return nil
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Reindexing %d documents...", len(docs)))
	spinner.Start()

	for _, doc := range docs {
		keywords := knowledge.GenerateKeywords(doc.Title, doc.Content)
		if err := repo.UpdateKeywords(ctx, doc.ID, keywords); err != nil {
			spinner.Stop()
			return fmt.Errorf("reindex %q: %w", doc.Title, err)
		}
		ui.Verbose("reindexed %q (%d keywords)", doc.Title, len(keywords))
	}
	spinner.Stop()

	ui.Success("Reindexed %d documents", len(docs))
	return nil
}
