package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"habitpoints/internal/archive"
	"habitpoints/internal/config"
	"habitpoints/internal/database"
	"habitpoints/internal/repository"
	"habitpoints/internal/scheduler"
	"habitpoints/internal/service"
	"habitpoints/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(context.Background())
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs. It works on the local document
// store only, whatever STORAGE_MODE says.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	db     *database.DB
	store  *service.Store
	backup *service.BackupService
}

// newRootCmd builds the command tree. The caller closes a when done.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "backup",
		Short:        "Export, import and clear the habit points data store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}

	root.AddCommand(
		newExportCmd(a),
		newImportCmd(a),
		newClearCmd(a),
		newStatsCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.NewWithOutput(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	// Run migrations to ensure schema is up to date
	if _, err := db.RunMigrations(cmd.Context()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	docs := repository.NewDocumentRepository(db, cfg.MaxDocumentBytes)
	a.store = service.NewStore(docs, a.log)
	a.store.Load(cmd.Context())
	a.backup = service.NewBackupService(a.store, a.log)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func newExportCmd(a *app) *cobra.Command {
	var (
		output    string
		toArchive bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all data to an export file",
		Long:  "Write all data to an export file. With --archive the export goes to the configured archive sink, and to --output as well when it is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()

			if toArchive {
				sink, err := archive.New(cmd.Context(), a.cfg.Archive)
				if err != nil {
					return err
				}
				if sink == nil {
					return errors.New("no archive driver configured (set ARCHIVE_DRIVER)")
				}
				location, err := scheduler.ArchiveSnapshot(cmd.Context(), a.store, sink, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archived export to %s\n", location)
				if output == "" {
					return nil
				}
			}

			if output == "" {
				output = service.ExportFilename(now)
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}
			if err := a.backup.Export(output); err != nil {
				return err
			}

			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s (%.2f KB)\n", output, float64(info.Size())/1024)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: habits-data-YYYY-MM-DD.json)")
	cmd.Flags().BoolVar(&toArchive, "archive", false, "write the export to the configured archive sink")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace all data with the contents of an export file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.backup.Import(cmd.Context(), input); err != nil {
				return err
			}
			stats := a.backup.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d children and %d records\n", stats.TotalChildren, stats.TotalRecords)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "export file to import (required)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all children, items and records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear data without --yes")
			}
			a.store.ClearAllData(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "All data cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard totals as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.backup.Stats())
		},
	}
}
