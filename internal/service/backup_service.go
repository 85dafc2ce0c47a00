package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"habitpoints/internal/models"
)

// BackupService handles file based export and restore of the store
type BackupService struct {
	store  *Store
	logger logrus.FieldLogger
}

// NewBackupService creates a new backup service
func NewBackupService(store *Store, logger logrus.FieldLogger) *BackupService {
	return &BackupService{store: store, logger: logger}
}

// Export writes an export of the current state to outputPath
func (s *BackupService) Export(outputPath string) error {
	data, err := s.store.ExportData()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	stats := s.store.Stats()
	s.logger.WithFields(logrus.Fields{
		"path":     outputPath,
		"children": stats.TotalChildren,
		"records":  stats.TotalRecords,
	}).Info("Data exported")
	return nil
}

// Import restores the store from an export file
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores the store from an export stream (for file uploads)
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read import data: %w", err)
	}
	if err := s.store.ImportData(ctx, string(data)); err != nil {
		return err
	}

	s.logger.WithField("children", len(s.store.Children())).Info("Data imported")
	return nil
}

// Stats returns dashboard totals for the current state
func (s *BackupService) Stats() models.Stats {
	return s.store.Stats()
}
