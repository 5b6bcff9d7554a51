// Package backup copies the ledger database to and from a single file.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
	"github.com/AvaProtocol/hybrid-compute/storage"
)

const backupFileName = "ledger.backup"

// Backup writes a full backup of db under dir/<yy-mm-dd-hh-mm>/ and returns
// the file it wrote.
func Backup(ctx context.Context, db storage.Storage, dir string, log logger.Logger) (string, error) {
	log = logger.EnsureLogger(log)

	backupPath := filepath.Join(dir, time.Now().Format("06-01-02-15-04"))
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupFile := filepath.Join(backupPath, backupFileName)
	f, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	log.Info("running backup", "db", db.DbPath(), "file", backupFile)
	// since 0 is a full backup
	version, err := db.Backup(ctx, f, 0)
	if err != nil {
		return "", fmt.Errorf("backup operation failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", err
	}

	log.Info("backup completed", "file", backupFile, "version", version)
	return backupFile, nil
}

// Restore loads a file written by Backup into db
func Restore(ctx context.Context, db storage.Storage, file string, log logger.Logger) error {
	log = logger.EnsureLogger(log)

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	log.Info("running restore", "db", db.DbPath(), "file", file)
	if err := db.Load(ctx, f); err != nil {
		return fmt.Errorf("restore operation failed: %w", err)
	}
	return nil
}
