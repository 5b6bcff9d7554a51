package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/hybrid-compute/core/backup"
	"github.com/AvaProtocol/hybrid-compute/core/config"
	"github.com/AvaProtocol/hybrid-compute/storage"
)

var (
	backupDir   string
	restoreFile string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup the fee ledger database",
		Long: `Backup the badger database under db_path to a single file.

Backups are stored in the format: /backup_dir/yy-mm-dd-hh-mm/ledger.backup
Use --dir to specify where to store the backups.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, db, err := openLedgerDB()
			if err != nil {
				return err
			}
			defer db.Close()

			file, err := backup.Backup(cmd.Context(), db, backupDir, nodeConfig.Logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup completed successfully to %s\n", file)
			return nil
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore the fee ledger database from a backup",
		Long: `Restore a backup file into the badger database under db_path.

Use --file to specify the backup file to restore from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, db, err := openLedgerDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := backup.Restore(cmd.Context(), db, restoreFile, nodeConfig.Logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restore completed successfully\n")
			return nil
		},
	}
)

func openLedgerDB() (*config.Config, storage.Storage, error) {
	nodeConfig, err := config.NewConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	if nodeConfig.DbPath == "" {
		return nil, nil, fmt.Errorf("db_path is not configured")
	}

	db, err := storage.NewWithPath(nodeConfig.DbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database at %s: %w", nodeConfig.DbPath, err)
	}
	return nodeConfig, db, nil
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "./backup", "Directory to store backups")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file to restore from (required)")
	restoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(restoreCmd)
}
