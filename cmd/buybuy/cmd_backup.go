package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take, list and restore store snapshots",
	}

	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Take a snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			snap, err := newBackupManager(cfg, logger).Snapshot(cmd.Context(), cfg.StorePath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), snap.Name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List local snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			snaps, err := newBackupManager(cfg, logger).List()
			if err != nil {
				return err
			}
			printSnapshots(cmd.OutOrStdout(), snaps)
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore NAME",
		Short: "Replace the store with a snapshot",
		Long: `Replaces the store file with the named snapshot. The snapshot is read
from the backup directory, or from S3 when it is not there. Stop any running
"buybuy serve" first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := newBackupManager(cfg, logger).Restore(cmd.Context(), args[0], cfg.StorePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", args[0])
			return nil
		},
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete snapshots older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			n, err := newBackupManager(cfg, logger).Cleanup(cmd.Context(), cfg.Backup.Retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshots\n", n)
			return nil
		},
	}

	cmd.AddCommand(snapshot, list, restore, cleanup)
	return cmd
}
