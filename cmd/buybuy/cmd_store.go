package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/MariuszDW/BuyBuy-sub001/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the store up to the current schema version",
		Long: `Upgrades the store file one version at a time. A snapshot is taken
before every step, and a failed step leaves the file as it was.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			pipeline := newPipeline(newBackupManager(cfg, logger), logger)

			before, err := database.SchemaVersion(cmd.Context(), cfg.StorePath)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "no store at %s\n", cfg.StorePath)
				return nil
			}
			if err != nil {
				return err
			}
			if err := pipeline.Run(cmd.Context(), cfg.StorePath); err != nil {
				return err
			}
			after, err := database.SchemaVersion(cmd.Context(), cfg.StorePath)
			if err != nil {
				return err
			}

			if before == after {
				fmt.Fprintf(cmd.OutOrStdout(), "store is at version %d, nothing to do\n", after)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated store from version %d to %d\n", before, after)
			}
			return nil
		},
	}
}

type storeStatus struct {
	Path    string
	Version int64
	Target  int64
	Lists   int
	Items   int
	Trashed int
}

func readStatus(ctx context.Context, path string, target int64) (*storeStatus, error) {
	st := &storeStatus{Path: path, Target: target}
	version, err := database.SchemaVersion(ctx, path)
	if err != nil {
		return nil, err
	}
	st.Version = version

	db, err := database.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	queries := []struct {
		dst   *int
		query string
	}{
		{&st.Lists, `SELECT COUNT(*) FROM shopping_lists`},
		{&st.Items, `SELECT COUNT(*) FROM shopping_items WHERE list_id IS NOT NULL`},
		{&st.Trashed, `SELECT COUNT(*) FROM shopping_items WHERE list_id IS NULL`},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("count rows: %w", err)
		}
	}
	return st, nil
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the store's schema version and row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			st, err := readStatus(cmd.Context(), cfg.StorePath, database.CurrentVersion)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "no store at %s\n", cfg.StorePath)
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", headerStyle.Render("store  "), st.Path)
			fmt.Fprintf(out, "%s %d (current %d)\n", headerStyle.Render("version"), st.Version, st.Target)
			fmt.Fprintf(out, "%s %d\n", headerStyle.Render("lists  "), st.Lists)
			fmt.Fprintf(out, "%s %d\n", headerStyle.Render("items  "), st.Items)
			fmt.Fprintf(out, "%s %d\n", headerStyle.Render("trash  "), st.Trashed)
			if st.Version < st.Target {
				fmt.Fprintln(out, mutedStyle.Render("run `buybuy migrate` to upgrade"))
			}
			return nil
		},
	}
}
