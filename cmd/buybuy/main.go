package main

import (
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	storePath  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "buybuy",
		Short: "Shopping lists kept in a local SQLite store",
		Long: `buybuy keeps shopping lists and their items in a single SQLite file.

Writes go through one queue so they never interleave. Older store files are
migrated forward on open, with a snapshot taken first.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $BUYBUY_CONFIG)")
	pf.StringVar(&flags.storePath, "store", "", "store file, overrides the config")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newServeCmd(flags),
		newListsCmd(flags),
		newItemsCmd(flags),
		newTrashCmd(flags),
		newMigrateCmd(flags),
		newStatusCmd(flags),
		newBackupCmd(flags),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
