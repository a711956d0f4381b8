package kv

import (
	"github.com/agenthive/hivemem/cmd/util"
	"github.com/agenthive/hivemem/lib/config"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/spf13/cobra"
)

var (
	entryStore store.IEntryStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform entry store operations",
		PersistentPreRunE: setupStore,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if entryStore != nil {
				return entryStore.Close()
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add store configuration flags to the KV command
	config.SetupFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(getVersionCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(watchCmd)
}

// setupStore opens the entry store for the invoked subcommand
func setupStore(cmd *cobra.Command, _ []string) error {
	s, err := util.OpenStore(cmd)
	if err != nil {
		return err
	}
	entryStore = s
	return nil
}
