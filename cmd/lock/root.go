package lock

import (
	"fmt"
	"time"

	"github.com/agenthive/hivemem/cmd/util"
	"github.com/agenthive/hivemem/lib/config"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/spf13/cobra"
)

var (
	entryStore store.IEntryStore

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		PersistentPreRunE: setupStore,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if entryStore != nil {
				return entryStore.Close()
			}
			return nil
		},
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key] [holder]",
		Short: "Acquire an exclusive lock on a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("lock-ttl-flag")
			if err := entryStore.AcquireLock(args[0], args[1], ttl); err != nil {
				return err
			}
			fmt.Printf("lock acquired, expires in %s\n", ttl)
			return nil
		},
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [holder]",
		Short: "Release a previously acquired lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			released, err := entryStore.ReleaseLock(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("released=%v\n", released)
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	// Add store configuration flags to the lock command
	config.SetupFlags(LockCommands)

	acquireCmd.Flags().Duration("lock-ttl-flag", 5*time.Second, "how long the lock is held before it expires")
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
