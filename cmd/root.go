package cmd

import (
	"fmt"
	"os"

	"github.com/agenthive/hivemem/cmd/kv"
	"github.com/agenthive/hivemem/cmd/lock"
	"github.com/agenthive/hivemem/cmd/stats"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hivemem",
		Short: "shared entry store for agent coordination",
		Long: fmt.Sprintf(`hivemem (v%s)

A shared, namespaced entry store for cross-agent coordination,
with tiered persistence, locking, versioning and change notification.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hivemem",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hivemem v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(stats.StatsCommand)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
