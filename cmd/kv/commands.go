package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			var value any = args[1]
			// values that parse as JSON are stored structured
			var parsed any
			if err := json.Unmarshal([]byte(args[1]), &parsed); err == nil {
				value = parsed
			}

			namespace, _ := cmd.Flags().GetString("set-namespace")
			dataType, _ := cmd.Flags().GetString("type")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			agent, _ := cmd.Flags().GetString("agent")

			res, err := entryStore.Set(cmd.Context(), key, value, store.SetOptions{
				Namespace: namespace,
				DataType:  store.DataType(dataType),
				TTL:       ttl,
				Agent:     agent,
			})
			if err != nil {
				return err
			}
			fmt.Printf("set successfully, version=%d, size=%d\n", res.Version, res.Size)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			agent, _ := cmd.Flags().GetString("agent")
			res, err := entryStore.Get(cmd.Context(), key, store.GetOptions{Agent: agent})
			if err != nil {
				return err
			}
			if !res.Found {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			value, err := json.Marshal(res.Value)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=true, version-owner=%s, value=%s\n", key, res.Meta.Owner, value)
			return nil
		},
	}
	getVersionCmd = &cobra.Command{
		Use:   "getv [key] [version]",
		Short: "Reads a historical version of a versioned entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			version, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			res, err := entryStore.GetVersion(cmd.Context(), key, version)
			if err != nil {
				return err
			}
			if !res.Found {
				fmt.Printf("key=%s, version=%d, found=false\n", key, version)
				return nil
			}
			value, err := json.Marshal(res.Value)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, version=%d, value=%s\n", key, version, value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			agent, _ := cmd.Flags().GetString("agent")
			purge, _ := cmd.Flags().GetBool("purge-versions")
			existed, err := entryStore.Delete(cmd.Context(), key, store.DeleteOptions{
				Agent:         agent,
				PurgeVersions: purge,
			})
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%v\n", existed)
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists keys matching the filter flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, _ := cmd.Flags().GetString("filter-namespace")
			dataType, _ := cmd.Flags().GetString("filter-type")
			owner, _ := cmd.Flags().GetString("owner")
			pattern, _ := cmd.Flags().GetString("pattern")

			keys, err := entryStore.Keys(cmd.Context(), store.Filter{
				Namespace: namespace,
				DataType:  store.DataType(dataType),
				Owner:     owner,
				Pattern:   pattern,
			})
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			fmt.Printf("%d key(s)\n", len(keys))
			return nil
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [pattern]",
		Short: "Prints mutation events for keys matching the pattern until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cancel, err := entryStore.Subscribe(args[0], nil, func(evt store.Event) {
				fmt.Printf("%s %s key=%s version=%d agent=%s\n",
					evt.Timestamp.Format(time.RFC3339), evt.Type, evt.Key, evt.Version, evt.Agent)
			})
			if err != nil {
				return err
			}
			defer cancel()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
)

func init() {
	setCmd.Flags().String("set-namespace", "", "namespace of the entry (default: configured namespace)")
	setCmd.Flags().String("type", "", "data type (transient, cached, persistent, versioned, shared, locked)")
	setCmd.Flags().Duration("ttl", 0, "entry time to live (0 = no expiry)")

	delCmd.Flags().Bool("purge-versions", false, "also remove the entry's version history")

	keysCmd.Flags().String("filter-namespace", "", "only keys in this namespace")
	keysCmd.Flags().String("filter-type", "", "only keys with this data type")
	keysCmd.Flags().String("owner", "", "only keys owned by this agent")
	keysCmd.Flags().String("pattern", "", "key pattern (literal, glob or re: prefix)")

	KeyValueCommands.PersistentFlags().String("agent", "", "agent id for access logging and ownership")
}
