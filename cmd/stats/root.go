package stats

import (
	"encoding/json"
	"fmt"

	"github.com/agenthive/hivemem/cmd/util"
	"github.com/agenthive/hivemem/lib/config"
	"github.com/spf13/cobra"
)

// StatsCommand prints a point-in-time summary of the store.
var StatsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := util.OpenStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		out, err := json.MarshalIndent(s.GetStats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	cobra.OnInitialize(util.InitConfig)
	config.SetupFlags(StatsCommand)
}
