package cmd

import (
	"fmt"
	"time"

	"github.com/OpenCHAMI/pductl/internal/cache"
	"github.com/OpenCHAMI/pductl/internal/cache/sqlite"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use: "history [endpoint]",
	Example: `  // last 20 changes made through the daemon
  pductl history --history-file /var/lib/pductl/history.db -n 20
  // changes to rack1 in the last day
  pductl history rack1 --since 24h`,
	Short: "List outlet changes recorded by the daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openHistory()
		if err != nil {
			return err
		}
		defer history.Close()

		filter := cache.Filter{Limit: viper.GetInt("history.limit")}
		if len(args) == 1 {
			filter.Endpoint = args[0]
		}
		if since := viper.GetDuration("history.since"); since > 0 {
			filter.Since = time.Now().Add(-since).UTC()
		}
		events, err := history.Get(filter)
		if err != nil {
			return err
		}
		return printData(cmd, cache.OutletEvents(events))
	},
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Args:  cobra.MinimumNArgs(1),
	Short: "Remove recorded changes by ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid event ID %q: %w", arg, err)
			}
			ids = append(ids, id)
		}
		history, err := openHistory()
		if err != nil {
			return err
		}
		defer history.Close()
		return history.Delete(ids...)
	},
}

func openHistory() (*sqlite.History, error) {
	path := viper.GetString("history.file")
	if path == "" {
		return nil, fmt.Errorf("no history file set (use --history-file or history.file)")
	}
	return sqlite.OpenHistory(path)
}

func init() {
	addFlag("history.limit", historyCmd, "limit", "n", 0, "Show at most this many changes")
	addFlag("history.since", historyCmd, "since", "", time.Duration(0), "Only show changes newer than this")

	historyCmd.AddCommand(historyRemoveCmd)
	rootCmd.AddCommand(historyCmd)
}
