package cmd

import (
	"fmt"

	"github.com/OpenCHAMI/pductl/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if cmd.Flag("all").Value.String() == "true" {
			return printData(cmd, info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
		return nil
	},
}

// SetVersionInfo passes build metadata from main.
func SetVersionInfo(v, commit, date string) {
	version.Set(v, commit, date)
	rootCmd.Version = version.Get().String()
}

func init() {
	versionCmd.Flags().Bool("all", false, "show all build information")
	rootCmd.AddCommand(versionCmd)
}
