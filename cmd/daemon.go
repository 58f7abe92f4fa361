package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenCHAMI/pductl/pkg/daemon"
	"github.com/spf13/cobra"
)

// The `daemon` command connects to every configured PDU and serves their
// outlets over HTTP until interrupted.
var daemonCmd = &cobra.Command{
	Use: "daemon",
	Example: `  // serve the ports listed in the config file
  pductl daemon -c config.yaml
  // listen on a different address with a bearer token
  pductl daemon -e :9000 --token s3cret`,
	Short: "Serve PDU outlets over HTTP",
	Long:  "Connects to every PDU in the 'ports' configuration and exposes their outlets as HTTP endpoints under /{endpoint}/. Fails if any PDU cannot be reached at startup.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return daemon.Run(ctx, cfg)
	},
}

func init() {
	addFlag("daemon.endpoint", daemonCmd, "endpoint", "e", ":8080", "Address for the daemon to listen on")
	addFlag("daemon.token", daemonCmd, "token", "", "", "Static bearer token required on every request")
	addFlag("daemon.jwt-public-key", daemonCmd, "jwt-public-key", "", "", "PEM public key used to verify bearer JWTs")

	rootCmd.AddCommand(daemonCmd)
}
