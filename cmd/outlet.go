package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/OpenCHAMI/pductl/internal/format"
	"github.com/OpenCHAMI/pductl/pkg/client"
	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The `outlet` commands open the serial port themselves unless
// --daemon-url is set, in which case the daemon does the work. The serial
// path cannot be used on a PDU a running daemon is holding.
var outletCmd = &cobra.Command{
	Use: "outlet",
	Example: `  // number of outlets on rack1
  pductl outlet count rack1
  // state of every outlet, then of outlet 3
  pductl outlet status rack1
  pductl outlet status rack1 3
  // switch outlet 3
  pductl outlet on rack1 3
  pductl outlet off rack1 3`,
	Short: "Query and switch outlets on a PDU directly",
}

var outletCountCmd = &cobra.Command{
	Use:   "count <endpoint>",
	Args:  cobra.ExactArgs(1),
	Short: "Print the number of outlets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd.Context(), args[0], func(c outletController) error {
			count, err := c.GetOutletCount()
			if err != nil {
				return err
			}
			return printData(cmd, count)
		})
	},
}

var outletStatusCmd = &cobra.Command{
	Use:   "status <endpoint> [outlet]",
	Args:  cobra.RangeArgs(1, 2),
	Short: "Print the state of one or all outlets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd.Context(), args[0], func(c outletController) error {
			if len(args) == 1 {
				states, err := c.GetAllOutletStates()
				if err != nil {
					return err
				}
				return printData(cmd, outletStates(states))
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid outlet number %q", args[1])
			}
			state, err := c.GetOutletState(n)
			if err != nil {
				return err
			}
			return printData(cmd, state)
		})
	},
}

func switchCmd(state bool) *cobra.Command {
	name := "off"
	if state {
		name = "on"
	}
	return &cobra.Command{
		Use:   name + " <endpoint> <outlet>",
		Args:  cobra.ExactArgs(2),
		Short: "Switch an outlet " + name,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid outlet number %q", args[1])
			}
			return withController(cmd.Context(), args[0], func(c outletController) error {
				if err := c.SetOutletState(n, state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "outlet %d turned %s\n", n, name)
				return nil
			})
		},
	}
}

// outletStates prints as "N: ON" lines in list output.
type outletStates []bool

func (s outletStates) List() []string {
	lines := make([]string, 0, len(s))
	for i, on := range s {
		state := "OFF"
		if on {
			state = "ON"
		}
		lines = append(lines, fmt.Sprintf("%d: %s", i+1, state))
	}
	return lines
}

// outletController is satisfied by both *pdu.Controller and *client.PDU.
type outletController interface {
	GetOutletCount() (int, error)
	GetOutletState(n int) (bool, error)
	SetOutletState(n int, state bool) error
	GetAllOutletStates() ([]bool, error)
	Inventory(name string) (*pdu.PDUInventory, error)
}

func daemonClient() *client.Client {
	url := viper.GetString("client.url")
	if url == "" {
		return nil
	}
	opts := []client.Option{client.WithToken(viper.GetString("client.token"))}
	if cacert := viper.GetString("client.cacert"); cacert != "" {
		opts = append(opts, client.WithSecureTLS(cacert))
	}
	return client.New(url, opts...)
}

// withController runs fn against the PDU mapped to endpoint, through the
// daemon if one is configured and over the serial port otherwise.
func withController(ctx context.Context, endpoint string, fn func(c outletController) error) error {
	if d := daemonClient(); d != nil {
		return fn(d.PDU(endpoint))
	}
	c, err := openController(endpoint)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Disconnect()
	return fn(c)
}

func openController(endpoint string) (*pdu.Controller, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	port, ok := cfg.Port(endpoint)
	if !ok {
		return nil, fmt.Errorf("no port configured for endpoint %q", endpoint)
	}
	store, err := cfg.OpenSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets store: %w", err)
	}
	return pdu.New(port.Device, cfg.Credentials(port, store), cfg.PDU), nil
}

func printData(cmd *cobra.Command, data any) error {
	b, err := format.Marshal(data, format.DataFormat(viper.GetString("output-format")))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func init() {
	outletCmd.AddCommand(outletCountCmd, outletStatusCmd, switchCmd(true), switchCmd(false))
	rootCmd.AddCommand(outletCmd)
}
