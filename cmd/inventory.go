package cmd

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/cznic/mathutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
)

// The `inventory` command snapshots the outlets of several PDUs at once.
var inventoryCmd = &cobra.Command{
	Use: "inventory [endpoint]...",
	Example: `  // every configured PDU
  pductl inventory -F yaml
  // selected PDUs, two at a time
  pductl inventory rack1 rack2 rack3 -j 2`,
	Short: "Print the outlet inventory of one or more PDUs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		endpoints := args
		if len(endpoints) == 0 {
			if d := daemonClient(); d != nil {
				if endpoints, err = d.Endpoints(); err != nil {
					return err
				}
			} else {
				for _, p := range cfg.Ports {
					endpoints = append(endpoints, p.Endpoint)
				}
			}
		}
		endpoints = uniqueEndpoints(endpoints)
		if len(endpoints) == 0 {
			return fmt.Errorf("no endpoints given and none configured")
		}

		// Set the minimum/maximum number of concurrent processes
		concurrency := viper.GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = len(endpoints)
		}
		concurrency = mathutil.Clamp(concurrency, 1, len(endpoints))

		results := collectInventories(cmd.Context(), concurrency, endpoints)
		inventories := make([]*pdu.PDUInventory, 0, len(results))
		keys := maps.Keys(results)
		slices.Sort(keys)
		for _, endpoint := range keys {
			inventories = append(inventories, results[endpoint])
		}
		if len(inventories) < len(endpoints) {
			log.Warn().Msgf("inventory incomplete: %d of %d PDUs answered", len(inventories), len(endpoints))
		}
		return printData(cmd, inventoryList(inventories))
	},
}

// uniqueEndpoints returns the endpoints sorted with repeats dropped, so
// no serial device is opened by two workers at once.
func uniqueEndpoints(endpoints []string) []string {
	endpoints = slices.Clone(endpoints)
	slices.Sort(endpoints)
	return slices.Compact(endpoints)
}

// collectInventories queries endpoints with a fixed number of workers.
// Endpoints that fail are logged and left out of the result.
func collectInventories(ctx context.Context, concurrency int, endpoints []string) map[string]*pdu.PDUInventory {
	type result struct {
		endpoint  string
		inventory *pdu.PDUInventory
	}
	dataChannel := make(chan string, 1)
	returnChannel := make(chan result, concurrency)
	results := make(map[string]*pdu.PDUInventory, len(endpoints))
	var wg sync.WaitGroup

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range dataChannel {
				var inventory *pdu.PDUInventory
				err := withController(ctx, endpoint, func(c outletController) error {
					var err error
					inventory, err = c.Inventory(endpoint)
					return err
				})
				if err != nil {
					log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to get inventory")
					continue
				}
				returnChannel <- result{endpoint, inventory}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for r := range returnChannel {
			results[r.endpoint] = r.inventory
		}
		close(done)
	}()

	for _, endpoint := range endpoints {
		dataChannel <- endpoint
	}
	close(dataChannel)
	wg.Wait()
	close(returnChannel)
	<-done
	return results
}

type inventoryList []*pdu.PDUInventory

func (l inventoryList) List() []string {
	var lines []string
	for _, inv := range l {
		lines = append(lines, fmt.Sprintf("%s (%s, %s)", inv.Hostname, inv.SerialDevice, inv.State))
		for _, o := range inv.Outlets {
			lines = append(lines, fmt.Sprintf("  %s\t%s", o.Name, o.PowerState))
		}
	}
	return lines
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
}
