package pdu

import (
	"fmt"
	"strconv"
)

type PDUOutlet struct {
	ID         string `json:"id" yaml:"id"`                   // e.g., "3"
	Name       string `json:"name" yaml:"name"`               // e.g., "pdu0_Outlet_3"
	PowerState string `json:"power_state" yaml:"power_state"` // "ON" or "OFF"
}

type PDUInventory struct {
	Hostname     string      `json:"hostname" yaml:"hostname"`
	SerialDevice string      `json:"serial_device" yaml:"serial_device"`
	State        string      `json:"state" yaml:"state"`
	Outlets      []PDUOutlet `json:"outlets" yaml:"outlets"`
}

// Inventory reads every outlet state and returns them as a PDUInventory
// named after the given endpoint.
func (c *Controller) Inventory(name string) (*PDUInventory, error) {
	states, err := c.GetAllOutletStates()
	if err != nil {
		return nil, err
	}

	inventory := &PDUInventory{
		Hostname:     name,
		SerialDevice: c.Device(),
		State:        c.State().String(),
		Outlets:      make([]PDUOutlet, 0, len(states)),
	}
	for i, state := range states {
		id := strconv.Itoa(i + 1)
		inventory.Outlets = append(inventory.Outlets, PDUOutlet{
			ID:         id,
			Name:       fmt.Sprintf("%s_Outlet_%s", name, id),
			PowerState: tagFor(state).String(),
		})
	}
	return inventory, nil
}
