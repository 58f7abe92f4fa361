package pdu

import (
	"fmt"
)

// Controller exposes outlet operations over a Conn. Outlet states are
// never cached; every query goes to the device.
type Controller struct {
	*Conn
}

// New creates a Controller for the PDU on device.
func New(device string, creds Credentials, opts Options) *Controller {
	return &Controller{Conn: NewConn(device, creds, opts)}
}

// GetOutletCount returns the outlet count cached at login.
func (c *Controller) GetOutletCount() (int, error) {
	return c.OutletCount()
}

// GetOutletState reports whether outlet n (1-based) is on.
func (c *Controller) GetOutletState(n int) (bool, error) {
	if err := c.checkOutlet(n); err != nil {
		return false, err
	}
	lines, err := c.Execute(statusCommand(n))
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		switch ParseStatus(line).Tag {
		case TagOn:
			return true, nil
		case TagOff:
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: no state for outlet %d in status output", ErrProtocol, n)
}

// SetOutletState switches outlet n on or off and checks the PDU confirmed it.
func (c *Controller) SetOutletState(n int, state bool) error {
	if err := c.checkOutlet(n); err != nil {
		return err
	}
	lines, err := c.Execute(switchCommand(n, state))
	if err != nil {
		return err
	}
	want := tagFor(state)
	for _, line := range lines {
		if ParseConfirmation(line).Tag == want {
			return nil
		}
	}
	return fmt.Errorf("%w: outlet %d not confirmed %s", ErrProtocol, n, want)
}

// GetAllOutletStates returns the state of outlets 1..count in order.
func (c *Controller) GetAllOutletStates() ([]bool, error) {
	count, err := c.OutletCount()
	if err != nil {
		return nil, err
	}
	states := make([]bool, 0, count)
	for n := 1; n <= count; n++ {
		state, err := c.GetOutletState(n)
		if err != nil {
			return nil, fmt.Errorf("failed to get state of outlet %d: %w", n, err)
		}
		states = append(states, state)
	}
	return states, nil
}

func (c *Controller) checkOutlet(n int) error {
	count, err := c.OutletCount()
	if err != nil {
		return err
	}
	if n < 1 || n > count {
		return fmt.Errorf("%w: outlet %d not in [1, %d]", ErrRange, n, count)
	}
	return nil
}
