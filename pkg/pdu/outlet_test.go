package pdu

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestOutletRangeChecked(t *testing.T) {
	d := newMockPDU(4)
	opts := testOptions(d)
	opts.MonitorInterval = time.Hour
	c := connect(t, d, opts)
	d.startRecording()

	for _, n := range []int{-1, 0, 5, 100} {
		if _, err := c.GetOutletState(n); !errors.Is(err, ErrRange) {
			t.Errorf("GetOutletState(%d): expected ErrRange, got %v", n, err)
		}
		if err := c.SetOutletState(n, true); !errors.Is(err, ErrRange) {
			t.Errorf("SetOutletState(%d): expected ErrRange, got %v", n, err)
		}
	}
	if events := d.recorded(); len(events) != 0 {
		t.Errorf("unexpected wire traffic for out-of-range outlets: %q", events)
	}
}

func TestGetOutletState(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))
	d.setState(2, true)

	on, err := c.GetOutletState(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !on {
		t.Error("expected outlet 2 to be on")
	}

	on, err = c.GetOutletState(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if on {
		t.Error("expected outlet 3 to be off")
	}
}

func TestGetOutletStateIsNotCached(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))

	for _, want := range []bool{false, true, false} {
		d.setState(1, want)
		got, err := c.GetOutletState(1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

func TestSetOutletState(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))

	if err := c.SetOutletState(3, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if on, _ := c.GetOutletState(3); !on {
		t.Error("expected outlet 3 to be on")
	}
	if err := c.SetOutletState(3, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if on, _ := c.GetOutletState(3); on {
		t.Error("expected outlet 3 to be off")
	}
}

func TestSetOutletStateWrongConfirmation(t *testing.T) {
	d := newMockPDU(4)
	d.confirm = func(n int, state bool) string {
		return fmt.Sprintf("%d: Outlet turned off.", n)
	}
	c := connect(t, d, testOptions(d))

	if err := c.SetOutletState(3, true); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("a protocol error should not drop the connection, got %s", c.State())
	}
}

func TestGetOutletStateUnparseable(t *testing.T) {
	tr := &scriptedTransport{reads: [][]string{
		{"L0", "L1", "L2", "L3", "Outlets 2"},
		{},
		{"Welcome"},
		{"\t02\tON\t"},
		{"status 1", "garbage"},
	}}
	c := New("/dev/ttyS0", DefaultCredentials, Options{
		SettleDelay: -1,
		Opener:      func(string) (Transport, error) { return tr, nil },
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer c.Disconnect()

	if _, err := c.GetOutletState(1); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestGetAllOutletStates(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))
	d.setState(1, true)
	d.setState(4, true)

	states, err := c.GetAllOutletStates()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []bool{true, false, false, true}; !reflect.DeepEqual(states, want) {
		t.Errorf("expected %v, got %v", want, states)
	}
	for i, state := range states {
		got, err := c.GetOutletState(i + 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != state {
			t.Errorf("outlet %d: GetAllOutletStates says %v, GetOutletState says %v", i+1, state, got)
		}
	}
}

func TestOutletCountRequiresConnection(t *testing.T) {
	d := newMockPDU(4)
	c := New("/dev/ttyS0", DefaultCredentials, testOptions(d))
	if _, err := c.GetOutletCount(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := c.GetOutletState(1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := c.GetAllOutletStates(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestInventory(t *testing.T) {
	d := newMockPDU(2)
	c := connect(t, d, testOptions(d))
	d.setState(2, true)

	inv, err := c.Inventory("rack1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &PDUInventory{
		Hostname:     "rack1",
		SerialDevice: "/dev/ttyS0",
		State:        "connected",
		Outlets: []PDUOutlet{
			{ID: "1", Name: "rack1_Outlet_1", PowerState: "OFF"},
			{ID: "2", Name: "rack1_Outlet_2", PowerState: "ON"},
		},
	}
	if !reflect.DeepEqual(inv, want) {
		t.Errorf("expected %+v, got %+v", want, inv)
	}
}
