package pdu

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func connect(t *testing.T, d *mockPDU, opts Options) *Controller {
	t.Helper()
	c := New("/dev/ttyS0", DefaultCredentials, opts)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func TestConnect(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))

	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	count, err := c.OutletCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 outlets, got %d", count)
	}
	if d.openCount() != 1 {
		t.Errorf("expected a single open, got %d", d.openCount())
	}
}

func TestConnectRetriesTransientFailures(t *testing.T) {
	d := newMockPDU(4)
	d.failOpens = 3
	c := connect(t, d, testOptions(d))
	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	if d.openCount() != 4 {
		t.Errorf("expected 4 opens, got %d", d.openCount())
	}
}

func TestConnectGivesUpWhenNeverReady(t *testing.T) {
	d := newMockPDU(4)
	d.notReady = true
	opts := testOptions(d)
	opts.ReadyTimeout = 20 * time.Millisecond

	c := New("/dev/ttyS0", DefaultCredentials, opts)
	err := c.Connect(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if d.openCount() != DefaultConnectAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultConnectAttempts, d.openCount())
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	for i, tr := range d.opened {
		if !tr.closed {
			t.Errorf("transport %d left open after failed connect", i)
		}
	}
	if _, err := c.OutletCount(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestExecuteRequiresConnection(t *testing.T) {
	d := newMockPDU(4)
	c := New("/dev/ttyS0", DefaultCredentials, testOptions(d))
	if _, err := c.Execute("status 1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if d.openCount() != 0 {
		t.Errorf("expected no device access, got %d opens", d.openCount())
	}
}

func TestExecuteReturnsLinesVerbatim(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))
	d.setState(2, true)

	lines, err := c.Execute("status 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"status 2", "Outlet\tName\tStatus\tUsers", "\t02\tON\t"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, lines)
	}
}

func TestExecuteNeverInterleaves(t *testing.T) {
	d := newMockPDU(4)
	opts := testOptions(d)
	opts.MonitorInterval = time.Millisecond
	c := connect(t, d, opts)
	d.startRecording()

	var wg sync.WaitGroup
	for _, cmd := range []string{"status 1", "status 2", "on 3", "off 4"} {
		wg.Add(1)
		go func(cmd string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := c.Execute(cmd); err != nil {
					t.Errorf("execute %q: %v", cmd, err)
					return
				}
			}
		}(cmd)
	}
	wg.Wait()

	events := d.recorded()
	if len(events)%2 != 0 {
		t.Fatalf("expected whole exchanges, got %d events", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		if !strings.HasPrefix(events[i], "W:") || events[i+1] != "R:"+PromptCommand {
			t.Fatalf("interleaved exchange at %d: %q %q", i, events[i], events[i+1])
		}
	}
}

func TestMonitorReconnectsAfterFailure(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))

	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	d.breakCurrent()

	waitForState(t, c.Conn, StateReconnecting)
	if _, err := c.GetOutletState(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected while reconnecting, got %v", err)
	}

	close(gate)
	waitForState(t, c.Conn, StateConnected)

	count, err := c.OutletCount()
	if err != nil || count != 4 {
		t.Fatalf("expected 4 outlets after reconnect, got %d (%v)", count, err)
	}
	if d.openCount() < 2 {
		t.Errorf("expected a second open, got %d", d.openCount())
	}
	if _, err := c.GetOutletState(1); err != nil {
		t.Errorf("expected commands to work after reconnect, got %v", err)
	}
}

func TestFailedCommandTriggersReconnect(t *testing.T) {
	d := newMockPDU(4)
	opts := testOptions(d)
	opts.MonitorInterval = time.Hour
	c := connect(t, d, opts)

	d.breakCurrent()
	if _, err := c.Execute("status 1"); err == nil {
		t.Fatal("expected the broken transport to fail the command")
	}
	waitForState(t, c.Conn, StateConnected)
	if d.openCount() != 2 {
		t.Errorf("expected exactly one reconnect, got %d opens", d.openCount())
	}
}

func TestReconnectRetriesUntilDeviceReturns(t *testing.T) {
	d := newMockPDU(4)
	opts := testOptions(d)
	opts.RetryDelay = 5 * time.Millisecond
	c := connect(t, d, opts)

	d.mu.Lock()
	d.failOpens = 10
	d.mu.Unlock()
	d.breakCurrent()

	waitForState(t, c.Conn, StateReconnecting)
	waitForState(t, c.Conn, StateConnected)
	if d.openCount() != 12 {
		t.Errorf("expected 12 opens, got %d", d.openCount())
	}
}

func TestReconnectOutletCountMismatch(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))

	// a different unit answers on the same port
	d.mu.Lock()
	d.states = make([]bool, 8)
	d.mu.Unlock()
	d.breakCurrent()

	waitForState(t, c.Conn, StateDisconnected)
	opens := d.openCount()
	time.Sleep(30 * time.Millisecond)
	if d.openCount() != opens {
		t.Errorf("expected no further reconnects after a count mismatch")
	}

	_, err := c.Execute("status all")
	if !errors.Is(err, ErrNotConnected) || !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected not connected wrapping a protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), "outlet count changed from 4 to 8") {
		t.Errorf("expected the count change in the error, got %q", err.Error())
	}
	if _, err := c.OutletCount(); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected outlet count to report the protocol error, got %v", err)
	}

	// a fresh connect to the new unit clears the old cause
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("failed to reconnect: %v", err)
	}
	if n, err := c.OutletCount(); err != nil || n != 8 {
		t.Fatalf("expected 8 outlets after reconnect, got %d, %v", n, err)
	}
	c.Disconnect()
	if _, err := c.OutletCount(); err != ErrNotConnected {
		t.Errorf("expected a bare not connected error after disconnect, got %v", err)
	}
}

func TestDisconnectCancelsReconnect(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))

	d.mu.Lock()
	d.failOpens = 1 << 30
	d.mu.Unlock()
	d.breakCurrent()
	waitForState(t, c.Conn, StateReconnecting)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
	time.Sleep(30 * time.Millisecond)
	if c.State() != StateDisconnected {
		t.Errorf("expected to stay disconnected, got %s", c.State())
	}
}

func TestDisconnectAndReconnect(t *testing.T) {
	d := newMockPDU(4)
	c := connect(t, d, testOptions(d))
	first := d.opened[0]

	if err := c.Disconnect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.closed {
		t.Error("expected transport to be closed on disconnect")
	}
	if _, err := c.Execute("status 1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect again: %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("expected connected, got %s", c.State())
	}
}

func TestSettleDelay(t *testing.T) {
	d := newMockPDU(4)
	opts := testOptions(d)
	opts.SettleDelay = 40 * time.Millisecond
	c := connect(t, d, opts)

	c.Disconnect()
	start := time.Now()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("reopened after %s, expected the settle delay", elapsed)
	}
}
