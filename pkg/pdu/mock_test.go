package pdu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockPDU simulates the console of a PDU behind a Transport.
type mockPDU struct {
	mu      sync.Mutex
	states  []bool
	creds   Credentials
	record  bool
	events  []string
	opens   int
	current *mockTransport
	opened  []*mockTransport

	// knobs
	bannerCount int           // outlet count announced in the banner; 0 uses len(states)
	notReady    bool          // status rows carry no ON/OFF
	failOpens   int           // number of upcoming opens that fail
	gate        chan struct{} // when set, opens block until it is closed
	confirm     func(n int, state bool) string
}

func newMockPDU(outlets int) *mockPDU {
	return &mockPDU{
		states: make([]bool, outlets),
		creds:  DefaultCredentials,
	}
}

func (d *mockPDU) open(device string) (Transport, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.failOpens > 0 {
		d.failOpens--
		return nil, errors.New("device busy")
	}
	count := d.bannerCount
	if count == 0 {
		count = len(d.states)
	}
	t := &mockTransport{
		dev:    d,
		expect: PromptUsername,
		pending: []string{
			"Cyclades AlterPath PM",
			"Firmware 1.9.2",
			"Copyright (c) Cyclades",
			"Unit: pm0",
			fmt.Sprintf("Chassis outlets: %d", count),
		},
	}
	d.current = t
	d.opened = append(d.opened, t)
	return t, nil
}

// breakCurrent makes the live transport fail its next read.
func (d *mockPDU) breakCurrent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.current.broken = true
	}
}

func (d *mockPDU) setState(n int, state bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[n-1] = state
}

func (d *mockPDU) startRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record = true
	d.events = nil
}

func (d *mockPDU) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *mockPDU) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

type mockTransport struct {
	dev     *mockPDU
	stage   int
	expect  string
	pending []string
	closed  bool
	broken  bool
}

func (t *mockTransport) WriteLine(s string) error {
	d := t.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if d.record {
		d.events = append(d.events, "W:"+s)
	}

	switch t.stage {
	case 0:
		t.stage, t.expect, t.pending = 1, PromptPassword, nil
		if s != d.creds.Username {
			t.stage = -1
		}
	case 1:
		t.stage, t.expect, t.pending = 2, PromptCommand, []string{"Welcome"}
		if s != d.creds.Password {
			t.stage = -1
		}
	case 2:
		t.expect, t.pending = PromptCommand, t.respond(s)
	}
	return nil
}

func (t *mockTransport) respond(cmd string) []string {
	d := t.dev
	lines := []string{cmd}
	fields := strings.Fields(cmd)
	if len(fields) != 2 {
		return append(lines, "Invalid command")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(d.states) {
		return append(lines, "Invalid outlet")
	}

	switch fields[0] {
	case "status":
		lines = append(lines, "Outlet\tName\tStatus\tUsers")
		if d.notReady {
			return append(lines, fmt.Sprintf("\t%02d\tInitializing\t", n))
		}
		return append(lines, fmt.Sprintf("\t%02d\t%s\t", n, tagFor(d.states[n-1])))
	case "on", "off":
		state := fields[0] == "on"
		d.states[n-1] = state
		if d.confirm != nil {
			return append(lines, d.confirm(n, state))
		}
		return append(lines, fmt.Sprintf("%d: Outlet turned %s.", n, fields[0]))
	}
	return append(lines, "Invalid command")
}

func (t *mockTransport) ReadUntil(delim string) ([]string, error) {
	d := t.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if d.record {
		d.events = append(d.events, "R:"+delim)
	}
	if t.broken {
		return nil, errors.New("device unplugged")
	}
	if t.stage < 0 || delim != t.expect {
		return nil, fmt.Errorf("%w: no %q", ErrTimeout, delim)
	}
	lines := t.pending
	t.pending = nil
	return lines, nil
}

func (t *mockTransport) Close() error {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	t.closed = true
	return nil
}

func testOptions(d *mockPDU) Options {
	return Options{
		ReadyTimeout:    100 * time.Millisecond,
		ConnectAttempts: 5,
		RetryDelay:      time.Millisecond,
		MonitorInterval: 10 * time.Millisecond,
		SettleDelay:     -1,
		Opener:          d.open,
	}
}

func waitForState(t *testing.T, c *Conn, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, c.State())
}
