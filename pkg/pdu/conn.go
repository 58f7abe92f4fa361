package pdu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenCHAMI/pductl/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State of a PDU connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Defaults for Options.
const (
	DefaultConnectAttempts = 5
	DefaultRetryDelay      = time.Second
	DefaultMonitorInterval = 30 * time.Second
	DefaultSettleDelay     = time.Second
)

// Options tune a Conn. Zero values are replaced by the defaults above.
type Options struct {
	ReadTimeout     time.Duration
	ReadyTimeout    time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
	MonitorInterval time.Duration
	// SettleDelay is the minimum time between closing the device and
	// opening it again. Negative disables it.
	SettleDelay time.Duration
	Opener      Opener
	Logger      *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = DefaultConnectAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.Opener == nil {
		o.Opener = SerialOpener(o.ReadTimeout)
	}
	return o
}

// Conn manages the single console session to one PDU. All command
// exchanges and liveness probes run under one mutex since the console is
// half-duplex and stateful.
type Conn struct {
	device string
	creds  Credentials
	opts   Options
	log    zerolog.Logger

	mu        sync.Mutex
	transport Transport
	closedAt  time.Time
	// life is non-nil while the connection is meant to be up; Disconnect
	// cancels it
	life   context.Context
	cancel context.CancelFunc
	kick   chan struct{}

	state   atomic.Int32
	outlets atomic.Int32
	// fault holds the error that ended the last reconnect loop, until the
	// next Connect
	fault atomic.Pointer[error]
}

// NewConn creates a disconnected Conn for the PDU on device.
func NewConn(device string, creds Credentials, opts Options) *Conn {
	opts = opts.withDefaults()
	logger := log.Logger.With().Str("device", device).Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("device", device).Logger()
	}
	return &Conn{
		device: device,
		creds:  creds,
		opts:   opts,
		log:    logger,
		kick:   make(chan struct{}, 1),
	}
}

func (c *Conn) Device() string { return c.device }

// State returns the current connection state without waiting for an
// in-flight exchange.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Debug().Stringer("from", old).Stringer("to", s).Msg("connection state changed")
	}
}

// OutletCount returns the outlet count read from the banner at login.
func (c *Conn) OutletCount() (int, error) {
	if c.State() != StateConnected {
		return 0, c.notConnected()
	}
	return int(c.outlets.Load()), nil
}

// Connect opens the device and logs in, retrying up to the configured
// number of attempts. On success a background monitor keeps the session
// alive until Disconnect. Calling Connect on a live connection is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.life != nil {
		c.mu.Unlock()
		return nil
	}
	life, cancel := context.WithCancel(context.Background())
	c.life, c.cancel = life, cancel
	c.fault.Store(nil)
	c.setState(StateConnecting)
	c.mu.Unlock()

	count, err := retry.DoValue(ctx, c.opts.ConnectAttempts, c.opts.RetryDelay, func(attempt int) (int, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if life.Err() != nil {
			return 0, retry.Stop(ErrNotConnected)
		}
		c.log.Debug().Int("attempt", attempt).Msg("connecting to PDU")
		n, err := c.dialLocked()
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("connect attempt failed")
		}
		return n, err
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.life != life {
		// disconnected while connecting
		return ErrNotConnected
	}
	if err != nil {
		c.closeLocked()
		c.endLocked()
		return fmt.Errorf("failed to connect to PDU on %s: %w", c.device, err)
	}
	c.outlets.Store(int32(count))
	c.setState(StateConnected)
	c.log.Info().Int("outlets", count).Msg("connected to PDU")
	go c.monitor(life)
	return nil
}

// Disconnect closes the session and stops the monitor and any pending
// reconnect.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.closeLocked()
	c.endLocked()
	return err
}

// Execute sends command and returns the response lines up to the command
// prompt. A transport failure closes the session and hands it to the
// monitor for reconnection.
func (c *Conn) Execute(command string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateConnected || c.transport == nil {
		return nil, c.notConnected()
	}
	lines, err := Exchange(c.transport, command, PromptCommand)
	if err != nil {
		c.log.Warn().Err(err).Str("command", command).Msg("command failed; reconnecting")
		c.closeLocked()
		c.setState(StateReconnecting)
		select {
		case c.kick <- struct{}{}:
		default:
		}
		return nil, err
	}
	return lines, nil
}

// dialLocked replaces the transport with a freshly opened and logged-in
// one and returns the outlet count reported by the banner.
func (c *Conn) dialLocked() (int, error) {
	c.closeLocked()
	if wait := time.Until(c.closedAt.Add(c.opts.SettleDelay)); wait > 0 {
		time.Sleep(wait)
	}
	t, err := c.opts.Opener(c.device)
	if err != nil {
		return 0, err
	}
	count, err := Handshake(t, c.creds, c.opts.ReadyTimeout)
	if err != nil {
		t.Close()
		c.closedAt = time.Now()
		return 0, err
	}
	c.transport = t
	return count, nil
}

func (c *Conn) closeLocked() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	c.closedAt = time.Now()
	return err
}

// endLocked drops the intent to stay connected.
func (c *Conn) endLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.life, c.cancel = nil, nil
	c.setState(StateDisconnected)
}

// monitor probes the session every MonitorInterval, or immediately after
// a failed command. On failure it runs the reconnect loop and exits; a
// successful reconnect starts a new monitor, so at most one runs per
// connection.
func (c *Conn) monitor(life context.Context) {
	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-life.Done():
			return
		case <-ticker.C:
		case <-c.kick:
		}
		if c.healthy(life) {
			continue
		}
		c.reconnect(life)
		return
	}
}

func (c *Conn) healthy(life context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if life.Err() != nil {
		return true
	}
	if c.State() == StateReconnecting || c.transport == nil {
		return false
	}
	ready, err := Probe(c.transport, int(c.outlets.Load()))
	if err == nil && ready {
		return true
	}
	c.log.Warn().Err(err).Bool("ready", ready).Msg("liveness probe failed")
	c.closeLocked()
	c.setState(StateReconnecting)
	return false
}

func (c *Conn) reconnect(life context.Context) {
	err := retry.Do(life, retry.Unbounded, c.opts.RetryDelay, func(attempt int) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if life.Err() != nil {
			return retry.Stop(life.Err())
		}
		c.setState(StateReconnecting)
		count, err := c.dialLocked()
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			return err
		}
		if want := int(c.outlets.Load()); count != want {
			c.closeLocked()
			return retry.Stop(fmt.Errorf("%w: outlet count changed from %d to %d", ErrProtocol, want, count))
		}
		c.setState(StateConnected)
		c.log.Info().Int("attempt", attempt).Msg("reconnected to PDU")
		go c.monitor(life)
		return nil
	})
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	c.log.Error().Err(err).Msg("giving up on PDU connection")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.life == life {
		c.fault.Store(&err)
		c.endLocked()
	}
}

// notConnected returns ErrNotConnected, wrapping the reason the reconnect
// loop gave up if there is one.
func (c *Conn) notConnected() error {
	if fault := c.fault.Load(); fault != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, *fault)
	}
	return ErrNotConnected
}
