package pdu

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	lineEnd  = "\r"
	lineSep  = "\r\n"
	readSize = 256
)

// DefaultReadTimeout bounds every ReadUntil call on a serial transport.
const DefaultReadTimeout = 5 * time.Second

// Transport is a line-oriented, half-duplex connection to a PDU console.
type Transport interface {
	// WriteLine sends s terminated by CR.
	WriteLine(s string) error
	// ReadUntil consumes input up to and including "\r\n"+delim and
	// returns the non-empty CRLF-separated lines that preceded it.
	ReadUntil(delim string) ([]string, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Opener acquires a fresh Transport for a device path.
type Opener func(device string) (Transport, error)

// port is the subset of serial.Port used by SerialTransport.
type port interface {
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// allow tests to replace the serial device
var openPort = func(device string, mode *serial.Mode) (port, error) {
	return serial.Open(device, mode)
}

// SerialTransport is a Transport over a serial device.
type SerialTransport struct {
	mu      sync.Mutex
	port    port
	timeout time.Duration
	buf     strings.Builder
	closed  bool
}

// SerialOpener returns an Opener that opens serial devices at 9600 8N1
// with DTR and RTS asserted and the given read timeout.
func SerialOpener(readTimeout time.Duration) Opener {
	return func(device string) (Transport, error) {
		return OpenSerial(device, readTimeout)
	}
}

// OpenSerial opens device and asserts DTR and RTS.
func OpenSerial(device string, readTimeout time.Duration) (*SerialTransport, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	p, err := openPort(device, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %s: %w", device, err)
	}
	if err := p.SetDTR(true); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set DTR on %s: %w", device, err)
	}
	if err := p.SetRTS(true); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set RTS on %s: %w", device, err)
	}
	return &SerialTransport{port: p, timeout: readTimeout}, nil
}

func (t *SerialTransport) WriteLine(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	line := []byte(s + lineEnd)
	n, err := t.port.Write(line)
	if err != nil {
		return fmt.Errorf("failed to write to serial device: %w", err)
	}
	if n < len(line) {
		return fmt.Errorf("short write to serial device: %d of %d bytes", n, len(line))
	}
	return nil
}

func (t *SerialTransport) ReadUntil(delim string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	marker := lineSep + delim
	deadline := time.Now().Add(t.timeout)
	chunk := make([]byte, readSize)
	for {
		acc := t.buf.String()
		if i := strings.Index(acc, marker); i >= 0 {
			t.buf.Reset()
			t.buf.WriteString(acc[i+len(marker):])
			return splitLines(acc[:i]), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: no %q within %s", ErrTimeout, delim, t.timeout)
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
		// a zero-length read without error is a timeout in go.bug.st/serial
		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to read from serial device: %w", err)
		}
		t.buf.Write(chunk[:n])
	}
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.buf.Reset()
	return t.port.Close()
}

// splitLines splits s on CRLF, dropping empty lines.
func splitLines(s string) []string {
	lines := []string{}
	for _, line := range strings.Split(s, lineSep) {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
