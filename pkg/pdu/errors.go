package pdu

import "errors"

var (
	// ErrRange is returned for an outlet index outside [1, outlet count].
	ErrRange = errors.New("outlet out of range")
	// ErrProtocol is returned when the PDU's output does not match the
	// expected console grammar.
	ErrProtocol = errors.New("unexpected PDU response")
	// ErrTimeout is returned when a prompt or the ready state does not
	// appear in time.
	ErrTimeout = errors.New("timed out waiting for PDU")
	// ErrNotConnected is returned for commands issued while the
	// connection is not in the Connected state.
	ErrNotConnected = errors.New("PDU not connected")
	// ErrClosed is returned by a Transport after Close.
	ErrClosed = errors.New("use of closed transport")
)
