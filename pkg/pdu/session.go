package pdu

import (
	"fmt"
	"time"
)

// Console prompts.
const (
	PromptUsername = "Username: "
	PromptPassword = "Password: "
	PromptCommand  = "pm>"
)

// DefaultReadyTimeout bounds the post-login wait for chained units.
const DefaultReadyTimeout = 20 * time.Second

// Credentials for the PDU console login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DefaultCredentials are the factory login of the PDU.
var DefaultCredentials = Credentials{Username: "admin", Password: "pm8"}

// Handshake logs in on a freshly opened transport and waits until the
// PDU reports outlet states. It returns the outlet count from the banner.
//
// The PDU accepts the login before chained units finish initialising, so
// status probes are repeated until one shows ON or OFF or readyTimeout
// elapses.
func Handshake(t Transport, creds Credentials, readyTimeout time.Duration) (int, error) {
	banner, err := t.ReadUntil(PromptUsername)
	if err != nil {
		return 0, err
	}
	count, err := ParseBanner(banner)
	if err != nil {
		return 0, err
	}

	if _, err := Exchange(t, creds.Username, PromptPassword); err != nil {
		return 0, err
	}
	if _, err := Exchange(t, creds.Password, PromptCommand); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(readyTimeout)
	for {
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: outlets not ready after %s", ErrTimeout, readyTimeout)
		}
		ready, err := Probe(t, count)
		if err != nil {
			return 0, err
		}
		if ready {
			return count, nil
		}
	}
}

// Probe issues a status query for outlet n and reports whether the last
// response line shows an outlet state.
func Probe(t Transport, n int) (bool, error) {
	lines, err := Exchange(t, statusCommand(n), PromptCommand)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}
	return isReady(lines[len(lines)-1]), nil
}

// Exchange writes one command and reads the response up to delim.
func Exchange(t Transport, command string, delim string) ([]string, error) {
	if err := t.WriteLine(command); err != nil {
		return nil, err
	}
	return t.ReadUntil(delim)
}

func statusCommand(n int) string {
	return fmt.Sprintf("status %d", n)
}

func switchCommand(n int, state bool) string {
	if state {
		return fmt.Sprintf("on %d", n)
	}
	return fmt.Sprintf("off %d", n)
}
