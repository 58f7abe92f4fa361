package pdu

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestHandshake(t *testing.T) {
	d := newMockPDU(8)
	d.record = true
	tr, err := d.open("/dev/null")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := Handshake(tr, DefaultCredentials, time.Second)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if count != 8 {
		t.Errorf("expected 8 outlets, got %d", count)
	}

	want := []string{
		"R:" + PromptUsername,
		"W:admin", "R:" + PromptPassword,
		"W:pm8", "R:" + PromptCommand,
		"W:status 8", "R:" + PromptCommand,
	}
	if got := d.recorded(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected wire sequence %q, got %q", want, got)
	}
}

func TestHandshakeWrongPassword(t *testing.T) {
	d := newMockPDU(4)
	tr, _ := d.open("/dev/null")
	_, err := Handshake(tr, Credentials{Username: "admin", Password: "nope"}, time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected the missing prompt to time out, got %v", err)
	}
}

func TestHandshakeNotReady(t *testing.T) {
	d := newMockPDU(4)
	d.notReady = true
	tr, _ := d.open("/dev/null")

	start := time.Now()
	_, err := Handshake(tr, DefaultCredentials, 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("gave up after %s, before the ready timeout", elapsed)
	}
}

func TestHandshakeBecomesReady(t *testing.T) {
	d := newMockPDU(4)
	d.notReady = true
	tr, _ := d.open("/dev/null")

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.mu.Lock()
		d.notReady = false
		d.mu.Unlock()
	}()

	count, err := Handshake(tr, DefaultCredentials, time.Second)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 outlets, got %d", count)
	}
}

func TestHandshakeMalformedBanner(t *testing.T) {
	tr := &scriptedTransport{reads: [][]string{{"only", "three", "lines"}}}
	_, err := Handshake(tr, DefaultCredentials, time.Second)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if len(tr.writes) != 0 {
		t.Errorf("expected no login after a bad banner, got writes %q", tr.writes)
	}
}

// scriptedTransport returns canned reads in order.
type scriptedTransport struct {
	reads  [][]string
	writes []string
}

func (s *scriptedTransport) WriteLine(line string) error {
	s.writes = append(s.writes, line)
	return nil
}

func (s *scriptedTransport) ReadUntil(string) ([]string, error) {
	if len(s.reads) == 0 {
		return nil, ErrTimeout
	}
	lines := s.reads[0]
	s.reads = s.reads[1:]
	return lines, nil
}

func (s *scriptedTransport) Close() error { return nil }
