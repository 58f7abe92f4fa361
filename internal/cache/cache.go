package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cache persists records of type T.
type Cache[T any] interface {
	Insert(data ...T) error
	Delete(ids ...uuid.UUID) error
	Get(filter Filter) ([]T, error)
	Close() error
}

// Filter narrows Get. Zero values match everything.
type Filter struct {
	Endpoint string
	Since    time.Time
	Limit    int
}

// OutletEvent records one outlet state change made through the daemon.
type OutletEvent struct {
	ID        uuid.UUID `db:"id" json:"id" yaml:"id"`
	Endpoint  string    `db:"endpoint" json:"endpoint" yaml:"endpoint"`
	Device    string    `db:"device" json:"device" yaml:"device"`
	Outlet    int       `db:"outlet" json:"outlet" yaml:"outlet"`
	State     bool      `db:"state" json:"state" yaml:"state"`
	RequestID string    `db:"request_id" json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Timestamp time.Time `db:"timestamp" json:"timestamp" yaml:"timestamp"`
}

// NewOutletEvent stamps a change with a fresh ID and the current time.
func NewOutletEvent(endpoint, device string, outlet int, state bool) OutletEvent {
	return OutletEvent{
		ID:        uuid.New(),
		Endpoint:  endpoint,
		Device:    device,
		Outlet:    outlet,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}

func (e OutletEvent) String() string {
	state := "off"
	if e.State {
		state = "on"
	}
	return fmt.Sprintf("%s %s %s outlet %d turned %s", e.Timestamp.Format(time.RFC3339), e.ID, e.Endpoint, e.Outlet, state)
}

// OutletEvents renders one event per line in list output.
type OutletEvents []OutletEvent

func (events OutletEvents) List() []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, e.String())
	}
	return lines
}
