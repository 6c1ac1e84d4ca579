// Package channels provides typed Go channels for the events the poller
// emits, so consumers get compile-time checked payloads instead of a
// generic bus.
package channels

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TargetStateEvent is published when a target crosses the down threshold
// or answers again after being down
type TargetStateEvent struct {
	Target    string
	Host      string
	EventType string // "down", "recovered"
	Failures  int    // only used when EventType == "down"
	Reason    string // only used when EventType == "down"
	Timestamp time.Time
}

const (
	TargetDown      = "down"
	TargetRecovered = "recovered"
)

// FirstPassEvent is published every time a collector runs table discovery
type FirstPassEvent struct {
	Target    string
	Pending   int
	Groups    int
	Error     string // empty on success
	Timestamp time.Time
}

// CycleCompletedEvent is published after every collect cycle
type CycleCompletedEvent struct {
	Target   string
	CycleID  uuid.UUID
	Success  bool
	Samples  int
	Failed   []string
	Duration time.Duration
}

// EventChannels provides typed channels for all poller events
type EventChannels struct {
	TargetState    chan TargetStateEvent
	FirstPass      chan FirstPassEvent
	CycleCompleted chan CycleCompletedEvent

	// Graceful shutdown
	done chan struct{}
}

// NewEventChannels creates a new EventChannels hub with configured buffer sizes
func NewEventChannels(ctx context.Context, cfg EventChannelsConfig) *EventChannels {
	cfg = cfg.withDefaults()
	return &EventChannels{
		TargetState:    make(chan TargetStateEvent, cfg.TargetStateBufferSize),
		FirstPass:      make(chan FirstPassEvent, cfg.FirstPassBufferSize),
		CycleCompleted: make(chan CycleCompletedEvent, cfg.CycleBufferSize),
		done:           make(chan struct{}),
	}
}

// Close gracefully shuts down all channels. Producers must have stopped
// before Close is called.
func (ec *EventChannels) Close() error {
	close(ec.done)

	close(ec.TargetState)
	close(ec.FirstPass)
	close(ec.CycleCompleted)

	return nil
}

// Done returns a channel that's closed when the EventChannels is shutting down
func (ec *EventChannels) Done() <-chan struct{} {
	return ec.done
}
