// SPDX-License-Identifier: EPL-2.0

package stream

import "github.com/kelindar/event"

// Event type identifiers.
const (
	TypeStateChanged uint32 = iota + 1
)

// StateChangedEvent is published whenever a stream changes state. It is
// never published from the real-time goroutine, so the Stopping state shows
// up only when a control goroutine moves a stream there.
type StateChangedEvent struct {
	StreamID string
	Name     string
	From     State
	To       State
	Err      error
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// OnStateChange subscribes fn to the state changes published on d and
// returns the unsubscribe function.
func OnStateChange(d *event.Dispatcher, fn func(StateChangedEvent)) func() {
	return event.Subscribe(d, fn)
}
