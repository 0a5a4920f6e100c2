package debug

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind identifies a session event.
type EventKind int

const (
	// EventHalted follows an explicit halt, including auto-halt on start.
	EventHalted EventKind = iota + 1
	// EventBreakpointHit follows the monitor reporting that the target stopped.
	EventBreakpointHit
	// EventStepCompleted follows a single step.
	EventStepCompleted
	// EventDeviceDisconnected means the session ended because the target went away.
	EventDeviceDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventHalted:
		return "halted"
	case EventBreakpointHit:
		return "breakpoint_hit"
	case EventStepCompleted:
		return "step_completed"
	case EventDeviceDisconnected:
		return "device_disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event tells subscribers to re-query session state.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
	Reason    string    `json:"reason,omitempty"`
}

// broker fans events out to subscribers without blocking the publisher.
type broker struct {
	logger zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBroker(logger zerolog.Logger) *broker {
	return &broker{logger: logger, subs: make(map[int]chan Event)}
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().
				Int("subscriber", id).
				Stringer("event", ev.Kind).
				Msg("Subscriber is not keeping up, event dropped")
		}
	}
}
