package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gatewave/gatewave-go/pkg/barrier"
	"github.com/gatewave/gatewave-go/pkg/log"
	"github.com/gatewave/gatewave-go/pkg/wire"
)

// Dispatcher errors.
var (
	ErrListenerNotFound = errors.New("listener not found")
)

// Listener receives dispatched events. It runs on the dispatching
// goroutine; a slow listener delays the listeners after it, a panicking
// one is isolated.
type Listener func(event Event)

// Filter restricts which device-scoped events reach a listener.
type Filter struct {
	// DeviceIDs is the set of devices the listener cares about.
	// Empty means all devices.
	DeviceIDs []string
}

// matches reports whether a device-scoped event passes the filter.
func (f Filter) matches(deviceID string) bool {
	if len(f.DeviceIDs) == 0 {
		return true
	}
	for _, id := range f.DeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}

// registration is one listener with its filter, in registration order.
type registration struct {
	id     uint64
	filter Filter
	fn     Listener
}

// Dispatcher fans events out to registered listeners and maintains the
// per-device snapshot cache. Safe for concurrent use; Dispatch itself is
// called from a single goroutine (the client's event loop), which gives
// listeners per-device arrival order.
type Dispatcher struct {
	logger log.Logger

	mu        sync.RWMutex
	listeners []*registration
	nextID    uint64
	snapshots map[string]barrier.State
}

// NewDispatcher creates a dispatcher. A nil logger disables panic logging.
func NewDispatcher(logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Dispatcher{
		logger:    logger,
		snapshots: make(map[string]barrier.State),
	}
}

// Register adds a listener and returns its registration ID. Registering
// never replaces an existing listener; overlapping filters each receive
// matching events.
func (d *Dispatcher) Register(fn Listener, filter Filter) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.listeners = append(d.listeners, &registration{
		id:     d.nextID,
		filter: filter,
		fn:     fn,
	})
	return d.nextID
}

// Unregister removes a listener by registration ID.
func (d *Dispatcher) Unregister(id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, reg := range d.listeners {
		if reg.id == id {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return nil
		}
	}
	return ErrListenerNotFound
}

// Count returns the number of registered listeners.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// Snapshot returns the latest known state for a device.
func (d *Dispatcher) Snapshot(deviceID string) (barrier.State, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	state, ok := d.snapshots[deviceID]
	return state, ok
}

// Snapshots returns a copy of the latest state of every known device.
func (d *Dispatcher) Snapshots() map[string]barrier.State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]barrier.State, len(d.snapshots))
	for id, state := range d.snapshots {
		out[id] = state
	}
	return out
}

// ClearSnapshots drops the snapshot cache. Snapshots survive reconnects;
// this is for callers that want a clean slate.
func (d *Dispatcher) ClearSnapshots() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = make(map[string]barrier.State)
}

// Dispatch delivers an event to every matching listener, in registration
// order. BarrierStateEvents update the snapshot cache before fan-out, so a
// listener reading Snapshot sees at least its own event's state.
func (d *Dispatcher) Dispatch(event Event) {
	if state, ok := event.(BarrierStateEvent); ok {
		d.mu.Lock()
		d.snapshots[state.State.DeviceID] = state.State
		d.mu.Unlock()
	}

	d.mu.RLock()
	regs := make([]*registration, len(d.listeners))
	copy(regs, d.listeners)
	d.mu.RUnlock()

	device := event.eventDevice()
	for _, reg := range regs {
		if device != "" && !reg.filter.matches(device) {
			continue
		}
		d.invoke(reg, event)
	}
}

// HandlePayload ingests a raw data-frame payload from either feed and
// dispatches the resulting event. Unrecognized eventsFeed items are
// dropped, matching the backend's habit of streaming more event kinds
// than clients handle.
func (d *Dispatcher) HandlePayload(payload json.RawMessage) error {
	update, err := wire.DecodeFeedUpdate(payload)
	if err != nil {
		return err
	}
	d.HandleUpdate(update)
	return nil
}

// HandleUpdate dispatches an already-decoded feed update.
func (d *Dispatcher) HandleUpdate(update *wire.FeedUpdate) {
	switch {
	case update.State != nil:
		d.Dispatch(BarrierStateEvent{State: *update.State})
	case update.Event != nil:
		if update.Event.EventID != wire.EventBarrierObstructed {
			return
		}
		d.Dispatch(ObstructedEvent{
			DeviceID:  update.Event.DeviceID,
			Timestamp: update.Event.Timestamp,
		})
	}
}

// invoke runs one listener with panic isolation.
func (d *Dispatcher) invoke(reg *registration, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Log(log.Event{
				Timestamp: time.Now(),
				Direction: log.DirectionIn,
				Layer:     log.LayerClient,
				Category:  log.CategoryError,
				DeviceID:  event.eventDevice(),
				Error: &log.ErrorEventData{
					Layer:   log.LayerClient,
					Message: fmt.Sprintf("listener panic: %v", r),
					Context: fmt.Sprintf("dispatching %T to listener %d", event, reg.id),
				},
			})
		}
	}()

	reg.fn(event)
}
