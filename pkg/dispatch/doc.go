// Package dispatch fans feed updates out to registered listeners.
//
// Listeners are registered with a device filter and invoked synchronously,
// in registration order, exactly once per matching event. A panicking
// listener is recovered and logged; it never takes down its neighbours or
// the channel read loop. Connection-level events (connected, lost,
// reconnected) are delivered to every listener regardless of filter.
//
// The dispatcher also keeps the latest state snapshot per device, readable
// concurrently via Snapshot while events keep flowing.
package dispatch
