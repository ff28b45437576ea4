// Package barrier defines the Gatewave device model.
//
// A Barrier is a controllable gate or garage-door device as reported by the
// cloud API. Each inbound update produces a complete, immutable State
// snapshot; consumers replace the previous snapshot rather than mutating it.
//
// # State Documents
//
// The backend reports device state as two JSON documents:
//
//   - desired:  the state the backend wants the device to reach
//   - reported: the state the device last reported
//
// Both are carried as open maps because the backend adds keys without
// versioning the schema. The typed accessors on State (Status, LightOn,
// VacationMode, ...) decode the documented keys and tolerate the stringly
// encodings the backend uses ("1"/"0", "on"/"off", native booleans).
package barrier
