package barrier

import (
	"errors"
	"fmt"
)

// Model errors.
var (
	ErrAttributeNotFound = errors.New("attribute not found")
)

// ConnectionState describes the device-to-cloud link of a barrier.
// It is distinct from the client's own connection state: a barrier can be
// offline while the client's channel to the cloud is healthy.
type ConnectionState struct {
	// Connected reports whether the device is currently reachable by the
	// backend.
	Connected bool

	// UpdatedTimestamp is the backend timestamp (epoch milliseconds as a
	// string) of the last connectivity change.
	UpdatedTimestamp string
}

// State is one immutable snapshot of a barrier's state. A new State replaces
// the previous one wholesale; fields are never updated in place.
type State struct {
	// DeviceID identifies the device this snapshot belongs to.
	DeviceID string

	// Desired is the backend's target state document.
	Desired map[string]any

	// Reported is the device's last reported state document.
	Reported map[string]any

	// Timestamp is the backend timestamp of this snapshot.
	Timestamp string

	// Version is the backend's monotonically increasing document version.
	Version string

	// Connection is the device connectivity at snapshot time. Nil when the
	// backend omitted it.
	Connection *ConnectionState
}

// Attribute is a static device property from the inventory listing.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Barrier is a controllable gate or garage-door device.
type Barrier struct {
	// ID is the backend device identifier.
	ID string

	// Type is the backend device type string.
	Type string

	// ControlLevel describes the access the authenticated account has.
	ControlLevel string

	// Attributes are static device properties (serial number, model, ...).
	Attributes []Attribute

	// State is the snapshot current at listing time.
	State State
}

// Attr returns the value of the static attribute with the given key.
func (b *Barrier) Attr(key string) (string, error) {
	for _, a := range b.Attributes {
		if a.Key == key {
			return a.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAttributeNotFound, key)
}

// Reported state document keys.
const (
	keyBarrierStatus = "barrierStatus"
	keyLightStatus   = "lightStatus"
	keyVacationMode  = "vcnMode"
	keyDisplayName   = "displayName"
	keyFirmware      = "deviceFwVersion"
)

// Status decodes the movement status from the reported document.
// Returns StatusUnknown when the key is absent or unrecognized.
func (s State) Status() Status {
	return ParseStatus(stringField(s.Reported, keyBarrierStatus))
}

// LightOn reports whether the courtesy light is on.
func (s State) LightOn() bool {
	return boolField(s.Reported, keyLightStatus)
}

// VacationMode reports whether vacation mode is active. While active the
// device ignores scheduled and remote open commands.
func (s State) VacationMode() bool {
	return boolField(s.Reported, keyVacationMode)
}

// DisplayName returns the user-assigned device name, if reported.
func (s State) DisplayName() string {
	return stringField(s.Reported, keyDisplayName)
}

// FirmwareVersion returns the reported firmware version, if present.
func (s State) FirmwareVersion() string {
	return stringField(s.Reported, keyFirmware)
}

// stringField reads a document value as a string. Numeric values are not
// converted; the backend encodes the keys we read as strings.
func stringField(doc map[string]any, key string) string {
	if doc == nil {
		return ""
	}
	v, ok := doc[key].(string)
	if !ok {
		return ""
	}
	return v
}

// boolField reads a document flag. The backend has shipped flags as native
// booleans, "on"/"off" and "1"/"0" over time; all are accepted. The light
// status additionally carries a brightness suffix ("1,100"), so only the
// first comma-separated token is inspected.
func boolField(doc map[string]any, key string) bool {
	if doc == nil {
		return false
	}
	switch v := doc[key].(type) {
	case bool:
		return v
	case string:
		for i := 0; i < len(v); i++ {
			if v[i] == ',' {
				v = v[:i]
				break
			}
		}
		return v == "1" || v == "on" || v == "true"
	default:
		return false
	}
}
