package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gatewave/gatewave-go/pkg/barrier"
)

// GraphQL decode errors.
var (
	ErrEmptyResult = errors.New("response carries no result")
)

// GraphQLRequest is the body of a GraphQL HTTP call and, JSON-encoded, the
// data string of a start frame.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLError is a backend-reported request failure.
type GraphQLError struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

func (e *GraphQLError) Error() string {
	if e.ErrorType == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// ControlAction is a devicesControl mutation action.
type ControlAction string

// Control actions accepted by the backend.
const (
	ActionOpen            ControlAction = "open"
	ActionClose           ControlAction = "close"
	ActionLightOn         ControlAction = "light-on"
	ActionLightOff        ControlAction = "light-off"
	ActionVacationModeOn  ControlAction = "vacation-mode-on"
	ActionVacationModeOff ControlAction = "vacation-mode-off"
)

const deviceListQuery = `query DevicesListAll {
  devicesListAll {
    devices {
      id
      type
      controlLevel
      attr { key value }
      state {
        deviceId
        desired
        reported
        timestamp
        version
        connectionState { connected updatedTimestamp }
      }
    }
  }
}`

const deviceControlMutation = `mutation DevicesControl($deviceId: ID!, $action: String!) {
  devicesControl(deviceId: $deviceId, action: $action)
}`

// DeviceListRequest builds the inventory query.
func DeviceListRequest() GraphQLRequest {
	return GraphQLRequest{Query: deviceListQuery}
}

// ControlRequest builds a device command mutation.
func ControlRequest(deviceID string, action ControlAction) GraphQLRequest {
	return GraphQLRequest{
		Query: deviceControlMutation,
		Variables: map[string]any{
			"deviceId": deviceID,
			"action":   string(action),
		},
	}
}

// stateDocument is the wire shape of a device state snapshot, shared by the
// inventory query and the devicesStatesFeed subscription.
type stateDocument struct {
	DeviceID        string          `json:"deviceId"`
	Desired         string          `json:"desired"`
	Reported        string          `json:"reported"`
	Timestamp       string          `json:"timestamp"`
	Version         json.RawMessage `json:"version"`
	ConnectionState *struct {
		Connected        bool   `json:"connected"`
		UpdatedTimestamp string `json:"updatedTimestamp"`
	} `json:"connectionState"`
}

// toState converts the wire shape into a model snapshot. The desired and
// reported documents arrive as JSON-encoded strings and are expanded here.
func (d *stateDocument) toState() (barrier.State, error) {
	s := barrier.State{
		DeviceID:  d.DeviceID,
		Timestamp: d.Timestamp,
		Version:   decodeVersion(d.Version),
	}
	if d.Desired != "" {
		if err := json.Unmarshal([]byte(d.Desired), &s.Desired); err != nil {
			return s, fmt.Errorf("decode desired document: %w", err)
		}
	}
	if d.Reported != "" {
		if err := json.Unmarshal([]byte(d.Reported), &s.Reported); err != nil {
			return s, fmt.Errorf("decode reported document: %w", err)
		}
	}
	if d.ConnectionState != nil {
		s.Connection = &barrier.ConnectionState{
			Connected:        d.ConnectionState.Connected,
			UpdatedTimestamp: d.ConnectionState.UpdatedTimestamp,
		}
	}
	return s, nil
}

// decodeVersion normalizes the version field, which the backend has sent as
// both a JSON number and a JSON string.
func decodeVersion(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// versionRaw is the inverse of decodeVersion, used by tests and tools that
// rebuild wire documents.
func versionRaw(v string) json.RawMessage {
	if v == "" {
		return nil
	}
	if _, err := strconv.Atoi(v); err == nil {
		return json.RawMessage(v)
	}
	data, _ := json.Marshal(v)
	return data
}

// deviceDocument is the wire shape of one inventory entry.
type deviceDocument struct {
	ID           string              `json:"id"`
	Type         string              `json:"type"`
	ControlLevel string              `json:"controlLevel"`
	Attr         []barrier.Attribute `json:"attr"`
	State        stateDocument       `json:"state"`
}

func (d *deviceDocument) toBarrier() (barrier.Barrier, error) {
	state, err := d.State.toState()
	if err != nil {
		return barrier.Barrier{}, fmt.Errorf("device %s: %w", d.ID, err)
	}
	return barrier.Barrier{
		ID:           d.ID,
		Type:         d.Type,
		ControlLevel: d.ControlLevel,
		Attributes:   d.Attr,
		State:        state,
	}, nil
}

// graphQLResponse is the HTTP response envelope.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// unwrapResponse decodes the envelope and surfaces backend-reported errors.
func unwrapResponse(body []byte) (json.RawMessage, error) {
	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, &resp.Errors[0]
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResult
	}
	return resp.Data, nil
}

// DecodeDeviceList parses a devicesListAll response body.
func DecodeDeviceList(body []byte) ([]barrier.Barrier, error) {
	data, err := unwrapResponse(body)
	if err != nil {
		return nil, err
	}
	var payload struct {
		DevicesListAll struct {
			Devices []deviceDocument `json:"devices"`
		} `json:"devicesListAll"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode device list: %w", err)
	}
	barriers := make([]barrier.Barrier, 0, len(payload.DevicesListAll.Devices))
	for i := range payload.DevicesListAll.Devices {
		b, err := payload.DevicesListAll.Devices[i].toBarrier()
		if err != nil {
			return nil, err
		}
		barriers = append(barriers, b)
	}
	return barriers, nil
}

// DecodeControlResult parses a devicesControl response body. The backend
// answers with a bare boolean: true when the command was accepted.
func DecodeControlResult(body []byte) (bool, error) {
	data, err := unwrapResponse(body)
	if err != nil {
		return false, err
	}
	var payload struct {
		DevicesControl *bool `json:"devicesControl"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("decode control result: %w", err)
	}
	if payload.DevicesControl == nil {
		return false, ErrEmptyResult
	}
	return *payload.DevicesControl, nil
}
