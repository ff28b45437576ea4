package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeFrame(t *testing.T) {
	f, err := NewStart("sub-1", GraphQLRequest{Query: "subscription {}"}, Authorization{
		Token: "id-token",
		Host:  "api.gatewave.example",
	})
	if err != nil {
		t.Fatalf("NewStart: %v", err)
	}

	data, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.Type != FrameStart || got.ID != "sub-1" {
		t.Errorf("round trip = %s, want start id=sub-1", got)
	}
}

func TestDecodeFrameMissingType(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"payload": {"data": {}}}`))
	if !errors.Is(err, ErrMissingFrameType) {
		t.Errorf("error = %v, want ErrMissingFrameType", err)
	}
}

func TestDecodeFrameInvalidJSON(t *testing.T) {
	if _, err := DecodeFrame([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEncodeFrameMissingType(t *testing.T) {
	if _, err := EncodeFrame(&Frame{ID: "x"}); !errors.Is(err, ErrMissingFrameType) {
		t.Errorf("error = %v, want ErrMissingFrameType", err)
	}
}

func TestAuthorizationEncodeHeader(t *testing.T) {
	header, err := Authorization{Token: "tok", Host: "api.example"}.EncodeHeader()
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		t.Fatalf("header is not base64: %v", err)
	}
	var auth map[string]string
	if err := json.Unmarshal(decoded, &auth); err != nil {
		t.Fatalf("header is not JSON: %v", err)
	}
	if auth["Authorization"] != "tok" || auth["host"] != "api.example" {
		t.Errorf("decoded header = %v", auth)
	}
}

func TestEmptyPayloadConstant(t *testing.T) {
	decoded, err := base64.StdEncoding.DecodeString(EmptyPayload)
	if err != nil || string(decoded) != "{}" {
		t.Errorf("EmptyPayload decodes to %q, %v", decoded, err)
	}
}

func TestNewStartPayloadShape(t *testing.T) {
	req, err := SubscribeRequest(FeedDevice, "account-1")
	if err != nil {
		t.Fatalf("SubscribeRequest: %v", err)
	}
	f, err := NewStart("id-1", req, Authorization{Token: "tok", Host: "h"})
	if err != nil {
		t.Fatalf("NewStart: %v", err)
	}

	var payload struct {
		Data       string `json:"data"`
		Extensions struct {
			Authorization struct {
				Authorization string `json:"Authorization"`
				Host          string `json:"host"`
			} `json:"authorization"`
		} `json:"extensions"`
	}
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatalf("payload shape: %v", err)
	}

	// The GraphQL request must ride as a JSON string, not a nested object.
	var inner GraphQLRequest
	if err := json.Unmarshal([]byte(payload.Data), &inner); err != nil {
		t.Fatalf("data string is not an encoded request: %v", err)
	}
	if !strings.Contains(inner.Query, "devicesStatesFeed") {
		t.Errorf("query = %q, want devicesStatesFeed subscription", inner.Query)
	}
	if payload.Extensions.Authorization.Authorization != "tok" {
		t.Error("authorization extension missing token")
	}
}

func TestSubscribeRequestUnknownFeed(t *testing.T) {
	if _, err := SubscribeRequest(Feed("bogus"), "r"); err == nil {
		t.Error("expected error for unknown feed")
	}
}

func TestDecodeFeedUpdateDeviceState(t *testing.T) {
	payload := `{
	  "data": {
	    "devicesStatesFeed": {
	      "receiverId": "account-1",
	      "item": {
	        "deviceId": "dev-1",
	        "desired": "{\"barrierStatus\":\"open\"}",
	        "reported": "{\"barrierStatus\":\"opening\",\"lightStatus\":\"1,100\"}",
	        "timestamp": "1234567890",
	        "version": 7,
	        "connectionState": {"connected": true, "updatedTimestamp": "1234567890"}
	      }
	    }
	  }
	}`

	update, err := DecodeFeedUpdate(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("DecodeFeedUpdate: %v", err)
	}
	if update.State == nil || update.Event != nil {
		t.Fatal("want state update")
	}
	if update.State.DeviceID != "dev-1" {
		t.Errorf("DeviceID = %q", update.State.DeviceID)
	}
	if got := update.State.Status().String(); got != "opening" {
		t.Errorf("Status = %q, want opening", got)
	}
	if !update.State.LightOn() {
		t.Error("LightOn = false, want true")
	}
	if update.State.Version != "7" {
		t.Errorf("Version = %q, want 7", update.State.Version)
	}
	if update.State.Connection == nil || !update.State.Connection.Connected {
		t.Error("connection state missing")
	}
}

func TestDecodeFeedUpdateEvent(t *testing.T) {
	payload := `{
	  "data": {
	    "eventsFeed": {
	      "item": {"eventId": "event-error-barrier-obstructed", "deviceId": "dev-1"}
	    }
	  }
	}`

	update, err := DecodeFeedUpdate(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("DecodeFeedUpdate: %v", err)
	}
	if update.Event == nil || update.State != nil {
		t.Fatal("want event update")
	}
	if update.Event.EventID != EventBarrierObstructed {
		t.Errorf("EventID = %q", update.Event.EventID)
	}
}

func TestDecodeFeedUpdateErrors(t *testing.T) {
	t.Run("no known feed", func(t *testing.T) {
		if _, err := DecodeFeedUpdate(json.RawMessage(`{"data": {}}`)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("graphql errors", func(t *testing.T) {
		payload := `{"errors": [{"errorType": "Unauthorized", "message": "denied"}]}`
		_, err := DecodeFeedUpdate(json.RawMessage(payload))
		var gqlErr *GraphQLError
		if !errors.As(err, &gqlErr) {
			t.Fatalf("error = %v, want GraphQLError", err)
		}
		if gqlErr.ErrorType != "Unauthorized" {
			t.Errorf("ErrorType = %q", gqlErr.ErrorType)
		}
	})

	t.Run("malformed desired document", func(t *testing.T) {
		payload := `{"data": {"devicesStatesFeed": {"item": {"deviceId": "d", "desired": "{bad"}}}}`
		if _, err := DecodeFeedUpdate(json.RawMessage(payload)); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDecodeDeviceList(t *testing.T) {
	body := `{
	  "data": {
	    "devicesListAll": {
	      "devices": [
	        {
	          "id": "dev-1",
	          "type": "gate",
	          "controlLevel": "full",
	          "attr": [{"key": "serialNumber", "value": "SN-1"}],
	          "state": {
	            "deviceId": "dev-1",
	            "desired": "{\"barrierStatus\":\"closed\"}",
	            "reported": "{\"barrierStatus\":\"closed\",\"vcnMode\":\"on\"}",
	            "timestamp": "1234567890",
	            "version": "3",
	            "connectionState": {"connected": true, "updatedTimestamp": "1234567890"}
	          }
	        },
	        {
	          "id": "dev-2",
	          "type": "garage",
	          "controlLevel": "full",
	          "attr": [],
	          "state": {
	            "deviceId": "dev-2",
	            "desired": "{}",
	            "reported": "{}",
	            "timestamp": "1234567891",
	            "version": 1,
	            "connectionState": null
	          }
	        }
	      ]
	    }
	  }
	}`

	barriers, err := DecodeDeviceList([]byte(body))
	if err != nil {
		t.Fatalf("DecodeDeviceList: %v", err)
	}
	if len(barriers) != 2 {
		t.Fatalf("len = %d, want 2", len(barriers))
	}

	first := barriers[0]
	if first.ID != "dev-1" || first.Type != "gate" {
		t.Errorf("first = %+v", first)
	}
	if !first.State.VacationMode() {
		t.Error("vacation mode not decoded")
	}
	if v, err := first.Attr("serialNumber"); err != nil || v != "SN-1" {
		t.Errorf("Attr = %q, %v", v, err)
	}

	// Null connectionState must not fail decoding.
	if barriers[1].State.Connection != nil {
		t.Error("dev-2 connection should be nil")
	}
	if barriers[1].State.Version != "1" {
		t.Errorf("dev-2 version = %q", barriers[1].State.Version)
	}
}

func TestDecodeControlResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{"accepted", `{"data": {"devicesControl": true}}`, true, false},
		{"rejected", `{"data": {"devicesControl": false}}`, false, false},
		{"missing field", `{"data": {}}`, false, true},
		{"backend error", `{"errors": [{"message": "no such device"}]}`, false, true},
		{"empty body", `{}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeControlResult([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrorPayload(t *testing.T) {
	msg := DecodeErrorPayload(json.RawMessage(
		`{"errors": [{"errorType": "MaxSubscriptionsReachedError", "message": "too many"}]}`))
	if msg != "MaxSubscriptionsReachedError: too many" {
		t.Errorf("message = %q", msg)
	}

	if msg := DecodeErrorPayload(nil); msg == "" {
		t.Error("empty payload should still produce a message")
	}

	raw := json.RawMessage(`"socket failure"`)
	if msg := DecodeErrorPayload(raw); msg != string(raw) {
		t.Errorf("fallback = %q", msg)
	}
}

func TestVersionRawRoundTrip(t *testing.T) {
	for _, v := range []string{"7", "v2.1", ""} {
		raw := versionRaw(v)
		if got := decodeVersion(raw); got != v {
			t.Errorf("round trip %q = %q", v, got)
		}
	}
}
