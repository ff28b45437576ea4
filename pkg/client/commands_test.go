package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deviceListBody(ids ...string) string {
	devices := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, map[string]any{
			"id":           id,
			"type":         "WallStation",
			"controlLevel": "Owner",
			"attr":         []map[string]string{{"key": "model", "value": "GW-1100"}},
			"state": map[string]any{
				"deviceId":        id,
				"desired":         `{"barrierStatus":"closed"}`,
				"reported":        `{"barrierStatus":"closed","vcnMode":false,"displayName":"Garage"}`,
				"timestamp":       "1700000000000",
				"version":         3,
				"connectionState": map[string]any{"connected": true, "updatedTimestamp": "1700000000000"},
			},
		})
	}
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{"devicesListAll": map[string]any{"devices": devices}},
	})
	return string(body)
}

func controlBody(accepted bool) string {
	return fmt.Sprintf(`{"data":{"devicesControl":%t}}`, accepted)
}

func TestGetAllBarriers(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, nil)

	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-id-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "devicesListAll")

		fmt.Fprint(w, deviceListBody("garage-1", "gate-2"))
	})

	barriers, err := c.GetAllBarriers(context.Background())
	require.NoError(t, err)
	require.Len(t, barriers, 2)

	assert.Equal(t, "garage-1", barriers[0].ID)
	assert.Equal(t, "Owner", barriers[0].ControlLevel)
	assert.Equal(t, "Garage", barriers[0].State.DisplayName())
	assert.False(t, barriers[0].State.VacationMode())
	require.NotNil(t, barriers[0].State.Connection)
	assert.True(t, barriers[0].State.Connection.Connected)

	model, err := barriers[0].Attr("model")
	require.NoError(t, err)
	assert.Equal(t, "GW-1100", model)
}

func TestControlActions(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, nil)

	var gotAction string
	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]string `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotAction = req.Variables["action"]
		assert.Equal(t, "garage-1", req.Variables["deviceId"])
		fmt.Fprint(w, controlBody(true))
	})

	cases := []struct {
		name   string
		call   func(context.Context, string) error
		action string
	}{
		{"open", c.OpenBarrier, "open"},
		{"close", c.CloseBarrier, "close"},
		{"light on", c.LightOn, "light-on"},
		{"light off", c.LightOff, "light-off"},
		{"vacation on", c.VacationModeOn, "vacation-mode-on"},
		{"vacation off", c.VacationModeOff, "vacation-mode-off"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.call(context.Background(), "garage-1"))
			assert.Equal(t, tc.action, gotAction)
		})
	}
}

func TestControlRejectedByBackend(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, nil)

	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, controlBody(false))
	})

	err := c.OpenBarrier(context.Background(), "garage-1")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.ErrorIs(t, err, ErrCommandRejected)
	assert.Equal(t, "garage-1", cmdErr.BarrierID)
	assert.Equal(t, "open", cmdErr.Action)
}

func TestControlGraphQLError(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, nil)

	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"errorType":"DeviceOffline","message":"device unreachable"}]}`)
	})

	err := c.CloseBarrier(context.Background(), "garage-1")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, err.Error(), "DeviceOffline")
}

func TestControlUnknownBarrier(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, nil)

	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, deviceListBody("garage-1"))
	})
	_, err := c.GetAllBarriers(context.Background())
	require.NoError(t, err)

	// Once the inventory is known, unlisted identifiers fail without a
	// round trip.
	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the backend for an unknown barrier")
	})
	err = c.OpenBarrier(context.Background(), "stranger")
	require.ErrorIs(t, err, ErrUnknownBarrier)
}

func TestControlTimeout(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, func(cfg *Config) {
		cfg.CommandTimeout = 50 * time.Millisecond
	})

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		<-release
	})

	err := c.OpenBarrier(context.Background(), "garage-1")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
}

func TestCommandAuthRejected(t *testing.T) {
	b := newTestBackend(t, false)
	c := newTestClient(t, b, nil)

	b.handleAPI(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	})

	_, err := c.GetAllBarriers(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestCommandsRequireAuthentication(t *testing.T) {
	b := newTestBackend(t, false)
	c, err := New(fastConfig(b))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.GetAllBarriers(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)

	err = c.OpenBarrier(context.Background(), "garage-1")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}
