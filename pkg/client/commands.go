package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatewave/gatewave-go/pkg/barrier"
	"github.com/gatewave/gatewave-go/pkg/log"
	"github.com/gatewave/gatewave-go/pkg/wire"
)

// GetAllBarriers lists every barrier the account can see. The result also
// seeds the known-device set commands validate against and the snapshot
// cache keys callers read.
func (c *Client) GetAllBarriers(ctx context.Context) ([]barrier.Barrier, error) {
	started := time.Now()
	body, err := c.graphQL(ctx, wire.DeviceListRequest())
	c.logCommand("devicesListAll", "", time.Since(started), nil)
	if err != nil {
		return nil, err
	}

	barriers, err := wire.DecodeDeviceList(body)
	if err != nil {
		return nil, &ProtocolError{Err: err}
	}

	c.mu.Lock()
	for i := range barriers {
		c.known[barriers[i].ID] = struct{}{}
	}
	c.mu.Unlock()

	return barriers, nil
}

// OpenBarrier commands a barrier to open.
func (c *Client) OpenBarrier(ctx context.Context, barrierID string) error {
	return c.control(ctx, barrierID, wire.ActionOpen)
}

// CloseBarrier commands a barrier to close.
func (c *Client) CloseBarrier(ctx context.Context, barrierID string) error {
	return c.control(ctx, barrierID, wire.ActionClose)
}

// LightOn switches a barrier's courtesy light on.
func (c *Client) LightOn(ctx context.Context, barrierID string) error {
	return c.control(ctx, barrierID, wire.ActionLightOn)
}

// LightOff switches a barrier's courtesy light off.
func (c *Client) LightOff(ctx context.Context, barrierID string) error {
	return c.control(ctx, barrierID, wire.ActionLightOff)
}

// VacationModeOn enables vacation mode: scheduled and remote open
// commands are ignored by the device until disabled.
func (c *Client) VacationModeOn(ctx context.Context, barrierID string) error {
	return c.control(ctx, barrierID, wire.ActionVacationModeOn)
}

// VacationModeOff disables vacation mode.
func (c *Client) VacationModeOff(ctx context.Context, barrierID string) error {
	return c.control(ctx, barrierID, wire.ActionVacationModeOff)
}

// control issues one devicesControl mutation. The target must be in the
// known-device set once that set has been populated; before the first
// inventory listing or feed event, any identifier is passed through.
func (c *Client) control(ctx context.Context, barrierID string, action wire.ControlAction) error {
	c.mu.Lock()
	_, known := c.known[barrierID]
	haveInventory := len(c.known) > 0
	c.mu.Unlock()

	if haveInventory && !known {
		return &CommandError{BarrierID: barrierID, Action: string(action), Err: ErrUnknownBarrier}
	}

	started := time.Now()
	body, err := c.graphQL(ctx, wire.ControlRequest(barrierID, action))
	if err != nil {
		c.logCommand("devicesControl", string(action), time.Since(started), nil)
		return commandFailure(barrierID, action, err)
	}

	accepted, err := wire.DecodeControlResult(body)
	c.logCommand("devicesControl", string(action), time.Since(started), &accepted)
	if err != nil {
		return commandFailure(barrierID, action, err)
	}
	if !accepted {
		return &CommandError{BarrierID: barrierID, Action: string(action), Err: ErrCommandRejected}
	}
	return nil
}

// commandFailure shapes a per-call failure: timeouts keep their own type
// inside the CommandError so callers can tell them apart.
func commandFailure(barrierID string, action wire.ControlAction, err error) error {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = &TimeoutError{Op: "command", Err: err}
	}
	return &CommandError{BarrierID: barrierID, Action: string(action), Err: err}
}

// graphQL POSTs one request to the device API endpoint and returns the
// raw response body. Applies CommandTimeout when the caller's context has
// no deadline.
func (c *Client) graphQL(ctx context.Context, request wire.GraphQLRequest) ([]byte, error) {
	c.mu.Lock()
	tokens, endpoints := c.tokens, c.endpoints
	c.mu.Unlock()

	if tokens == nil || endpoints == nil {
		return nil, &AuthError{Err: ErrNotAuthenticated}
	}
	devicePair, err := endpoints.Service(wire.ServiceDevice)
	if err != nil {
		return nil, &ProtocolError{Err: err}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, devicePair.HTTPS, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", tokens.IDToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: "device API call", Err: err}
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Err: fmt.Errorf("device API returned %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Err: fmt.Errorf("device API returned %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return body, nil
}

func (c *Client) logCommand(operation, action string, duration time.Duration, accepted *bool) {
	event := &log.CommandEvent{
		Operation: operation,
		Action:    action,
		Duration:  &duration,
		Accepted:  accepted,
	}
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerAPI,
		Category:  log.CategoryCommand,
		Command:   event,
	})
}
