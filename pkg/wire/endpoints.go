package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Service names within the endpoints directory.
const (
	ServiceDevice = "device"
	ServiceEvents = "events"
)

// EndpointPair is one service's HTTPS and WSS entry points.
type EndpointPair struct {
	HTTPS string `json:"https"`
	WSS   string `json:"wss"`
}

// Host returns the hostname of the HTTPS entry point. The feed service
// expects this value as the "host" claim of the channel authorization header.
func (p EndpointPair) Host() (string, error) {
	u, err := url.Parse(p.HTTPS)
	if err != nil {
		return "", fmt.Errorf("parse https endpoint: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("https endpoint %q has no host", p.HTTPS)
	}
	return u.Hostname(), nil
}

// Endpoints is the service directory the backend publishes. It is fetched
// once after authentication; command and feed endpoints may live on distinct
// hosts.
type Endpoints struct {
	GraphQL map[string]EndpointPair `json:"GraphQL"`
}

// Service returns the entry points of a named service.
func (e *Endpoints) Service(name string) (EndpointPair, error) {
	pair, ok := e.GraphQL[name]
	if !ok {
		return EndpointPair{}, fmt.Errorf("no %q service in endpoints directory", name)
	}
	return pair, nil
}

// DecodeEndpoints parses the published endpoints document.
func DecodeEndpoints(body []byte) (*Endpoints, error) {
	var doc struct {
		Endpoints Endpoints `json:"endpoints"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode endpoints document: %w", err)
	}
	if len(doc.Endpoints.GraphQL) == 0 {
		return nil, errors.New("endpoints document has no GraphQL section")
	}
	return &doc.Endpoints, nil
}
