package client

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatewave/gatewave-go/pkg/auth"
	"github.com/gatewave/gatewave-go/pkg/connection"
	"github.com/gatewave/gatewave-go/pkg/log"
)

// Production backend identifiers. Overridable for test and staging
// deployments via Config.
const (
	// DefaultDiscoveryURL publishes the service endpoints directory.
	DefaultDiscoveryURL = "https://api.gatewave.io/v1/endpoints"

	// DefaultRegion hosts the production identity provider.
	DefaultRegion = "eu-central-1"

	// DefaultClientID is the app client registered for this library.
	DefaultClientID = "7kqkbdf3v5l8kkcnp35md0lmf0"

	// DefaultPoolID is the production user pool.
	DefaultPoolID = "eu-central-1_J2iKe3mLr"
)

// DefaultCommandTimeout bounds a device command round trip when the
// caller's context carries no deadline.
const DefaultCommandTimeout = 10 * time.Second

// Config configures a Client. The zero value plus Validate is not enough:
// either Authenticator or the default identity pool (left as-is) is used,
// and all timeouts fall back to their package defaults.
type Config struct {
	// Authenticator overrides the built-in SRP authenticator. Leave nil
	// to authenticate against the production identity provider.
	Authenticator auth.Authenticator

	// DiscoveryURL overrides the endpoints directory location.
	DiscoveryURL string

	// Region, ClientID and PoolID configure the built-in authenticator.
	// Ignored when Authenticator is set.
	Region   string
	ClientID string
	PoolID   string

	// HTTPClient is used for discovery, command and identity calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger

	// KeepAliveTimeout is the channel silence threshold. Default 60s.
	KeepAliveTimeout time.Duration

	// ReceiveTimeout is the per-read deadline backstopping the keep-alive
	// watchdog. Default 70s.
	ReceiveTimeout time.Duration

	// HandshakeTimeout bounds the channel handshake. Default 10s.
	HandshakeTimeout time.Duration

	// SubscribeTimeout bounds a feed subscription acknowledgement.
	// Default 10s.
	SubscribeTimeout time.Duration

	// CommandTimeout bounds a device command when the caller's context
	// has no deadline. Default 10s.
	CommandTimeout time.Duration

	// Backoff configures the reconnect delay schedule.
	Backoff connection.BackoffConfig

	// MaxAttempts caps reconnect attempts per outage. Default 20;
	// connection.NoLimit disables the cap.
	MaxAttempts int

	// MaxProtocolFailures caps consecutive protocol-class reconnect
	// failures. Default 5; connection.NoLimit disables the cap.
	MaxProtocolFailures int
}

// applyDefaults fills unset fields in place.
func (c *Config) applyDefaults() {
	if c.DiscoveryURL == "" {
		c.DiscoveryURL = DefaultDiscoveryURL
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.PoolID == "" {
		c.PoolID = DefaultPoolID
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ReceiveTimeout > 0 && c.KeepAliveTimeout > 0 && c.ReceiveTimeout <= c.KeepAliveTimeout {
		return errors.New("receive timeout must exceed keep-alive timeout")
	}
	return nil
}
