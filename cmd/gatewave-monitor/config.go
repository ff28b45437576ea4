package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatewave/gatewave-go/pkg/client"
	"github.com/gatewave/gatewave-go/pkg/connection"
)

// fileConfig is the YAML configuration file shape. Every field is
// optional; unset values take the library defaults. Durations use Go
// syntax ("90s", "2m").
type fileConfig struct {
	DiscoveryURL string `yaml:"discovery_url"`
	Region       string `yaml:"region"`
	ClientID     string `yaml:"client_id"`
	PoolID       string `yaml:"pool_id"`

	KeepAliveTimeout string `yaml:"keepalive_timeout"`
	ReceiveTimeout   string `yaml:"receive_timeout"`
	CommandTimeout   string `yaml:"command_timeout"`

	Reconnect struct {
		InitialDelay        string  `yaml:"initial_delay"`
		MaxDelay            string  `yaml:"max_delay"`
		Multiplier          float64 `yaml:"multiplier"`
		MaxAttempts         int     `yaml:"max_attempts"`
		MaxProtocolFailures int     `yaml:"max_protocol_failures"`
	} `yaml:"reconnect"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// clientConfig translates the file into a client configuration.
func (f *fileConfig) clientConfig() (client.Config, error) {
	cfg := client.Config{
		DiscoveryURL:        f.DiscoveryURL,
		Region:              f.Region,
		ClientID:            f.ClientID,
		PoolID:              f.PoolID,
		MaxAttempts:         f.Reconnect.MaxAttempts,
		MaxProtocolFailures: f.Reconnect.MaxProtocolFailures,
		Backoff: connection.BackoffConfig{
			Multiplier: f.Reconnect.Multiplier,
		},
	}

	var err error
	if cfg.KeepAliveTimeout, err = parseDuration(f.KeepAliveTimeout, "keepalive_timeout"); err != nil {
		return cfg, err
	}
	if cfg.ReceiveTimeout, err = parseDuration(f.ReceiveTimeout, "receive_timeout"); err != nil {
		return cfg, err
	}
	if cfg.CommandTimeout, err = parseDuration(f.CommandTimeout, "command_timeout"); err != nil {
		return cfg, err
	}
	if cfg.Backoff.Initial, err = parseDuration(f.Reconnect.InitialDelay, "reconnect.initial_delay"); err != nil {
		return cfg, err
	}
	if cfg.Backoff.Max, err = parseDuration(f.Reconnect.MaxDelay, "reconnect.max_delay"); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
