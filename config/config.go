// Package config holds the YAML-backed configuration surface for a
// bot group: connect address, revision, and timing knobs. Per-group
// strategy choices (codecs, RSA key, exception handler) are Go values
// set through group.Option and are not part of this file-backed
// surface.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GroupConfig holds file-configurable settings for a bot group.
type GroupConfig struct {
	// Network
	ConnectHost string `yaml:"connect_host"`
	ConnectPort int    `yaml:"connect_port"`

	// Protocol
	ClientRevision int `yaml:"client_revision"`

	// Timing
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	LoginWaitTimeout time.Duration `yaml:"login_wait_timeout"`
}

// Addr returns "host:port" for net.Dial.
func (c GroupConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.ConnectHost, c.ConnectPort)
}

// DefaultGroupConfig returns a GroupConfig with sensible defaults
// matching the 317 revision's conventional local server address.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		ConnectHost:      "127.0.0.1",
		ConnectPort:      43594,
		ClientRevision:   317,
		ReadBufferSize:   256,
		LoginWaitTimeout: 10 * time.Second,
	}
}

// LoadGroupConfig loads a GroupConfig from a YAML file. If the file
// does not exist, defaults are returned unchanged.
func LoadGroupConfig(path string) (GroupConfig, error) {
	cfg := DefaultGroupConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
