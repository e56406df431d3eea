package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DeliveryOrdered   = "ordered"
	DeliveryUnordered = "unordered"
)

const (
	DefaultMaxTransferWindowSize = 8
	DefaultMaxSequenceRanges     = 128
	DefaultMaxPendingChannels    = 4
	DefaultCloseTimeout          = 10 * time.Second
)

type Config struct {
	ServiceName              string        `koanf:"service_name" mapstructure:"service_name"`
	ReliableMessagingVersion string        `koanf:"reliable_messaging_version" mapstructure:"reliable_messaging_version"`
	DeliveryMode             string        `koanf:"delivery_mode" mapstructure:"delivery_mode"`
	MaxTransferWindowSize    int           `koanf:"max_transfer_window_size" mapstructure:"max_transfer_window_size"`
	MaxSequenceRanges        int           `koanf:"max_sequence_ranges" mapstructure:"max_sequence_ranges"`
	MaxPendingChannels       int           `koanf:"max_pending_channels" mapstructure:"max_pending_channels"`
	DisableFlowControl       bool          `koanf:"disable_flow_control" mapstructure:"disable_flow_control"`
	CloseTimeout             time.Duration `koanf:"close_timeout" mapstructure:"close_timeout"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:              "wsrm",
		ReliableMessagingVersion: string(Version11),
		DeliveryMode:             DeliveryOrdered,
		MaxTransferWindowSize:    DefaultMaxTransferWindowSize,
		MaxSequenceRanges:        DefaultMaxSequenceRanges,
		MaxPendingChannels:       DefaultMaxPendingChannels,
		CloseTimeout:             DefaultCloseTimeout,
	}
}

// WithDefaults fills every unset field from DefaultConfig and keeps the rest.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = defaults.ServiceName
	}
	if strings.TrimSpace(c.ReliableMessagingVersion) == "" {
		c.ReliableMessagingVersion = defaults.ReliableMessagingVersion
	}
	if strings.TrimSpace(c.DeliveryMode) == "" {
		c.DeliveryMode = defaults.DeliveryMode
	}
	if c.MaxTransferWindowSize == 0 {
		c.MaxTransferWindowSize = defaults.MaxTransferWindowSize
	}
	if c.MaxSequenceRanges == 0 {
		c.MaxSequenceRanges = defaults.MaxSequenceRanges
	}
	if c.MaxPendingChannels == 0 {
		c.MaxPendingChannels = defaults.MaxPendingChannels
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = defaults.CloseTimeout
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if _, err := ParseVersion(c.ReliableMessagingVersion); err != nil {
		return fmt.Errorf("core: reliable_messaging_version is invalid: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.DeliveryMode)) {
	case DeliveryOrdered, DeliveryUnordered:
	default:
		return fmt.Errorf("core: delivery_mode %q is invalid", c.DeliveryMode)
	}
	if c.MaxTransferWindowSize <= 0 {
		return fmt.Errorf("core: max_transfer_window_size must be positive")
	}
	if c.MaxSequenceRanges <= 0 {
		return fmt.Errorf("core: max_sequence_ranges must be positive")
	}
	if c.MaxPendingChannels <= 0 {
		return fmt.Errorf("core: max_pending_channels must be positive")
	}
	if c.CloseTimeout < 0 {
		return fmt.Errorf("core: close_timeout must not be negative")
	}
	return nil
}

// Version returns the parsed protocol version, falling back to Version11.
func (c Config) Version() Version {
	version, err := ParseVersion(c.ReliableMessagingVersion)
	if err != nil {
		return Version11
	}
	return version
}

func (c Config) Ordered() bool {
	return strings.ToLower(strings.TrimSpace(c.DeliveryMode)) != DeliveryUnordered
}
