package extension

import "time"

// Config holds the Custody extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custody" or "custody" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// NotifyBuffer is the change-notification buffer capacity (default: 1024).
	NotifyBuffer int `json:"notify_buffer" mapstructure:"notify_buffer" yaml:"notify_buffer"`

	// StreamURL is the websocket endpoint of the detection source. When set
	// (and no custom dialer was provided), the extension builds an ingestion
	// channel and an auto-write bridge around it.
	StreamURL string `json:"stream_url" mapstructure:"stream_url" yaml:"stream_url"`

	// StreamBuffer is the ingestion channel buffer capacity (default: 256).
	// When full, the oldest buffered event is dropped.
	StreamBuffer int `json:"stream_buffer" mapstructure:"stream_buffer" yaml:"stream_buffer"`

	// StreamMinBackoff and StreamMaxBackoff bound the redial backoff
	// (defaults: 250ms and 30s).
	StreamMinBackoff time.Duration `json:"stream_min_backoff" mapstructure:"stream_min_backoff" yaml:"stream_min_backoff"`
	StreamMaxBackoff time.Duration `json:"stream_max_backoff" mapstructure:"stream_max_backoff" yaml:"stream_max_backoff"`

	// BridgeEnabled sets the initial auto-write toggle state.
	BridgeEnabled bool `json:"bridge_enabled" mapstructure:"bridge_enabled" yaml:"bridge_enabled"`

	// BridgeClassMap overrides the default class-name to item-type mapping.
	BridgeClassMap map[string]string `json:"bridge_class_map" mapstructure:"bridge_class_map" yaml:"bridge_class_map"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NotifyBuffer:     1024,
		StreamBuffer:     256,
		StreamMinBackoff: 250 * time.Millisecond,
		StreamMaxBackoff: 30 * time.Second,
	}
}
