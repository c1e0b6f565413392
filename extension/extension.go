// Package extension provides the Forge extension adapter for Custody.
//
// It implements the forge.Extension interface to integrate the custody
// ledger into a Forge application with DI registration and lifecycle
// management, optionally wiring a detection-event ingestion channel and
// auto-write bridge around it.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.custody" or "custody"
// keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/bridge"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/stream"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "custody"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Custody-tracking ledger with live detection ingestion"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Custody as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *custody.Ledger
	store      store.Store
	engineOpts []custody.Option

	dialer  stream.Dialer
	channel *stream.Channel
	bridge  *bridge.Bridge

	bridgeCancel context.CancelFunc
	bridgeDone   chan struct{}
}

// New creates a new Custody Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *custody.Ledger { return e.engine }

// Channel returns the ingestion channel, or nil when no detection source
// is configured.
func (e *Extension) Channel() *stream.Channel { return e.channel }

// Bridge returns the auto-write bridge, or nil when no detection source is
// configured.
func (e *Extension) Bridge() *bridge.Bridge { return e.bridge }

// Register implements [forge.Extension]. It loads configuration,
// initializes the custody engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng := custody.New(e.store, e.buildEngineOpts()...)
	e.engine = eng

	if err := vessel.Provide(fapp.Container(), func() (*custody.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.dialer == nil && e.config.StreamURL != "" {
		e.dialer = &stream.WebSocketDialer{URL: e.config.StreamURL}
	}
	if e.dialer == nil {
		return nil
	}

	e.channel = stream.New(e.dialer,
		stream.WithBuffer(e.config.StreamBuffer),
		stream.WithBackoff(e.config.StreamMinBackoff, e.config.StreamMaxBackoff),
		stream.WithHooks(eng.Hooks()),
	)

	bridgeOpts := []bridge.Option{
		bridge.WithHooks(eng.Hooks()),
		bridge.WithEnabled(e.config.BridgeEnabled),
	}
	if e.config.BridgeClassMap != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithClassMap(e.config.BridgeClassMap))
	}
	e.bridge = bridge.New(eng, eng.Session(), bridgeOpts...)

	if err := vessel.Provide(fapp.Container(), func() (*stream.Channel, error) {
		return e.channel, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*bridge.Bridge, error) {
		return e.bridge, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("custody: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.channel != nil {
		if err := e.channel.Start(ctx); err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(context.Background())
		e.bridgeCancel = cancel
		e.bridgeDone = make(chan struct{})
		go func() {
			defer close(e.bridgeDone)
			e.bridge.Run(runCtx, e.channel.Events())
		}()
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.channel != nil {
		_ = e.channel.Stop() //nolint:errcheck // Stop is idempotent and error-free today
		if e.bridgeCancel != nil {
			e.bridgeCancel()
			<-e.bridgeDone
		}
	}

	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("custody: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs custody.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []custody.Option {
	opts := make([]custody.Option, 0, len(e.engineOpts)+2)

	if e.config.NotifyBuffer > 0 {
		opts = append(opts, custody.WithNotifyBuffer(e.config.NotifyBuffer))
	}
	if e.config.DisableMigrate {
		opts = append(opts, custody.WithoutMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("custody: configuration is required but not found in config files; " +
				"ensure 'extensions.custody' or 'custody' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("custody: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("notify_buffer", e.config.NotifyBuffer),
		forge.F("stream_url", e.config.StreamURL),
		forge.F("stream_buffer", e.config.StreamBuffer),
		forge.F("bridge_enabled", e.config.BridgeEnabled),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.custody" first (namespaced pattern).
	if cm.IsSet("extensions.custody") {
		if err := cm.Bind("extensions.custody", &cfg); err == nil {
			e.Logger().Debug("custody: loaded config from file",
				forge.F("key", "extensions.custody"),
			)
			return cfg, true
		}
		e.Logger().Warn("custody: failed to bind extensions.custody config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "custody" key.
	if cm.IsSet("custody") {
		if err := cm.Bind("custody", &cfg); err == nil {
			e.Logger().Debug("custody: loaded config from file",
				forge.F("key", "custody"),
			)
			return cfg, true
		}
		e.Logger().Warn("custody: failed to bind custody config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.NotifyBuffer == 0 {
		cfg.NotifyBuffer = defaults.NotifyBuffer
	}
	if cfg.StreamBuffer == 0 {
		cfg.StreamBuffer = defaults.StreamBuffer
	}
	if cfg.StreamMinBackoff == 0 {
		cfg.StreamMinBackoff = defaults.StreamMinBackoff
	}
	if cfg.StreamMaxBackoff == 0 {
		cfg.StreamMaxBackoff = defaults.StreamMaxBackoff
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.BridgeEnabled {
		yamlConfig.BridgeEnabled = true
	}

	// String/map fields: YAML takes precedence.
	if yamlConfig.StreamURL == "" && programmaticConfig.StreamURL != "" {
		yamlConfig.StreamURL = programmaticConfig.StreamURL
	}
	if yamlConfig.BridgeClassMap == nil && programmaticConfig.BridgeClassMap != nil {
		yamlConfig.BridgeClassMap = programmaticConfig.BridgeClassMap
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.NotifyBuffer == 0 && programmaticConfig.NotifyBuffer != 0 {
		yamlConfig.NotifyBuffer = programmaticConfig.NotifyBuffer
	}
	if yamlConfig.StreamBuffer == 0 && programmaticConfig.StreamBuffer != 0 {
		yamlConfig.StreamBuffer = programmaticConfig.StreamBuffer
	}
	if yamlConfig.StreamMinBackoff == 0 && programmaticConfig.StreamMinBackoff != 0 {
		yamlConfig.StreamMinBackoff = programmaticConfig.StreamMinBackoff
	}
	if yamlConfig.StreamMaxBackoff == 0 && programmaticConfig.StreamMaxBackoff != 0 {
		yamlConfig.StreamMaxBackoff = programmaticConfig.StreamMaxBackoff
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
