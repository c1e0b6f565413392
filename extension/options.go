package extension

import (
	"time"

	"github.com/xraph/grove"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/hook"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/mongo"
	"github.com/xraph/custody/store/postgres"
	"github.com/xraph/custody/store/sqlite"
	"github.com/xraph/custody/stream"
)

// Option configures the Custody Forge extension.
type Option func(*Extension)

// WithStore sets the store for the custody engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithSQLiteDB wraps a grove SQLite database as the engine store.
func WithSQLiteDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = sqlite.New(db)
	}
}

// WithPostgresDB wraps a grove PostgreSQL database as the engine store.
func WithPostgresDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = postgres.New(db)
	}
}

// WithMongoDB wraps a grove MongoDB database as the engine store.
func WithMongoDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = mongo.New(db)
	}
}

// WithEngineOption passes a custody.Option through to the underlying engine.
func WithEngineOption(opt custody.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithHook registers a custody hook.
func WithHook(h hook.Hook) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, custody.WithHook(h))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithNotifyBuffer sets the change-notification buffer capacity.
func WithNotifyBuffer(n int) Option {
	return func(e *Extension) { e.config.NotifyBuffer = n }
}

// WithStreamURL points the ingestion channel at a websocket detection
// source.
func WithStreamURL(url string) Option {
	return func(e *Extension) { e.config.StreamURL = url }
}

// WithStreamBuffer sets the ingestion channel buffer capacity.
func WithStreamBuffer(n int) Option {
	return func(e *Extension) { e.config.StreamBuffer = n }
}

// WithStreamBackoff bounds the ingestion channel's redial backoff.
func WithStreamBackoff(min, max time.Duration) Option {
	return func(e *Extension) {
		e.config.StreamMinBackoff = min
		e.config.StreamMaxBackoff = max
	}
}

// WithDialer sets a custom detection-source dialer, overriding StreamURL.
func WithDialer(d stream.Dialer) Option {
	return func(e *Extension) { e.dialer = d }
}

// WithBridgeEnabled starts the auto-write bridge enabled.
func WithBridgeEnabled() Option {
	return func(e *Extension) { e.config.BridgeEnabled = true }
}

// WithBridgeClassMap overrides the class-name to item-type mapping.
func WithBridgeClassMap(m map[string]string) Option {
	return func(e *Extension) { e.config.BridgeClassMap = m }
}
