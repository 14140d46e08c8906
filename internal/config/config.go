// Package config provides centralized configuration management for the server.
// It loads configuration from environment variables (optionally layered over a
// TOML file) with sensible defaults and validates all settings on startup to
// fail fast on misconfiguration.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds all server configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Bootstrap BootstrapConfig
	Translate TranslateConfig
	Process   ProcessConfig
	Agent     AgentConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Enabled controls whether the HTTP listener is registered (default: true)
	Enabled bool `env:"HTTP_ENABLED" default:"true"`

	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8069)
	Port int `env:"SERVER_PORT" default:"8069"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds how long a single service may take to stop (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys guards /api routes via X-API-Key; empty leaves them open
	APIKeys []string `env:"API_KEYS"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Names is the ordered list of logical databases to initialize at startup
	Names []string `env:"DB_NAME" envAlt:"DB_NAMES"`

	// URL is the base PostgreSQL connection string. The database path is
	// replaced by each logical database name.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"postgres://localhost:5432/postgres"`

	// User overrides the user embedded in URL when set
	User string `env:"DB_USER"`

	// MaxConns is the maximum number of connections per database pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AddonsPath is reported in the startup banner
	AddonsPath string `env:"ADDONS_PATH"`
}

// BootstrapConfig controls per-database initialization.
type BootstrapConfig struct {
	// InitModules lists modules to install ("all" is accepted)
	InitModules []string `env:"INIT_MODULES"`

	// UpdateModules lists modules to upgrade ("all" is accepted)
	UpdateModules []string `env:"UPDATE_MODULES"`

	// StopAfterInit exits with status 0 once databases are initialized
	StopAfterInit bool `env:"STOP_AFTER_INIT" default:"false"`

	// TestFile is a YAML data file loaded and rolled back in every database
	TestFile string `env:"TEST_FILE"`

	// ContinueOnError initializes the remaining databases before aborting
	ContinueOnError bool `env:"BOOTSTRAP_CONTINUE_ON_ERROR" default:"false"`
}

// TranslateConfig holds the one-shot translation import/export settings.
type TranslateConfig struct {
	// In is a translation file to import
	In string `env:"TRANSLATE_IN"`

	// Out is a translation file to export; the format follows the extension
	Out string `env:"TRANSLATE_OUT"`

	// Language is the language code; empty exports a new-language template
	Language string `env:"LANGUAGE"`

	// Modules restricts the export (default: all)
	Modules []string `env:"TRANSLATE_MODULES" default:"all"`

	// Overwrite replaces existing translations on import
	Overwrite bool `env:"OVERWRITE_EXISTING_TRANSLATIONS" default:"false"`
}

// ProcessConfig holds process lifecycle settings.
type ProcessConfig struct {
	// PIDFile is written at startup and removed on clean shutdown
	PIDFile string `env:"PID_FILE"`

	// MainLoopPoll is the idle loop interval (default: 60s)
	MainLoopPoll time.Duration `env:"MAIN_LOOP_POLL" default:"60s"`

	// DrainPoll is the join interval while draining workers (default: 50ms)
	DrainPoll time.Duration `env:"DRAIN_POLL" default:"50ms"`

	// DiagnosticSignal installs the SIGQUIT stack dump handler (default: true)
	DiagnosticSignal bool `env:"DIAGNOSTIC_SIGNAL_ENABLED" default:"true"`
}

// AgentConfig holds recurring job settings.
type AgentConfig struct {
	// Enabled controls whether recurring jobs run (default: true)
	Enabled bool `env:"AGENT_ENABLED" default:"true"`

	// StopTimeout bounds how long shutdown waits for running jobs (default: 30s)
	StopTimeout time.Duration `env:"AGENT_STOP_TIMEOUT" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UpdateRequested reports whether module installs or upgrades were requested.
func (c *BootstrapConfig) UpdateRequested() bool {
	return len(c.InitModules) > 0 || len(c.UpdateModules) > 0
}

// EffectiveUser returns the database role the server connects as.
// User takes precedence over the user embedded in URL.
func (c *DatabaseConfig) EffectiveUser() string {
	if c.User != "" {
		return c.User
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.User == nil {
		return ""
	}
	return u.User.Username()
}

// HostPort returns the database host and port from URL for the startup banner.
func (c *DatabaseConfig) HostPort() (string, string) {
	host, port := "localhost", "5432"
	u, err := url.Parse(c.URL)
	if err != nil {
		return host, port
	}
	if h := u.Hostname(); h != "" {
		host = h
	}
	if p := u.Port(); p != "" {
		port = p
	}
	return host, port
}
