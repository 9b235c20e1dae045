package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	State      StateConfig      `mapstructure:"state"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Nodes      NodesConfig      `mapstructure:"nodes"`
	Run        RunConfig        `mapstructure:"run"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Server     ServerConfig     `mapstructure:"server"`
	Events     EventsConfig     `mapstructure:"events"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StateConfig configures workflow persistence.
type StateConfig struct {
	// Backend is "sqlite" or "json".
	Backend string `mapstructure:"backend"`
	// Path is the database file for sqlite, or the root directory for json.
	Path string `mapstructure:"path"`
}

// TemplatesConfig configures extra template directories.
type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

// NodesConfig configures the node configuration store.
type NodesConfig struct {
	// StrictAgentTypes rejects configurations for agent types without a
	// dedicated schema instead of falling back to the social schema.
	StrictAgentTypes bool `mapstructure:"strict_agent_types"`
}

// RunConfig configures the execution engine.
type RunConfig struct {
	NodeTimeout time.Duration `mapstructure:"node_timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// CapabilityConfig selects the agent backend.
type CapabilityConfig struct {
	Mode       string        `mapstructure:"mode"`
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	LocalDelay time.Duration `mapstructure:"local_delay"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
