package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the dotted keys that failed validation, in report order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateState(&cfg.State)
	v.validateTemplates(&cfg.Templates)
	v.validateRun(&cfg.Run)
	v.validateCapability(&cfg.Capability)
	v.validateServer(&cfg.Server)
	v.validateEvents(&cfg.Events)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	switch cfg.Backend {
	case "sqlite", "json":
	default:
		v.addError("state.backend", cfg.Backend, "must be one of: sqlite, json")
	}

	if cfg.Path == "" {
		v.addError("state.path", cfg.Path, "path required")
	} else if !isValidPath(cfg.Path) {
		v.addError("state.path", cfg.Path, "invalid path")
	}
}

func (v *Validator) validateTemplates(cfg *TemplatesConfig) {
	if cfg.Dir == "" {
		return
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil || !info.IsDir() {
		v.addError("templates.dir", cfg.Dir, "must be an existing directory")
	}
}

func (v *Validator) validateRun(cfg *RunConfig) {
	if cfg.NodeTimeout < 0 {
		v.addError("run.node_timeout", cfg.NodeTimeout, "must be non-negative (0 disables)")
	}
	if cfg.MaxAttempts < 1 {
		v.addError("run.max_attempts", cfg.MaxAttempts, "must be at least 1")
	}
	if cfg.BaseDelay < 0 {
		v.addError("run.base_delay", cfg.BaseDelay, "must be non-negative")
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		v.addError("run.max_delay", cfg.MaxDelay, "must not be less than run.base_delay")
	}
}

func (v *Validator) validateCapability(cfg *CapabilityConfig) {
	switch cfg.Mode {
	case "local":
	case "http":
		u, err := url.Parse(cfg.BaseURL)
		if cfg.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("capability.base_url", cfg.BaseURL, "absolute URL required in http mode")
		} else if u.Scheme != "http" && u.Scheme != "https" {
			v.addError("capability.base_url", cfg.BaseURL, "scheme must be http or https")
		}
	default:
		v.addError("capability.mode", cfg.Mode, "must be one of: local, http")
	}

	if cfg.Timeout <= 0 {
		v.addError("capability.timeout", cfg.Timeout, "must be positive")
	}
	if cfg.LocalDelay < 0 {
		v.addError("capability.local_delay", cfg.LocalDelay, "must be non-negative")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 0 and 65535")
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":     cfg.ReadTimeout,
		"write_timeout":    cfg.WriteTimeout,
		"shutdown_timeout": cfg.ShutdownTimeout,
	} {
		if d < 0 {
			v.addError("server."+name, d, "must be non-negative")
		}
	}
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("server.cors_origins", origin, "must be an origin like http://host:port or *")
		}
	}
}

func (v *Validator) validateEvents(cfg *EventsConfig) {
	if cfg.BufferSize < 1 {
		v.addError("events.buffer_size", cfg.BufferSize, "must be at least 1")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
