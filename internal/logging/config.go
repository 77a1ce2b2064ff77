// internal/logging/config.go
package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level zapcore.Level `koanf:"level"`
	// Format is the encoder format: json or console.
	Format string `koanf:"format"`
	// Output is the log destination: stdout, stderr, or a file path.
	Output string `koanf:"output"`
	// Development enables caller annotation and DPanic behavior.
	Development bool `koanf:"development"`
	// OTEL tees log entries into the OpenTelemetry log bridge when a
	// provider is supplied.
	OTEL bool `koanf:"otel"`
	// Fields are constant fields attached to every entry.
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "console",
		Output: "stderr",
		Fields: map[string]string{
			"service": "negmine",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if c.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}

// LevelFromString parses a string into a zapcore.Level.
func LevelFromString(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
