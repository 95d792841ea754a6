package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string `koanf:"service_name"`
	Environment string `koanf:"environment"`

	LogLevel  string `koanf:"log_level" validate:"required"`
	LogFormat string `koanf:"log_format" validate:"oneof=console json"`

	// MetricsAddr is the admin listener for /metrics and /healthz. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,hostname_port"`

	NewRelic NewRelicConfig `koanf:"new_relic"`
}

type NewRelicConfig struct {
	AppName    string `koanf:"app_name"`
	LicenseKey string `koanf:"license_key"`
}

// Enabled reports whether a license key was supplied.
func (n NewRelicConfig) Enabled() bool {
	return n.LicenseKey != ""
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Validate checks fields the struct tags cannot express.
func (o *ObservabilityConfig) Validate() error {
	if o.ServiceName == "" {
		return errors.New("service name is required")
	}
	if _, err := zerolog.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", o.LogLevel, err)
	}
	if o.NewRelic.Enabled() && o.NewRelic.AppName == "" {
		o.NewRelic.AppName = o.ServiceName
	}
	return nil
}
