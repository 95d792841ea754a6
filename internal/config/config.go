package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix of every relay environment variable.
	// Nested keys are separated by a double underscore, e.g. HOLDED_RELAY_SERVER__PORT.
	EnvPrefix = "HOLDED_RELAY_"

	// ClientEnvPrefix is the prefix read by the holdedctl client.
	ClientEnvPrefix = "HOLDEDCTL_"

	// DefaultUpstreamURL is the Holded team API base.
	DefaultUpstreamURL = "https://api.holded.com/api/team/v1"
)

type Config struct {
	Primary       Primary             `koanf:"primary" validate:"required"`
	Server        ServerConfig        `koanf:"server" validate:"required"`
	Upstream      UpstreamConfig      `koanf:"upstream" validate:"required"`
	Observability ObservabilityConfig `koanf:"observability" validate:"required"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port           string        `koanf:"port" validate:"required,numeric"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// UpstreamConfig controls calls to the Holded API.
type UpstreamConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// MaxPages bounds the employee pagination loop.
	MaxPages int `koanf:"max_pages" validate:"min=1"`
	// RateLimit is outbound requests per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	Burst     int     `koanf:"burst" validate:"gte=0"`
}

// ClientConfig is the holdedctl session source.
type ClientConfig struct {
	RelayURL string        `koanf:"relay_url" validate:"required,url"`
	APIKey   string        `koanf:"api_key"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Default returns the relay configuration used for every key the environment leaves unset.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:           "8787",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   45 * time.Second,
			IdleTimeout:    120 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:  DefaultUpstreamURL,
			Timeout:  10 * time.Second,
			MaxPages: 200,
		},
		Observability: *DefaultObservabilityConfig(),
	}
}

// DefaultClient returns the client configuration defaults.
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		RelayURL: "http://localhost:8787",
		Timeout:  60 * time.Second,
	}
}

// LoadConfig loads the relay configuration from environment variables using koanf.
// A .env file in the working directory is read first when present.
func LoadConfig() (mainConfig *Config, err error) {
	mainConfig = Default()
	if err = load(EnvPrefix, mainConfig); err != nil {
		return nil, err
	}

	mainConfig.Observability.ServiceName = "holded-relay"
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err = mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}
	return mainConfig, nil
}

// LoadClient loads the holdedctl configuration from HOLDEDCTL_ variables.
func LoadClient() (*ClientConfig, error) {
	cfg := DefaultClient()
	if err := load(ClientEnvPrefix, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(prefix string, out any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not read .env file: %w", err)
	}

	k := koanf.New(".")
	err := k.Load(env.Provider(prefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, prefix)), "__", ".")
	}), nil)
	if err != nil {
		return fmt.Errorf("could not load env variables: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := validator.New().Struct(out); err != nil {
		return fmt.Errorf("could not validate config: %w", err)
	}
	return nil
}
