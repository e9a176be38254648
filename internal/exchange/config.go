package exchange

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the Binance connection settings.
type Config struct {
	APIKey    string `yaml:"api_key" validate:"required"`
	SecretKey string `yaml:"secret_key" validate:"required"`
	// Testnet routes all requests to the Binance futures testnet.
	Testnet bool `yaml:"testnet"`
	// BaseURL overrides the endpoint, mainly for tests against a local stub.
	BaseURL string `yaml:"base_url"`
	// FiltersCacheTTL bounds how long exchange info is served from cache.
	// Zero means DefaultFiltersCacheTTL.
	FiltersCacheTTL time.Duration `yaml:"filters_cache_ttl"`
}

// LoadConfig reads a YAML config file and validates it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
	}

	// Environment variables take precedence so keys can stay out of files.
	if key := os.Getenv("BINANCE_API_KEY"); key != "" {
		config.APIKey = key
	}

	if secret := os.Getenv("BINANCE_SECRET_KEY"); secret != "" {
		config.SecretKey = secret
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the config and applies defaults.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid exchange configuration", err)
	}

	if c.FiltersCacheTTL == 0 {
		c.FiltersCacheTTL = DefaultFiltersCacheTTL
	}

	if c.FiltersCacheTTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "filters_cache_ttl must not be negative")
	}

	return nil
}
