package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	APIJWKSURL  string `yaml:"apiJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`

	StripeAPIKey string `yaml:"stripeAPIKey"`
	SuccessURL   string `yaml:"successURL"`
	CancelURL    string `yaml:"cancelURL"`
	PortalURL    string `yaml:"portalURL"`
	TrialDays    int    `yaml:"trialDays"`

	SendGridKey   string `yaml:"sendgridAPIKey"`
	MailFromName  string `yaml:"mailFromName"`
	MailFromEmail string `yaml:"mailFromEmail"`
	InterestEmail string `yaml:"interestEmail"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("STRIPE_API_KEY"); v != "" {
		cfg.StripeAPIKey = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.SendGridKey = v
	}
	if v := os.Getenv("BILLING_TRIAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TrialDays = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.APIJWKSURL == "" {
		return errors.New("config: apiJwksURL is required (set in config.yaml)")
	}
	if cfg.StripeAPIKey == "" {
		return errors.New("config: stripeAPIKey is required (set in config.yaml or STRIPE_API_KEY)")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return errors.New("config: successURL and cancelURL are required (set in config.yaml)")
	}
	return nil
}
