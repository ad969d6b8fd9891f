package webapp

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gematik/zero-rar/pkg/util"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address       string        `yaml:"address" validate:"required"`
	AppURL        string        `yaml:"app_url" validate:"required,url"`
	APIURL        string        `yaml:"api_url" validate:"required,url"`
	APITimeout    time.Duration `yaml:"api_timeout" validate:"gt=0"`
	Issuer        string        `yaml:"issuer" validate:"required,url"`
	ClientID      string        `yaml:"client_id" validate:"required"`
	ResponseType  string        `yaml:"response_type" validate:"required"`
	Scope         string        `yaml:"scope" validate:"required"`
	SessionSecret string        `yaml:"session_secret" validate:"required"`
	ClientSecret  string        `yaml:"client_secret"`
	Audience      string        `yaml:"audience"`
}

func defaultConfig() Config {
	return Config{
		APITimeout:   10 * time.Second,
		ResponseType: "code",
		Scope:        "openid profile email",
	}
}

// LoadConfig reads the optional YAML file given by CONFIG_PATH and applies
// the environment on top of it.
func LoadConfig() (*Config, error) {
	config := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := util.Validate(config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	port := util.GetEnv("PORT", util.GetEnv("APP_PORT", "3000"))
	if c.Address == "" || os.Getenv("PORT") != "" || os.Getenv("APP_PORT") != "" {
		c.Address = ":" + port
	}
	c.AppURL = util.GetEnv("APP_URL", c.AppURL)
	if c.AppURL == "" {
		c.AppURL = "http://localhost:" + port
	}
	c.AppURL = util.RemoveTrailingSlash(c.AppURL)

	c.APIURL = util.RemoveTrailingSlash(util.GetEnv("API_URL", c.APIURL))
	if c.APIURL == "" {
		c.APIURL = "http://localhost:" + util.GetEnv("API_PORT", "8001")
	}
	if timeout := os.Getenv("API_TIMEOUT"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("parse API_TIMEOUT: %w", err)
		}
		c.APITimeout = parsed
	}

	c.Issuer = util.RemoveTrailingSlash(util.GetEnv("ISSUER_BASE_URL", c.Issuer))
	c.ClientID = util.GetEnv("CLIENT_ID", c.ClientID)
	c.ClientSecret = util.GetEnv("CLIENT_SECRET", c.ClientSecret)
	c.Audience = util.GetEnv("AUDIENCE", c.Audience)
	c.ResponseType = util.GetEnv("RESPONSE_TYPE", c.ResponseType)
	c.Scope = util.GetEnv("SCOPE", c.Scope)
	c.SessionSecret = util.GetEnv("SESSION_SECRET", c.SessionSecret)
	return nil
}

// Scopes splits the configured scope string.
func (c *Config) Scopes() []string {
	return strings.Fields(c.Scope)
}

// RedirectURI is where the authorization server sends the browser back to.
func (c *Config) RedirectURI() string {
	return c.AppURL + "/callback"
}

// Log prints the effective settings, secrets masked.
func (c *Config) Log() {
	slog.Info("Environment Settings",
		"ISSUER_BASE_URL", c.Issuer,
		"CLIENT_ID", c.ClientID,
		"CLIENT_SECRET", util.Masked(c.ClientSecret),
		"RESPONSE_TYPE", c.ResponseType,
		"AUDIENCE", c.Audience,
		"SCOPE", c.Scope,
		"SESSION_SECRET", util.Masked(c.SessionSecret),
		"ADDRESS", c.Address,
		"APP_URL", c.AppURL,
		"API_URL", c.APIURL,
		"API_TIMEOUT", c.APITimeout,
	)
}
