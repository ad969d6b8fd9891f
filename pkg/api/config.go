package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gematik/zero-rar/pkg/ledger"
	"github.com/gematik/zero-rar/pkg/pep"
	"github.com/gematik/zero-rar/pkg/util"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address        string       `yaml:"address" validate:"required"`
	URL            string       `yaml:"url" validate:"required,url"`
	RequiredScopes []string     `yaml:"required_scopes" validate:"required,min=1"`
	PEP            pep.Config   `yaml:"pep"`
	Ledger         LedgerConfig `yaml:"ledger"`
}

type LedgerConfig struct {
	Mode           ledger.Mode `yaml:"mode" validate:"omitempty,oneof=expenses purchases"`
	InitialBalance float64     `yaml:"initial_balance"`
	Seed           bool        `yaml:"seed"`
}

func defaultConfig() Config {
	return Config{
		RequiredScopes: []string{"read:reports"},
		Ledger: LedgerConfig{
			Mode:           ledger.ModeExpenses,
			InitialBalance: 1000,
			Seed:           true,
		},
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
	port := util.GetEnv("API_PORT", "8001")
	if c.Address == "" || os.Getenv("API_PORT") != "" {
		c.Address = ":" + port
	}
	c.URL = util.RemoveTrailingSlash(util.GetEnv("API_URL", c.URL))
	if c.URL == "" {
		c.URL = "http://localhost:" + port
	}

	c.PEP.AuthzIssuer = util.RemoveTrailingSlash(util.GetEnv("ISSUER_BASE_URL", c.PEP.AuthzIssuer))
	c.PEP.Audience = util.GetEnv("AUDIENCE", c.PEP.Audience)

	if scopes := os.Getenv("REQUIRED_SCOPES"); scopes != "" {
		c.RequiredScopes = strings.Fields(scopes)
	}

	if mode := os.Getenv("LEDGER_MODE"); mode != "" {
		parsed, err := ledger.ParseMode(mode)
		if err != nil {
			return err
		}
		c.Ledger.Mode = parsed
	}
	if balance := os.Getenv("INITIAL_BALANCE"); balance != "" {
		parsed, err := strconv.ParseFloat(balance, 64)
		if err != nil {
			return fmt.Errorf("parse INITIAL_BALANCE: %w", err)
		}
		c.Ledger.InitialBalance = parsed
	}
	if seed := os.Getenv("LEDGER_SEED"); seed != "" {
		parsed, err := strconv.ParseBool(seed)
		if err != nil {
			return fmt.Errorf("parse LEDGER_SEED: %w", err)
		}
		c.Ledger.Seed = parsed
	}
	return nil
}
