// Package config loads the application configuration and shopping
// lists. Values are taken from a config yml file or environment
// variables or both.
package config

import (
	"fmt"
	"os"

	"github.com/cartpilot/cartpilot/internal/output"
	"github.com/cartpilot/cartpilot/internal/page"
	"github.com/cartpilot/cartpilot/internal/retailer"
	"github.com/cartpilot/cartpilot/internal/types"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config defines the overall structure of the cartpilot configuration.
type Config struct {
	Retailer       types.Retailer        `yaml:"retailer" env:"CARTPILOT_RETAILER" env-default:"woolworths"`
	Browser        page.ControllerConfig `yaml:"browser"`
	Writer         output.WriterConfig   `yaml:"writer"`
	OpenAIAPIKey   string                `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	VisionModel    string                `yaml:"vision_model" env:"CARTPILOT_VISION_MODEL"`
	DisableVision  bool                  `yaml:"disable_vision" env:"CARTPILOT_DISABLE_VISION"`
	PlanServiceURL string                `yaml:"plan_service_url" env:"CARTPILOT_PLAN_URL"`
	ScriptDir      string                `yaml:"script_dir" env:"CARTPILOT_SCRIPT_DIR" env-default:"./scripts"`
	SkipAuthCheck  bool                  `yaml:"skip_auth_check" env:"CARTPILOT_SKIP_AUTH"`
	MaxCandidates  int                   `yaml:"max_candidates" env:"CARTPILOT_MAX_CANDIDATES"`
	// Profiles override the built-in retailer profiles wholesale when a
	// matching name is present.
	Profiles []retailer.Profile `yaml:"profiles"`
}

// NewConfig reads the configuration from the given path. An empty path
// yields a config built from environment variables and defaults only.
func NewConfig(configPath string) (*Config, error) {
	var config Config
	if configPath == "" {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return &config, nil
	}
	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return &config, nil
}

// Profile resolves the effective profile for a retailer, preferring a
// configured override over the built-in defaults.
func (c *Config) Profile(r types.Retailer) (*retailer.Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == r {
			return &c.Profiles[i], nil
		}
	}
	if p := retailer.Default(r); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("unknown retailer %q", r)
}

type shoppingList struct {
	Items []types.ShoppingItem `yaml:"items"`
}

// LoadShoppingList reads a shopping list yaml file, either a bare item
// list or a document with a top-level items key. Quantities below one
// are raised to one.
func LoadShoppingList(path string) ([]types.ShoppingItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shopping list: %w", err)
	}

	var list shoppingList
	if err := yaml.Unmarshal(raw, &list); err != nil {
		var bare []types.ShoppingItem
		if err2 := yaml.Unmarshal(raw, &bare); err2 != nil {
			return nil, fmt.Errorf("failed to parse shopping list: %w", err)
		}
		list.Items = bare
	}
	if len(list.Items) == 0 {
		var bare []types.ShoppingItem
		if err := yaml.Unmarshal(raw, &bare); err == nil {
			list.Items = bare
		}
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("shopping list %s contains no items", path)
	}

	for i := range list.Items {
		if list.Items[i].Quantity < 1 {
			list.Items[i].Quantity = 1
		}
	}
	return list.Items, nil
}
