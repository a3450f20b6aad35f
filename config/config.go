package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ucplan/core/factory"
	"github.com/kilianp07/ucplan/core/metrics"
	"github.com/kilianp07/ucplan/core/runlog"
	"github.com/kilianp07/ucplan/infra/monitoring"
	"github.com/kilianp07/ucplan/infra/mqtt"
	"github.com/kilianp07/ucplan/infra/solver"
	"github.com/kilianp07/ucplan/scenario"
)

// EnvPrefix prefixes environment overrides. UC_SOLVER__CONF__MAX_NODES=500
// sets solver.conf.max_nodes.
const EnvPrefix = "UC_"

type Config struct {
	Solver    factory.ModuleConfig    `json:"solver"`
	Planner   PlannerConfig           `json:"planner"`
	Metrics   metrics.Config          `json:"metrics"`
	RunLog    runlog.Config           `json:"runlog"`
	MQTT      mqtt.Config             `json:"mqtt"`
	API       APIConfig               `json:"api"`
	Generator scenario.Config         `json:"generator"`
	Logging   LoggingConfig           `json:"logging"`
	Sentry    monitoring.SentryConfig `json:"sentry"`
}

// Default returns a configuration with every section defaulted, used when no
// file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	if c.Solver.Type == "" {
		c.Solver.Type = solver.Name
	}
	c.Planner.SetDefaults()
	c.RunLog.SetDefaults()
	c.MQTT.SetDefaults()
	c.API.SetDefaults()
	c.Generator.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		section string
		fn      func() error
	}{
		{"planner", c.Planner.Validate},
		{"runlog", c.RunLog.Validate},
		{"mqtt", c.MQTT.Validate},
		{"api", c.API.Validate},
		{"generator", c.Generator.Validate},
		{"logging", c.Logging.Validate},
		{"sentry", c.Sentry.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.section, err)
		}
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// envKey maps UC_API__TOKEN to api.token.
func envKey(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load reads the configuration file at path, applies UC_ environment
// overrides, then defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
