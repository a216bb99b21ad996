// Package config loads solver settings from a YAML file. Command line flags
// take precedence over file values.
package config

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type File struct {
	Solver Config `yaml:"solver"`
}

type Config struct {
	MinInt      *int          `yaml:"minInt"`
	MaxInt      *int          `yaml:"maxInt"`
	Models      int           `yaml:"models"`
	Mode        string        `yaml:"mode"`
	Strict      bool          `yaml:"strict"`
	Seed        int64         `yaml:"seed"`
	RestartBase int           `yaml:"restartBase"`
	Portfolio   int           `yaml:"portfolio"`
	MetricsAddr string        `yaml:"metricsAddr"`
	TimeLimit   time.Duration `yaml:"timeLimit"`
}

func LoadConfig(cfgPath string) (*Config, error) {
	d, err := os.ReadFile(os.ExpandEnv(cfgPath))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", cfgPath)
	}

	var cfgFile File
	if err := yaml.Unmarshal(d, &cfgFile); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", cfgPath)
	}

	config := &cfgFile.Solver
	if config.Portfolio == 0 {
		config.Portfolio = 1
	}
	if config.RestartBase == 0 {
		config.RestartBase = 64
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Merge applies generic key/value overrides on top of the config. Values are
// decoded weakly, so strings coerce into the numeric fields.
func (c *Config) Merge(overrides map[string]interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overrides); err != nil {
		return err
	}
	return c.validate()
}

func (c *Config) validate() error {
	switch c.Mode {
	case "", "htc", "csp":
	default:
		return errors.Errorf("unknown mode %q, expected htc or csp", c.Mode)
	}
	if c.Models < 0 {
		return errors.New("models must not be negative")
	}
	if c.Portfolio < 1 {
		return errors.New("portfolio needs at least one core")
	}
	return nil
}
