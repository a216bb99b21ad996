package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/wanko/clingo/pkg/config"
)

// applyConfig fills options from the config file and --set overrides,
// leaving explicitly set flags untouched.
func (o *options) applyConfig(flags *pflag.FlagSet) error {
	cfg := &config.Config{Portfolio: 1, RestartBase: 64}
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if len(o.overrides) > 0 {
		overrides := map[string]interface{}{}
		for _, kv := range o.overrides {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return errors.Errorf("invalid override %q, expected key=value", kv)
			}
			overrides[parts[0]] = parts[1]
		}
		if err := cfg.Merge(overrides); err != nil {
			return err
		}
	}

	if !flags.Changed("min-int") && cfg.MinInt != nil {
		o.minInt = *cfg.MinInt
	}
	if !flags.Changed("max-int") && cfg.MaxInt != nil {
		o.maxInt = *cfg.MaxInt
	}
	if !flags.Changed("models") && cfg.Models != 0 {
		o.models = cfg.Models
	}
	if !flags.Changed("csp") {
		o.csp = cfg.Mode == "csp"
	}
	if !flags.Changed("strict") && cfg.Strict {
		o.strict = true
	}
	if !flags.Changed("seed") && cfg.Seed != 0 {
		o.seed = cfg.Seed
	}
	if !flags.Changed("restart-base") {
		o.restartBase = cfg.RestartBase
	}
	if !flags.Changed("portfolio") {
		o.portfolio = cfg.Portfolio
	}
	if !flags.Changed("metrics-addr") && cfg.MetricsAddr != "" {
		o.metricsAddr = cfg.MetricsAddr
	}
	if !flags.Changed("time-limit") && cfg.TimeLimit > 0 {
		o.timeLimit = cfg.TimeLimit
	}
	return nil
}
