package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newTestFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("min-int", -20, "")
	flags.Int("max-int", 20, "")
	flags.Int("models", 0, "")
	flags.Bool("csp", false, "")
	flags.Bool("strict", false, "")
	flags.Int64("seed", 0, "")
	flags.Int("restart-base", 64, "")
	flags.Int("portfolio", 1, "")
	flags.String("metrics-addr", "", "")
	flags.Duration("time-limit", 0, "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestApplyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
solver:
  minInt: -100
  maxInt: 100
  mode: csp
  portfolio: 2
`), 0600))

	o := &options{minInt: -20, maxInt: 20, restartBase: 64, portfolio: 1, configPath: path}
	require.NoError(t, o.applyConfig(newTestFlags(t, "--min-int=-5")))

	// the explicit flag wins, the file fills the rest
	require.Equal(t, -20, o.minInt)
	require.Equal(t, 100, o.maxInt)
	require.True(t, o.csp)
	require.Equal(t, 2, o.portfolio)
}

func TestApplyConfigOverrides(t *testing.T) {
	o := &options{minInt: -20, maxInt: 20, restartBase: 64, portfolio: 1}
	o.overrides = []string{"models=3", "strict=true"}
	require.NoError(t, o.applyConfig(newTestFlags(t)))

	require.Equal(t, 3, o.models)
	require.True(t, o.strict)

	o.overrides = []string{"models"}
	require.Error(t, o.applyConfig(newTestFlags(t)))
}
