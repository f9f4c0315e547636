// Package config resolves the daemon's runtime settings by layering
// explicit cobra flags over environment variables over built-in
// defaults. There is no dsops.yaml-style definition file in this
// project — the vault itself is the configuration store for secrets and
// their rotation schedules (spec §9); this package only resolves the
// handful of settings needed before the vault can even be opened (which
// project, which socket directory, which key source, how often to check
// for due rotations).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/CourageToGroww/secret-keeper/internal/rotation"
)

// Environment variable names, each the non-interactive equivalent of a
// cobra flag of the same purpose (spec §6 pattern: flags win when set,
// env vars are the scriptable fallback).
const (
	EnvProject    = "SECRET_KEEPER_PROJECT"
	EnvForceLocal = "SECRET_KEEPER_FORCE_LOCAL"
	EnvSocketDir  = "SECRET_KEEPER_SOCKET_DIR"
	EnvKeyfile    = "SECRET_KEEPER_KEYFILE"
	EnvTick       = "SECRET_KEEPER_TICK"
)

// Config is the daemon's resolved runtime settings.
type Config struct {
	Project    string
	ForceLocal bool
	SocketDir  string
	Keyfile    string
	Tick       time.Duration
}

// FromCommand resolves a Config for cmd: built-in defaults, overridden by
// whichever of the above environment variables is set, overridden in
// turn by any flag the caller actually passed (cmd.Flags().Changed) — an
// unset flag's zero value never shadows an env var that was set.
func FromCommand(cmd *cobra.Command) Config {
	cfg := Config{Tick: rotation.DefaultTick}

	cfg.Project = os.Getenv(EnvProject)
	cfg.ForceLocal = envBool(EnvForceLocal, false)
	cfg.SocketDir = os.Getenv(EnvSocketDir)
	cfg.Keyfile = os.Getenv(EnvKeyfile)
	if d, ok := envDuration(EnvTick); ok {
		cfg.Tick = d
	}

	flags := cmd.Flags()
	if flags.Changed("project") {
		if v, err := flags.GetString("project"); err == nil {
			cfg.Project = v
		}
	}
	if flags.Changed("force-local") {
		if v, err := flags.GetBool("force-local"); err == nil {
			cfg.ForceLocal = v
		}
	}
	if flags.Changed("socket-dir") {
		if v, err := flags.GetString("socket-dir"); err == nil {
			cfg.SocketDir = v
		}
	}
	if flags.Changed("keyfile") {
		if v, err := flags.GetString("keyfile"); err == nil {
			cfg.Keyfile = v
		}
	}
	if flags.Changed("tick") {
		if v, err := flags.GetDuration("tick"); err == nil {
			cfg.Tick = v
		}
	}

	return cfg
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(name string) (time.Duration, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
