package config_test

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CourageToGroww/secret-keeper/internal/config"
	"github.com/CourageToGroww/secret-keeper/internal/rotation"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("project", "", "")
	cmd.Flags().Bool("force-local", false, "")
	cmd.Flags().String("socket-dir", "", "")
	cmd.Flags().String("keyfile", "", "")
	cmd.Flags().Duration("tick", rotation.DefaultTick, "")
	return cmd
}

func TestFromCommandDefaultsWhenNothingSet(t *testing.T) {
	cmd := newTestCommand()

	cfg := config.FromCommand(cmd)
	assert.Equal(t, "", cfg.Project)
	assert.False(t, cfg.ForceLocal)
	assert.Equal(t, rotation.DefaultTick, cfg.Tick)
}

func TestFromCommandPrefersEnvOverDefault(t *testing.T) {
	t.Setenv(config.EnvProject, "/from/env")
	t.Setenv(config.EnvTick, "2h")

	cmd := newTestCommand()
	cfg := config.FromCommand(cmd)

	assert.Equal(t, "/from/env", cfg.Project)
	assert.Equal(t, 2*time.Hour, cfg.Tick)
}

func TestFromCommandPrefersExplicitFlagOverEnv(t *testing.T) {
	t.Setenv(config.EnvProject, "/from/env")

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("project", "/from/flag"))

	cfg := config.FromCommand(cmd)
	assert.Equal(t, "/from/flag", cfg.Project)
}

func TestFromCommandIgnoresInvalidEnvBool(t *testing.T) {
	t.Setenv(config.EnvForceLocal, "not-a-bool")

	cmd := newTestCommand()
	cfg := config.FromCommand(cmd)
	assert.False(t, cfg.ForceLocal)
}
