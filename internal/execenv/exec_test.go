package execenv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CourageToGroww/secret-keeper/internal/execenv"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	t.Parallel()

	result, err := execenv.Run(context.Background(), execenv.Options{
		Command: "echo hello",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.False(t, result.TimedOut)
}

func TestRunReportsNonZeroExitCode(t *testing.T) {
	t.Parallel()

	result, err := execenv.Run(context.Background(), execenv.Options{
		Command: "exit 7",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestRunMergesAndOverridesEnv(t *testing.T) {
	t.Parallel()

	result, err := execenv.Run(context.Background(), execenv.Options{
		Command: "echo $NAME $HOME",
		Env:     map[string]string{"NAME": "world", "HOME": "overridden"},
	})
	require.NoError(t, err)
	assert.Equal(t, "world overridden\n", result.Stdout)
}

func TestRunCapturesStderr(t *testing.T) {
	t.Parallel()

	result, err := execenv.Run(context.Background(), execenv.Options{
		Command: "echo oops 1>&2",
	})
	require.NoError(t, err)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestRunRespectsWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	result, err := execenv.Run(context.Background(), execenv.Options{
		Command: "pwd",
		Dir:     dir,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, dir)
}

func TestRunKillsOnTimeout(t *testing.T) {
	t.Parallel()

	result, err := execenv.Run(context.Background(), execenv.Options{
		Command: "sleep 5",
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, 1, result.ExitCode)
}
