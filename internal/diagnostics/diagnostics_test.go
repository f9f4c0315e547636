package diagnostics_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CourageToGroww/secret-keeper/internal/daemon"
	"github.com/CourageToGroww/secret-keeper/internal/diagnostics"
	"github.com/CourageToGroww/secret-keeper/internal/vault"
)

func TestRunReportsErrorsForMissingVaultAndDaemon(t *testing.T) {
	vaultPath := filepath.Join(t.TempDir(), "missing", "vault.db")
	socketPath := filepath.Join(t.TempDir(), "no.sock")

	report := diagnostics.Run(vaultPath, socketPath)
	assert.False(t, report.Healthy())

	byName := map[string]diagnostics.Check{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	assert.Equal(t, diagnostics.StatusError, byName["vault reachable"].Status)
	assert.Equal(t, diagnostics.StatusError, byName["daemon socket"].Status)
}

func TestRunReportsHealthyForAnInitializedVaultAndRunningDaemon(t *testing.T) {
	vaultPath := filepath.Join(t.TempDir(), "vault.db")
	v, err := vault.Open(vaultPath)
	require.NoError(t, err)
	require.NoError(t, v.Initialize([]byte("test-master-key")))
	require.NoError(t, v.AddSecret("NAME", "world", vault.AddOptions{}))
	require.NoError(t, v.Close())

	v2, err := vault.Open(vaultPath)
	require.NoError(t, err)
	require.NoError(t, v2.LoadKey([]byte("test-master-key")))

	socketPath := filepath.Join(t.TempDir(), "sk.sock")
	srv, err := daemon.New(v2, socketPath, nil, 0, "", nil, nil)
	require.NoError(t, err)
	go func() { _ = srv.Start(context.Background()) }()
	t.Cleanup(srv.Shutdown)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			conn.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	report := diagnostics.Run(vaultPath, socketPath)
	assert.True(t, report.Healthy())

	byName := map[string]diagnostics.Check{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	assert.Equal(t, diagnostics.StatusHealthy, byName["vault reachable"].Status)
	assert.Equal(t, diagnostics.StatusHealthy, byName["schema version"].Status)
	assert.Equal(t, "1 secrets stored", byName["secret count"].Message)
	assert.Equal(t, diagnostics.StatusHealthy, byName["daemon socket"].Status)
	assert.Equal(t, "no-scheduler", byName["rotation scheduler"].Message)
}
