// Package diagnostics is a read-only health-check library: a doctor-style
// report covering the vault, the daemon socket, and the rotation
// scheduler, with no CLI surface of its own.
//
// Grounded in the teacher's cmd/dsops/commands/doctor.go ProviderHealth
// table (Name/Status/Message/Suggestions per checked component),
// reimplemented as a library function since this project's CLI is out of
// scope — a caller (a cobra command, a test, anything) renders the
// Report however it likes.
package diagnostics

import (
	"fmt"
	"os"

	"github.com/CourageToGroww/secret-keeper/internal/errors"
	"github.com/CourageToGroww/secret-keeper/internal/vault"
	"github.com/CourageToGroww/secret-keeper/pkg/daemonclient"
)

// Status is one check's outcome.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusError   Status = "error"
)

// Check is one component's health, mirroring the teacher's ProviderHealth
// shape (name, status, message, optional suggestions).
type Check struct {
	Name        string
	Status      Status
	Message     string
	Suggestions []string
}

// Report is the full doctor-style result.
type Report struct {
	Checks []Check
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Run performs every check against the vault at vaultPath and the daemon
// listening at socketPath (either may be unreachable; each check reports
// its own failure independently of the others).
func Run(vaultPath, socketPath string) Report {
	var checks []Check
	checks = append(checks, checkVault(vaultPath)...)
	checks = append(checks, checkDaemon(socketPath)...)
	return Report{Checks: checks}
}

func checkVault(vaultPath string) []Check {
	if _, err := os.Stat(vaultPath); err != nil {
		return []Check{{
			Name:        "vault reachable",
			Status:      StatusError,
			Message:     err.Error(),
			Suggestions: []string{"Run the init flow to create a vault at this path"},
		}}
	}

	v, err := vault.Open(vaultPath)
	if err != nil {
		return []Check{{
			Name:        "vault reachable",
			Status:      StatusError,
			Message:     err.Error(),
			Suggestions: []string{"Check that the vault directory is readable and not locked by another process"},
		}}
	}
	defer v.Close()

	initialized, err := v.IsInitialized()
	if err != nil {
		return []Check{{Name: "vault reachable", Status: StatusError, Message: err.Error()}}
	}
	if !initialized {
		return []Check{{
			Name:        "vault reachable",
			Status:      StatusError,
			Message:     errors.ErrVaultNotInitialized.Error(),
			Suggestions: []string{"Run the init flow to create a vault at this path"},
		}}
	}

	checks := []Check{{Name: "vault reachable", Status: StatusHealthy, Message: "vault file opens and schema is present"}}

	version, ok, err := v.SchemaVersion()
	switch {
	case err != nil:
		checks = append(checks, Check{Name: "schema version", Status: StatusError, Message: err.Error()})
	case !ok:
		checks = append(checks, Check{Name: "schema version", Status: StatusError, Message: "no version marker recorded"})
	default:
		checks = append(checks, Check{Name: "schema version", Status: StatusHealthy, Message: version})
	}

	count, err := v.CountSecrets()
	if err != nil {
		checks = append(checks, Check{Name: "secret count", Status: StatusError, Message: err.Error()})
	} else {
		checks = append(checks, Check{Name: "secret count", Status: StatusHealthy, Message: fmt.Sprintf("%d secrets stored", count)})
	}

	return checks
}

func checkDaemon(socketPath string) []Check {
	client := daemonclient.New(socketPath)

	resp, err := client.Status()
	if err != nil {
		return []Check{{
			Name:        "daemon socket",
			Status:      StatusError,
			Message:     err.Error(),
			Suggestions: []string{"Start the daemon for this project before running commands through it"},
		}}
	}

	checks := []Check{
		{Name: "daemon socket", Status: StatusHealthy, Message: "daemon responded to status request"},
		{Name: "secrets loaded", Status: StatusHealthy, Message: fmt.Sprintf("%d secrets loaded", resp.SecretsLoaded)},
	}

	if resp.SchedulerState != "" {
		checks = append(checks, Check{Name: "rotation scheduler", Status: StatusHealthy, Message: resp.SchedulerState})
	}

	return checks
}
