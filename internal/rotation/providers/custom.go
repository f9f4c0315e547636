package providers

import (
	"context"
	"strings"

	"github.com/CourageToGroww/secret-keeper/internal/execenv"
)

// CustomProvider rotates a secret by shelling out to a user-configured
// rotate command (and, optionally, a validate command) — spec §4.5.
type CustomProvider struct{}

func NewCustomProvider() *CustomProvider { return &CustomProvider{} }

func (p *CustomProvider) Tag() string         { return "custom" }
func (p *CustomProvider) DisplayName() string { return "Custom command" }

// ValidateConfig requires a non-empty rotate_command.
func (p *CustomProvider) ValidateConfig(config Config) bool {
	return strings.TrimSpace(config["rotate_command"]) != ""
}

// Rotate runs rotate_command with CURRENT_SECRET_VALUE set, trims its
// stdout as the proposed new value (empty stdout aborts), then if a
// validate_command is configured runs it with SECRET_VALUE set to the
// proposal — a non-zero exit aborts the rotation.
func (p *CustomProvider) Rotate(ctx context.Context, config Config, currentValue string, _ SecretResolver) (string, error) {
	if !p.ValidateConfig(config) {
		return "", errf(p.Tag(), "rotate_command is required")
	}

	result, err := execenv.Run(ctx, execenv.Options{
		Command: config["rotate_command"],
		Env:     map[string]string{"CURRENT_SECRET_VALUE": currentValue},
	})
	if err != nil {
		return "", wrapf(p.Tag(), err, "rotate command failed to start")
	}
	if result.ExitCode != 0 {
		return "", errf(p.Tag(), "rotate command exited %d: %s", result.ExitCode, result.Stderr)
	}

	newValue := strings.TrimSpace(result.Stdout)
	if newValue == "" {
		return "", errf(p.Tag(), "rotate command produced empty output")
	}

	if validate := strings.TrimSpace(config["validate_command"]); validate != "" {
		vr, err := execenv.Run(ctx, execenv.Options{
			Command: validate,
			Env:     map[string]string{"SECRET_VALUE": newValue},
		})
		if err != nil {
			return "", wrapf(p.Tag(), err, "validate command failed to start")
		}
		if vr.ExitCode != 0 {
			return "", errf(p.Tag(), "validate command rejected new value: %s", vr.Stderr)
		}
	}

	return newValue, nil
}

// TestRotate re-runs rotate_command with DRY_RUN=1 and treats a clean
// exit as success, without touching the vault.
func (p *CustomProvider) TestRotate(ctx context.Context, config Config, currentValue string, _ SecretResolver) bool {
	if !p.ValidateConfig(config) {
		return false
	}

	result, err := execenv.Run(ctx, execenv.Options{
		Command: config["rotate_command"],
		Env: map[string]string{
			"CURRENT_SECRET_VALUE": currentValue,
			"DRY_RUN":              "1",
		},
	})
	return err == nil && result.ExitCode == 0
}
