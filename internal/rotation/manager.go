// Package rotation orchestrates due-time computation, provider dispatch,
// vault update, and history recording for secret rotation (spec §4.6).
package rotation

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
	"github.com/CourageToGroww/secret-keeper/internal/rotation/providers"
	"github.com/CourageToGroww/secret-keeper/internal/vault"
)

// VaultStore is the slice of *vault.Vault the manager needs. Matching it
// as an interface (rather than depending on *vault.Vault directly) keeps
// the manager testable with a fake store and avoids a hard dependency
// from rotation onto the concrete sqlite-backed implementation.
type VaultStore interface {
	GetSecret(name string) (string, error)
	AddSecret(name, value string, opts vault.AddOptions) error
	SetRotationConfig(cfg vault.RotationConfig) error
	GetRotationConfig(secret string) (vault.RotationConfig, bool, error)
	DeleteRotationConfig(secret string) error
	ListRotationConfigs() ([]vault.RotationConfig, error)
	DueRotations(now time.Time) ([]vault.RotationConfig, error)
	AppendRotationHistory(e vault.RotationHistoryEntry) error
	ListRotationHistory(secret string) ([]vault.RotationHistoryEntry, error)
}

// ProviderDispatcher is the slice of *providers.Registry the manager
// needs.
type ProviderDispatcher interface {
	Get(tag string) (providers.Provider, error)
	Rotate(ctx context.Context, tag string, config providers.Config, currentValue string, resolve providers.SecretResolver) (string, error)
	Tags() []string
}

// configureInput is validated before a rotation schedule is written; the
// struct tags are the entirety of the config validation rule (spec §4.6:
// "schedule >= 1 day, non-empty provider tag").
type configureInput struct {
	Secret       string `validate:"required"`
	Provider     string `validate:"required"`
	ScheduleDays int    `validate:"required,min=1"`
}

var validate = validator.New()

// Manager is the rotation engine's orchestration layer. now is
// overridable in tests; it defaults to time.Now.
type Manager struct {
	store      VaultStore
	registry   ProviderDispatcher
	now        func() time.Time
	inFlight   singleflight.Group
}

func NewManager(store VaultStore, registry ProviderDispatcher) *Manager {
	return &Manager{store: store, registry: registry, now: time.Now}
}

// Configure validates the provider config, computes next_rotation = now +
// days, and writes the row (spec §4.6).
func (m *Manager) Configure(secret, tag string, days int, config providers.Config) error {
	if err := validate.Struct(configureInput{Secret: secret, Provider: tag, ScheduleDays: days}); err != nil {
		return dserrors.RotationError{Secret: secret, Provider: tag, Message: "invalid rotation config", Err: err}
	}

	provider, err := m.registry.Get(tag)
	if err != nil {
		return err
	}
	if !provider.ValidateConfig(config) {
		return dserrors.RotationError{Secret: secret, Provider: tag, Message: "provider rejected configuration"}
	}

	blob, err := yaml.Marshal(config)
	if err != nil {
		return dserrors.RotationError{Secret: secret, Provider: tag, Message: "serialize provider config", Err: err}
	}

	next := m.now().AddDate(0, 0, days)
	return m.store.SetRotationConfig(vault.RotationConfig{
		Secret:       secret,
		Provider:     tag,
		ScheduleDays: days,
		NextRotation: &next,
		Enabled:      true,
		ConfigBlob:   string(blob),
	})
}

// Enable flips a configured rotation's enabled flag on.
func (m *Manager) Enable(secret string) error {
	return m.setEnabled(secret, true)
}

// Disable flips a configured rotation's enabled flag off.
func (m *Manager) Disable(secret string) error {
	return m.setEnabled(secret, false)
}

func (m *Manager) setEnabled(secret string, enabled bool) error {
	cfg, ok, err := m.store.GetRotationConfig(secret)
	if err != nil {
		return err
	}
	if !ok {
		return dserrors.RotationError{Secret: secret, Message: "no rotation configured for this secret"}
	}
	cfg.Enabled = enabled
	return m.store.SetRotationConfig(cfg)
}

// Delete removes a secret's rotation schedule.
func (m *Manager) Delete(secret string) error {
	return m.store.DeleteRotationConfig(secret)
}

// Get returns a secret's rotation schedule.
func (m *Manager) Get(secret string) (vault.RotationConfig, bool, error) {
	return m.store.GetRotationConfig(secret)
}

// List returns every configured rotation schedule.
func (m *Manager) List() ([]vault.RotationConfig, error) {
	return m.store.ListRotationConfigs()
}

func (m *Manager) resolver() providers.SecretResolver {
	return func(name string) (string, error) {
		return m.store.GetSecret(name)
	}
}

func decodeConfigBlob(blob string) (providers.Config, error) {
	config := providers.Config{}
	if blob == "" {
		return config, nil
	}
	if err := yaml.Unmarshal([]byte(blob), &config); err != nil {
		return nil, err
	}
	return config, nil
}

// RotateNow is the hot path (spec §4.6): read the current value, invoke
// the provider, and on success write the new value back, update
// last_rotated/next_rotation, and append a success history row. A
// provider failure is caught, recorded as a failed history row, and
// returned — the old value is left intact. Concurrent RotateNow calls for
// the same secret collapse into one in-flight provider invocation.
func (m *Manager) RotateNow(ctx context.Context, secret string) (string, error) {
	result, err, _ := m.inFlight.Do(secret, func() (interface{}, error) {
		return m.rotateNow(ctx, secret)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *Manager) rotateNow(ctx context.Context, secret string) (string, error) {
	cfg, ok, err := m.store.GetRotationConfig(secret)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", dserrors.RotationError{Secret: secret, Message: "no rotation configured for this secret"}
	}

	config, err := decodeConfigBlob(cfg.ConfigBlob)
	if err != nil {
		return "", dserrors.RotationError{Secret: secret, Provider: cfg.Provider, Message: "decode provider config", Err: err}
	}

	currentValue, err := m.store.GetSecret(secret)
	if err != nil {
		return "", err
	}

	newValue, rotateErr := m.registry.Rotate(ctx, cfg.Provider, config, currentValue, m.resolver())
	if rotateErr != nil {
		_ = m.store.AppendRotationHistory(vault.RotationHistoryEntry{
			Secret:    secret,
			Timestamp: m.now(),
			Status:    "failed",
			Provider:  cfg.Provider,
			Error:     rotateErr.Error(),
		})
		return "", dserrors.RotationError{Secret: secret, Provider: cfg.Provider, Message: "provider rotation failed", Err: rotateErr}
	}

	if err := m.store.AddSecret(secret, newValue, vault.AddOptions{}); err != nil {
		return "", err
	}

	now := m.now()
	cfg.LastRotated = &now
	if err := m.store.SetRotationConfig(cfg); err != nil {
		return "", err
	}

	if err := m.store.AppendRotationHistory(vault.RotationHistoryEntry{
		Secret:    secret,
		Timestamp: now,
		Status:    "success",
		Provider:  cfg.Provider,
	}); err != nil {
		return "", err
	}

	return newValue, nil
}

// Test dry-runs a rotation via the provider's TestRotate, mutating
// nothing.
func (m *Manager) Test(secret string) (bool, error) {
	cfg, ok, err := m.store.GetRotationConfig(secret)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, dserrors.RotationError{Secret: secret, Message: "no rotation configured for this secret"}
	}

	config, err := decodeConfigBlob(cfg.ConfigBlob)
	if err != nil {
		return false, dserrors.RotationError{Secret: secret, Provider: cfg.Provider, Message: "decode provider config", Err: err}
	}

	currentValue, err := m.store.GetSecret(secret)
	if err != nil {
		return false, err
	}

	provider, err := m.registry.Get(cfg.Provider)
	if err != nil {
		return false, err
	}
	return provider.TestRotate(context.Background(), config, currentValue, m.resolver()), nil
}

// DueNow returns every enabled rotation config that is due (spec §8
// invariant 9), ordered ascending by next_rotation.
func (m *Manager) DueNow() ([]vault.RotationConfig, error) {
	return m.store.DueRotations(m.now())
}

// RunDue rotates every due secret sequentially — never in parallel,
// because AWS-style rotations are not idempotent. A per-secret failure is
// recorded and does not stop the remaining rotations.
func (m *Manager) RunDue(ctx context.Context) []RunResult {
	due, err := m.DueNow()
	if err != nil {
		return []RunResult{{Err: err}}
	}

	results := make([]RunResult, 0, len(due))
	for _, cfg := range due {
		_, err := m.RotateNow(ctx, cfg.Secret)
		results = append(results, RunResult{Secret: cfg.Secret, Err: err})
	}
	return results
}

// RunResult is one secret's outcome from a RunDue pass.
type RunResult struct {
	Secret string
	Err    error
}
