package vault

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/CourageToGroww/secret-keeper/internal/crypto"
	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

// Sensitivity controls whether a secret's value is masked in listings. It
// never affects whether the value is encrypted — everything is encrypted.
type Sensitivity string

const (
	Sensitive  Sensitivity = "sensitive"
	Credential Sensitivity = "credential"
)

// AuditAction is the closed set of audit-log action tags (spec §3).
type AuditAction string

const (
	AuditVaultInitialized AuditAction = "vault initialized"
	AuditVaultUnlocked    AuditAction = "vault unlocked"
	AuditVaultLocked      AuditAction = "vault locked"
	AuditSecretAdded      AuditAction = "secret added"
	AuditSecretDeleted    AuditAction = "secret deleted"
	AuditSecretsExported  AuditAction = "secrets exported"
	AuditKeyChanged       AuditAction = "password/key changed"
)

// nameRE matches the spec's secret-name grammar: an ASCII identifier.
var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Metadata is the non-secret view of a stored entry, as returned by
// ListSecrets — it never carries the decrypted value.
type Metadata struct {
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Description string
	Tags        []string
	Sensitivity Sensitivity
}

// AddOptions carries the optional fields accepted by AddSecret.
type AddOptions struct {
	Description string
	Tags        []string
	Sensitive   *bool // nil means "default to Sensitive"
}

// RotationConfig is one secret's rotation schedule (spec §3).
type RotationConfig struct {
	Secret       string
	Provider     string
	ScheduleDays int
	LastRotated  *time.Time
	NextRotation *time.Time
	Enabled      bool
	ConfigBlob   string
}

// RotationHistoryEntry is one append-only rotation attempt record.
type RotationHistoryEntry struct {
	ID        int64
	Secret    string
	Timestamp time.Time
	Status    string // "success" | "failed"
	Provider  string
	Error     string
}

// ImportResult summarizes an ImportFromEnv call.
type ImportResult struct {
	Secrets     int
	Credentials int
	Skipped     int
}

// Vault is an open handle to an on-disk, encrypted secret store. Callers
// construct one per path; there is no process-wide registry (spec §9).
type Vault struct {
	db   *sql.DB
	path string
	key  []byte // decrypted key material, present only once unlocked
}

// Open opens (creating the file if absent) the SQLite database at path and
// applies durability pragmas, but does not create the schema or accept a
// key — call IsInitialized/Initialize/LoadKey next.
func Open(path string) (*Vault, error) {
	if err := EnsureDir(path); err != nil {
		return nil, fmt.Errorf("ensure vault dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers through one connection

	if _, err := db.Exec(pragma); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragma: %w", err)
	}

	return &Vault{db: db, path: path}, nil
}

// Close releases the underlying database handle. It does not erase the
// in-memory key; callers owning longer-lived key material are responsible
// for that (see internal/secure).
func (v *Vault) Close() error {
	return v.db.Close()
}

// Path returns the filesystem path this vault was opened from, so a
// caller that only has the *Vault (not the path it was constructed with)
// can still watch the underlying file, e.g. for external-write detection.
func (v *Vault) Path() string {
	return v.path
}

// IsInitialized reports whether the vault schema has been created and
// carries a created_at marker.
func (v *Vault) IsInitialized() (bool, error) {
	var count int
	err := v.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='vault_meta'`).Scan(&count)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	_, ok, err := getMeta(v.db, "created_at")
	return ok, err
}

// SchemaVersion reports the vault_meta "version" marker, for diagnostics
// callers that want to show it without reaching into package internals.
// Returns ("", false, nil) for a vault with no version recorded yet.
func (v *Vault) SchemaVersion() (string, bool, error) {
	return getMeta(v.db, "version")
}

// Initialize creates the schema (idempotently) and records the vault's
// creation time and schema version. It does not store the key or any
// verifier of it — an invalid key is detected only by authentication-tag
// failure on first decrypt (spec §3, §4.2).
func (v *Vault) Initialize(keyMaterial []byte) error {
	if err := migrate(v.db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	if _, ok, err := getMeta(v.db, "created_at"); err != nil {
		return err
	} else if !ok {
		if err := setMeta(v.db, "created_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	v.key = keyMaterial
	return v.appendAudit(AuditVaultInitialized, "", "")
}

// LoadKey unlocks an already-initialized vault with key material. It also
// lazily applies any pending schema migration (spec §4.2: "MUST tolerate
// opening a vault one schema version behind").
func (v *Vault) LoadKey(keyMaterial []byte) error {
	initialized, err := v.IsInitialized()
	if err != nil {
		return err
	}
	if !initialized {
		return dserrors.ErrVaultNotInitialized
	}
	if err := migrate(v.db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	v.key = keyMaterial
	return v.appendAudit(AuditVaultUnlocked, "", "")
}

// Lock discards the in-memory key material, recording the lock in the
// audit trail. Subsequent operations requiring the key fail with
// ErrVaultLocked until LoadKey is called again.
func (v *Vault) Lock() error {
	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
	return v.appendAudit(AuditVaultLocked, "", "")
}

func (v *Vault) requireUnlocked() error {
	if v.key == nil {
		return dserrors.ErrVaultLocked
	}
	return nil
}

// AddSecret encrypts value and upserts it under name, creating the row on
// first use and updating it (and its updated_at) otherwise.
func (v *Vault) AddSecret(name, value string, opts AddOptions) error {
	if err := v.requireUnlocked(); err != nil {
		return err
	}
	if !nameRE.MatchString(name) {
		return dserrors.UserError{
			Message:    fmt.Sprintf("invalid secret name %q", name),
			Suggestion: "Names must match [A-Za-z_][A-Za-z0-9_]*",
		}
	}

	ciphertext, err := crypto.Encrypt([]byte(value), v.key)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}

	sensitivity := Sensitive
	if opts.Sensitive != nil && !*opts.Sensitive {
		sensitivity = Credential
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tags := strings.Join(opts.Tags, ",")

	_, err = v.db.Exec(`
		INSERT INTO secrets (name, ciphertext, created_at, updated_at, description, tags, sensitivity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at,
			description = excluded.description,
			tags = excluded.tags,
			sensitivity = excluded.sensitivity
	`, name, ciphertext, now, now, opts.Description, tags, string(sensitivity))
	if err != nil {
		return fmt.Errorf("add secret: %w", err)
	}

	return v.appendAudit(AuditSecretAdded, name, "")
}

// GetSecret returns the decrypted value of name.
func (v *Vault) GetSecret(name string) (string, error) {
	if err := v.requireUnlocked(); err != nil {
		return "", err
	}

	var ciphertext string
	err := v.db.QueryRow(`SELECT ciphertext FROM secrets WHERE name = ?`, name).Scan(&ciphertext)
	if err == sql.ErrNoRows {
		return "", dserrors.ErrSecretNotFound
	}
	if err != nil {
		return "", err
	}

	plaintext, err := crypto.Decrypt(ciphertext, v.key)
	if err != nil {
		return "", dserrors.ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GetAllSecrets decrypts and returns every stored secret, keyed by name.
// Used only by the daemon to build its in-memory secret map — never by a
// listing surface.
func (v *Vault) GetAllSecrets() (map[string]string, error) {
	if err := v.requireUnlocked(); err != nil {
		return nil, err
	}

	rows, err := v.db.Query(`SELECT name, ciphertext FROM secrets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, ciphertext string
		if err := rows.Scan(&name, &ciphertext); err != nil {
			return nil, err
		}
		plaintext, err := crypto.Decrypt(ciphertext, v.key)
		if err != nil {
			return nil, dserrors.ErrDecryptionFailed
		}
		out[name] = string(plaintext)
	}
	return out, rows.Err()
}

// ListSecrets returns metadata for every stored secret. It never decrypts
// a value (spec §8 invariant 6: "list never returns values").
func (v *Vault) ListSecrets() ([]Metadata, error) {
	rows, err := v.db.Query(`
		SELECT name, created_at, updated_at, description, tags, sensitivity
		FROM secrets ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var (
			name, createdAt, updatedAt, sensitivity string
			description, tags                       sql.NullString
		)
		if err := rows.Scan(&name, &createdAt, &updatedAt, &description, &tags, &sensitivity); err != nil {
			return nil, err
		}
		created, _ := time.Parse(time.RFC3339, createdAt)
		updated, _ := time.Parse(time.RFC3339, updatedAt)

		var tagList []string
		if tags.Valid && tags.String != "" {
			tagList = strings.Split(tags.String, ",")
		}

		out = append(out, Metadata{
			Name:        name,
			CreatedAt:   created,
			UpdatedAt:   updated,
			Description: description.String,
			Tags:        tagList,
			Sensitivity: Sensitivity(sensitivity),
		})
	}
	return out, rows.Err()
}

// DeleteSecret removes name. Returns ErrSecretNotFound if it doesn't exist.
func (v *Vault) DeleteSecret(name string) error {
	res, err := v.db.Exec(`DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dserrors.ErrSecretNotFound
	}
	return v.appendAudit(AuditSecretDeleted, name, "")
}

// CountSecrets returns the number of stored secrets.
func (v *Vault) CountSecrets() (int, error) {
	var n int
	err := v.db.QueryRow(`SELECT count(*) FROM secrets`).Scan(&n)
	return n, err
}

// ChangeMasterKey re-encrypts every secret under newKey within a single
// transaction: if any row fails to decrypt under oldKey or re-encrypt
// under newKey, the whole transaction rolls back and oldKey remains
// authoritative (spec §8 invariant 7).
func (v *Vault) ChangeMasterKey(oldKey, newKey []byte) error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.Query(`SELECT name, ciphertext FROM secrets`)
	if err != nil {
		return err
	}

	type row struct{ name, ciphertext string }
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.name, &r.ciphertext); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range all {
		plaintext, err := crypto.Decrypt(r.ciphertext, oldKey)
		if err != nil {
			return dserrors.ErrDecryptionFailed
		}
		reencrypted, err := crypto.Encrypt(plaintext, newKey)
		if err != nil {
			return fmt.Errorf("re-encrypt %s: %w", r.name, err)
		}
		if _, err := tx.Exec(`UPDATE secrets SET ciphertext = ? WHERE name = ?`, reencrypted, r.name); err != nil {
			return fmt.Errorf("update %s: %w", r.name, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO audit_log (timestamp, action, secret, detail) VALUES (?, ?, '', '')
	`, time.Now().UTC().Format(time.RFC3339), string(AuditKeyChanged)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	v.key = newKey
	return nil
}

// sensitiveTokens classifies an env-var name as carrying a secret value
// (spec §4.2).
var sensitiveTokens = []string{
	"SECRET", "KEY", "TOKEN", "PASSWORD", "PASS", "PWD", "CREDENTIAL",
	"PRIVATE", "AUTH", "API_KEY", "APIKEY", "ACCESS_KEY", "ACCESSKEY",
	"CLIENT_SECRET",
}

// configTokens classifies an env-var name as plain configuration, skipped
// when ImportFromEnv is called with SecretsOnly.
var configTokens = []string{
	"URL", "HOST", "PORT", "ENDPOINT", "DOMAIN", "REGION", "ZONE", "ENV",
	"MODE", "DEBUG", "LOG", "TIMEOUT", "USERNAME", "USER", "EMAIL", "ID",
	"PROJECT", "BUCKET", "DATABASE", "DB_NAME", "TABLE",
}

func containsAnyToken(name string, tokens []string) bool {
	upper := strings.ToUpper(name)
	for _, tok := range tokens {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}

// ImportFromEnv parses .env-style content and stores each KEY=VALUE pair
// as a secret, classifying sensitivity by name. When secretsOnly is true,
// config-looking names are skipped entirely rather than stored (spec
// §4.2).
func (v *Vault) ImportFromEnv(content string, secretsOnly bool) (ImportResult, error) {
	var result ImportResult

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		idx := strings.IndexByte(trimmed, '=')
		if idx < 0 {
			result.Skipped++
			continue
		}

		name := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		value = unquote(value)

		if !nameRE.MatchString(name) {
			result.Skipped++
			continue
		}

		isSensitive := containsAnyToken(name, sensitiveTokens)
		if secretsOnly && !isSensitive && containsAnyToken(name, configTokens) {
			result.Skipped++
			continue
		}

		sensitive := isSensitive
		if err := v.AddSecret(name, value, AddOptions{Sensitive: &sensitive}); err != nil {
			return result, fmt.Errorf("import %s: %w", name, err)
		}

		if isSensitive {
			result.Secrets++
		} else {
			result.Credentials++
		}
	}

	return result, nil
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}

func (v *Vault) appendAudit(action AuditAction, secret, detail string) error {
	_, err := v.db.Exec(`
		INSERT INTO audit_log (timestamp, action, secret, detail) VALUES (?, ?, ?, ?)
	`, time.Now().UTC().Format(time.RFC3339), string(action), secret, detail)
	return err
}

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	Action    AuditAction
	Secret    string
	Detail    string
}

// ListAudit returns every audit row, oldest first. The core never mutates
// or deletes these (spec §8 invariant 8).
func (v *Vault) ListAudit() ([]AuditEntry, error) {
	rows, err := v.db.Query(`SELECT id, timestamp, action, secret, detail FROM audit_log ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                 AuditEntry
			ts, action        string
			secret, detail    sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &action, &secret, &detail); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.Action = AuditAction(action)
		e.Secret = secret.String
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetRotationConfig upserts the rotation schedule for a secret, computing
// next_rotation = last_rotated + schedule_days whenever last_rotated is
// non-null. When last_rotated is null (a fresh configure, never yet
// rotated), cfg.NextRotation is honored as given so the caller can seed
// next_rotation = now + schedule_days.
func (v *Vault) SetRotationConfig(cfg RotationConfig) error {
	var lastRotated, nextRotation sql.NullString
	if cfg.LastRotated != nil {
		lastRotated = sql.NullString{String: cfg.LastRotated.UTC().Format(time.RFC3339), Valid: true}
		next := cfg.LastRotated.AddDate(0, 0, cfg.ScheduleDays)
		nextRotation = sql.NullString{String: next.UTC().Format(time.RFC3339), Valid: true}
	} else if cfg.NextRotation != nil {
		nextRotation = sql.NullString{String: cfg.NextRotation.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := v.db.Exec(`
		INSERT INTO rotation_config (secret, provider, schedule_days, last_rotated, next_rotation, enabled, config_blob)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(secret) DO UPDATE SET
			provider = excluded.provider,
			schedule_days = excluded.schedule_days,
			last_rotated = excluded.last_rotated,
			next_rotation = excluded.next_rotation,
			enabled = excluded.enabled,
			config_blob = excluded.config_blob
	`, cfg.Secret, cfg.Provider, cfg.ScheduleDays, lastRotated, nextRotation, boolToInt(cfg.Enabled), cfg.ConfigBlob)
	return err
}

// GetRotationConfig returns the rotation schedule for a secret, if any.
func (v *Vault) GetRotationConfig(secret string) (RotationConfig, bool, error) {
	row := v.db.QueryRow(`
		SELECT secret, provider, schedule_days, last_rotated, next_rotation, enabled, config_blob
		FROM rotation_config WHERE secret = ?
	`, secret)
	cfg, err := scanRotationConfig(row)
	if err == sql.ErrNoRows {
		return RotationConfig{}, false, nil
	}
	if err != nil {
		return RotationConfig{}, false, err
	}
	return cfg, true, nil
}

// DeleteRotationConfig removes a secret's rotation schedule.
func (v *Vault) DeleteRotationConfig(secret string) error {
	_, err := v.db.Exec(`DELETE FROM rotation_config WHERE secret = ?`, secret)
	return err
}

// ListRotationConfigs returns every configured rotation schedule.
func (v *Vault) ListRotationConfigs() ([]RotationConfig, error) {
	rows, err := v.db.Query(`
		SELECT secret, provider, schedule_days, last_rotated, next_rotation, enabled, config_blob
		FROM rotation_config ORDER BY secret
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RotationConfig
	for rows.Next() {
		cfg, err := scanRotationConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// DueRotations returns every enabled rotation config whose next_rotation
// is null or at-or-before now, ordered ascending by next_rotation (spec
// §4.6, §8 invariant 9) so the scheduler rotates the most overdue secrets
// first. A nil next_rotation sorts first, ahead of any timestamp, since
// it denotes a schedule that has never run and is due regardless of now.
func (v *Vault) DueRotations(now time.Time) ([]RotationConfig, error) {
	all, err := v.ListRotationConfigs()
	if err != nil {
		return nil, err
	}

	var due []RotationConfig
	for _, cfg := range all {
		if !cfg.Enabled {
			continue
		}
		if cfg.NextRotation == nil || !cfg.NextRotation.After(now) {
			due = append(due, cfg)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].NextRotation, due[j].NextRotation
		switch {
		case a == nil && b == nil:
			return due[i].Secret < due[j].Secret
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return due[i].Secret < due[j].Secret
		}
	})
	return due, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRotationConfig(s scanner) (RotationConfig, error) {
	var (
		cfg                       RotationConfig
		lastRotated, nextRotation sql.NullString
		enabled                   int
		configBlob                sql.NullString
	)
	if err := s.Scan(&cfg.Secret, &cfg.Provider, &cfg.ScheduleDays, &lastRotated, &nextRotation, &enabled, &configBlob); err != nil {
		return RotationConfig{}, err
	}
	if lastRotated.Valid {
		t, _ := time.Parse(time.RFC3339, lastRotated.String)
		cfg.LastRotated = &t
	}
	if nextRotation.Valid {
		t, _ := time.Parse(time.RFC3339, nextRotation.String)
		cfg.NextRotation = &t
	}
	cfg.Enabled = enabled != 0
	cfg.ConfigBlob = configBlob.String
	return cfg, nil
}

// AppendRotationHistory records one rotation attempt, success or failure.
// Append-only: never updated or deleted by the core (spec §8 invariant 8).
func (v *Vault) AppendRotationHistory(e RotationHistoryEntry) error {
	_, err := v.db.Exec(`
		INSERT INTO rotation_history (secret, timestamp, status, provider, error)
		VALUES (?, ?, ?, ?, ?)
	`, e.Secret, e.Timestamp.UTC().Format(time.RFC3339), e.Status, e.Provider, e.Error)
	return err
}

// ListRotationHistory returns every rotation-history row for a secret,
// newest first.
func (v *Vault) ListRotationHistory(secret string) ([]RotationHistoryEntry, error) {
	rows, err := v.db.Query(`
		SELECT id, secret, timestamp, status, provider, error
		FROM rotation_history WHERE secret = ? ORDER BY id DESC
	`, secret)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RotationHistoryEntry
	for rows.Next() {
		var (
			e         RotationHistoryEntry
			ts        string
			errColumn sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Secret, &ts, &e.Status, &e.Provider, &errColumn); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.Error = errColumn.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
