package vault

import (
	"os"
	"path/filepath"
)

// vaultDirName is the per-project or per-home directory a vault lives
// under.
const vaultDirName = ".secret-keeper"

// vaultFileName is the SQLite file within vaultDirName.
const vaultFileName = "secrets.db"

// DirPerm is the owner-only permission applied to any vault directory
// this package creates.
const DirPerm = 0o700

// KeyfilePerm is the owner-only permission applied to any keyfile this
// package (or its callers) create.
const KeyfilePerm = 0o600

// ResolvePath implements the spec §4.2 path-resolution algorithm: if
// either projectPath or forceLocal is set, the vault lives under
// projectPath (or the current directory, if projectPath is empty);
// otherwise an existing local vault under the current working directory
// wins; otherwise the vault lives under the user's home directory.
func ResolvePath(projectPath string, forceLocal bool) (string, error) {
	if projectPath != "" || forceLocal {
		base := projectPath
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = wd
		}
		return filepath.Join(base, vaultDirName, vaultFileName), nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	localPath := filepath.Join(wd, vaultDirName, vaultFileName)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, vaultDirName, vaultFileName), nil
}

// EnsureDir creates the vault's parent directory, owner-only, if absent.
func EnsureDir(vaultPath string) error {
	return os.MkdirAll(filepath.Dir(vaultPath), DirPerm)
}
