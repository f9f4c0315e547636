package daemon

import (
	"os"
	"path/filepath"

	"github.com/CourageToGroww/secret-keeper/internal/fingerprint"
)

// SocketDirPerm and SocketFilePerm are the filesystem modes spec §4.7/§6
// require for the shared socket directory and each socket file.
const (
	SocketDirPerm  = 0o700
	SocketFilePerm = 0o600
)

// SocketDir returns the shared socket directory, honoring an
// XDG_DATA_HOME-style override (spec's expanded configuration section) and
// falling back to /tmp/<app>.
func SocketDir(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(os.TempDir(), "secret-keeper")
}

// GlobalSocketPath is the well-known socket name for the global daemon.
func GlobalSocketPath(socketDir string) string {
	return filepath.Join(socketDir, "sk.sock")
}

// ProjectSocketPath is the project-scoped socket name, derived from the
// 8-hex-digit fingerprint of the project's absolute path.
func ProjectSocketPath(socketDir, projectAbsPath string) string {
	return filepath.Join(socketDir, "project-"+fingerprint.Project(projectAbsPath)+".sock")
}

// EnsureSocketDir creates the socket directory with owner-only
// permissions if it does not already exist.
func EnsureSocketDir(socketDir string) error {
	return os.MkdirAll(socketDir, SocketDirPerm)
}

// RemoveStaleSocket unlinks a leftover socket file from a previous,
// presumably crashed, daemon instance. A missing file is not an error.
func RemoveStaleSocket(socketPath string) error {
	err := os.Remove(socketPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RotationLogPath is the append-only rotation log file under the socket
// directory (spec §6).
func RotationLogPath(socketDir string) string {
	return filepath.Join(socketDir, "rotation.log")
}

// DaemonLogPath is the daemon's own stdout/stderr log when detached
// (spec §6).
func DaemonLogPath(socketDir string) string {
	return filepath.Join(socketDir, "daemon.log")
}
