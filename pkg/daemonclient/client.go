// Package daemonclient is the one-shot client used by any process that
// wants the running daemon to execute a command or answer a status query
// (spec §4.8). It mirrors internal/vault's project-vs-global path
// resolution (internal/vault/paths.go) but for the daemon's Unix socket
// instead of the vault file.
package daemonclient

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/CourageToGroww/secret-keeper/internal/daemon"
	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

// DefaultDialTimeout bounds how long Send waits for the daemon to
// accept the connection.
const DefaultDialTimeout = 2 * time.Second

// ResolveSocketPath picks the socket a caller should talk to, following
// the same precedence as vault.ResolvePath: an explicit projectPath or
// forceLocal pins the project-scoped socket; otherwise an existing
// project-scoped socket for the current directory wins; otherwise the
// global socket.
func ResolveSocketPath(projectPath string, forceLocal bool, socketDirOverride string) (string, error) {
	dir := daemon.SocketDir(socketDirOverride)

	if projectPath != "" || forceLocal {
		base := projectPath
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = wd
		}
		abs, err := filepath.Abs(base)
		if err != nil {
			return "", err
		}
		return daemon.ProjectSocketPath(dir, abs), nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(wd)
	if err != nil {
		return "", err
	}

	projectSocket := daemon.ProjectSocketPath(dir, abs)
	if _, err := os.Stat(projectSocket); err == nil {
		return projectSocket, nil
	}

	return daemon.GlobalSocketPath(dir), nil
}

// Client sends one request per connection to a running daemon.
type Client struct {
	SocketPath  string
	DialTimeout time.Duration
}

// New builds a Client targeting socketPath.
func New(socketPath string) *Client {
	return &Client{SocketPath: socketPath, DialTimeout: DefaultDialTimeout}
}

// Send dials the socket, writes req as JSON, half-closes the write side,
// and reads until either a complete JSON response arrives or the daemon
// closes the connection. Partial data on close without a complete object
// is reported as an error (spec §4.8). An absent socket or a refused
// connection is reported as dserrors.ErrDaemonNotRunning.
func (c *Client) Send(req daemon.Request) (daemon.Response, error) {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	conn, err := net.DialTimeout("unix", c.SocketPath, timeout)
	if err != nil {
		// An absent socket file and a refused connection (stale socket
		// from a dead daemon) both mean the same thing to a caller: there
		// is nobody listening.
		return daemon.Response{}, dserrors.ErrDaemonNotRunning
	}
	defer conn.Close()

	blob, err := json.Marshal(req)
	if err != nil {
		return daemon.Response{}, err
	}
	if _, err := conn.Write(blob); err != nil {
		return daemon.Response{}, err
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return daemon.Response{}, err
		}
	}

	var resp daemon.Response
	dec := json.NewDecoder(io.LimitReader(conn, daemon.MaxMessageSize+1))
	if err := dec.Decode(&resp); err != nil {
		return daemon.Response{}, errors.New("daemon closed connection without a complete response")
	}
	return resp, nil
}

// Ping is a convenience wrapper around Send for the "ping" action.
func (c *Client) Ping() (daemon.Response, error) {
	return c.Send(daemon.Request{Action: daemon.ActionPing})
}

// List is a convenience wrapper around Send for the "list" action.
func (c *Client) List() (daemon.Response, error) {
	return c.Send(daemon.Request{Action: daemon.ActionList})
}

// Status is a convenience wrapper around Send for the "status" action.
func (c *Client) Status() (daemon.Response, error) {
	return c.Send(daemon.Request{Action: daemon.ActionStatus})
}

// Exec is a convenience wrapper around Send for the "exec" action.
func (c *Client) Exec(command, cwd string, timeoutSeconds int) (daemon.Response, error) {
	return c.Send(daemon.Request{
		Action:  daemon.ActionExec,
		Command: command,
		Cwd:     cwd,
		Timeout: timeoutSeconds,
	})
}

// Shutdown is a convenience wrapper around Send for the "shutdown" action.
func (c *Client) Shutdown() (daemon.Response, error) {
	return c.Send(daemon.Request{Action: daemon.ActionShutdown})
}
