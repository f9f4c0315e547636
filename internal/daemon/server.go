package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/CourageToGroww/secret-keeper/internal/dlog"
	"github.com/CourageToGroww/secret-keeper/internal/execenv"
	"github.com/CourageToGroww/secret-keeper/internal/metrics"
	"github.com/CourageToGroww/secret-keeper/internal/policy"
	"github.com/CourageToGroww/secret-keeper/internal/rotation"
	"github.com/CourageToGroww/secret-keeper/internal/scrub"
	"github.com/CourageToGroww/secret-keeper/internal/secure"
	"github.com/CourageToGroww/secret-keeper/internal/vault"
)

// epoch is the single mutable owner for the hot path (spec §9): the
// secret map and the scrubber built from it, swapped as one unit so no
// in-flight scrub ever mixes patterns from two reloads.
type epoch struct {
	secrets  *secure.SecretMap
	scrubber *scrub.Scrubber
}

// Server is the daemon mediator (spec §4.7). It owns no process-wide
// registry: every dependency is constructed and handed to New (spec §9
// "no global singletons").
type Server struct {
	vlt       *vault.Vault
	scheduler *rotation.Scheduler
	metrics   *metrics.Metrics
	logger    *dlog.Logger

	socketPath string
	listener   net.Listener
	watcher    *fsnotify.Watcher

	current atomic.Pointer[epoch]

	connWG   sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a Server over an already-unlocked vault, loading its current
// secret set into the first epoch. manager, if non-nil, backs a rotation
// scheduler that the server starts and stops alongside itself and whose
// results both reload the server's secret map and append to
// rotationLogPath.
func New(vlt *vault.Vault, socketPath string, manager *rotation.Manager, tick time.Duration, rotationLogPath string, m *metrics.Metrics, logger *dlog.Logger) (*Server, error) {
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		vlt:        vlt,
		metrics:    m,
		logger:     logger,
		socketPath: socketPath,
		stopped:    make(chan struct{}),
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	if manager != nil {
		rotationLogger := logger
		var rotationFile *os.File
		if rotationLogPath != "" {
			rl, f, err := dlog.OpenFile(rotationLogPath)
			if err == nil {
				rotationLogger = rl
				rotationFile = f
			}
		}
		_ = rotationFile // closed implicitly on process exit; daemon is short-lived between restarts

		s.scheduler = rotation.NewScheduler(manager, tick, func(results []rotation.RunResult) {
			s.onRotationResults(rotationLogger, results)
		})
	}

	return s, nil
}

func (s *Server) onRotationResults(logger *dlog.Logger, results []rotation.RunResult) {
	for _, r := range results {
		outcome := "success"
		if r.Err != nil {
			outcome = "failed"
		}
		s.metrics.RotationTotal.WithLabelValues(outcome).Inc()
		if logger != nil {
			ev := logger.Info("rotation_completed").Str("secret", r.Secret).Str("outcome", outcome)
			if r.Err != nil {
				ev = ev.Str("error", r.Err.Error())
			}
			ev.Send()
		}
	}

	if err := s.reload(); err != nil && logger != nil {
		logger.Error("reload_failed").Err(err).Send()
	}
}

// reload rebuilds the secret map and scrubber from the vault's current
// contents and swaps them in as one atomic unit, destroying the previous
// epoch's secret map only after the swap (spec §9: old plaintext is
// overwritten before the old map's memory is released).
func (s *Server) reload() error {
	secrets, err := s.vlt.GetAllSecrets()
	if err != nil {
		return err
	}

	next := &epoch{
		secrets:  secure.NewSecretMap(secrets),
		scrubber: scrub.New(secrets),
	}

	prev := s.current.Swap(next)
	s.metrics.SecretsLoaded.Set(float64(next.secrets.Len()))
	if prev != nil {
		prev.secrets.Destroy()
	}
	return nil
}

// Reload re-reads the vault and swaps in a fresh (secret map, scrubber)
// pair. Exported so an external caller (e.g. a CLI "reload" action) can
// force a refresh outside of the rotation callback.
func (s *Server) Reload() error {
	return s.reload()
}

// watchVaultFile watches the vault's backing file for writes made by a
// process other than this daemon (e.g. a "vault add-secret" CLI run while
// the daemon is up) and reloads the in-memory epoch when one is seen,
// rather than leaving newly added secrets invisible until the next
// rotation tick. Only the main database file is watched and only
// Write/Create events trigger a reload; the vault runs in WAL journal mode,
// so another process's write reaches that file when its WAL is
// checkpointed. The watcher is best-effort and its absence (e.g. an
// unsupported filesystem) only costs the fallback reload path.
func (s *Server) watchVaultFile() error {
	path := s.vlt.Path()
	if path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.reload(); err != nil && s.logger != nil {
					s.logger.Warn("vault_watch_reload_failed").Err(err).Send()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if s.logger != nil {
					s.logger.Warn("vault_watch_error").Err(err).Send()
				}
			case <-s.stopped:
				return
			}
		}
	}()

	return nil
}

// Start binds the socket, installs signal handlers, and serves
// connections until Shutdown is called or a terminating signal arrives.
// It blocks until the listener closes.
func (s *Server) Start(ctx context.Context) error {
	if err := EnsureSocketDir(socketDirOf(s.socketPath)); err != nil {
		return err
	}
	if err := RemoveStaleSocket(s.socketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, SocketFilePerm); err != nil {
		listener.Close()
		return err
	}
	s.listener = listener

	if s.scheduler != nil {
		s.scheduler.Start(ctx)
	}

	if err := s.watchVaultFile(); err != nil && s.logger != nil {
		s.logger.Warn("vault_watch_unavailable").Err(err).Send()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			s.Shutdown()
		case <-s.stopped:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return nil
			default:
				return err
			}
		}
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops the scheduler first, closes the listener, unlinks the
// socket file, wipes the in-memory secret map, and releases the vault
// handle (spec §4.7 lifecycle). Safe to call more than once.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopped)

		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
		if s.listener != nil {
			s.listener.Close()
		}
		s.connWG.Wait()

		_ = RemoveStaleSocket(s.socketPath)

		if ep := s.current.Swap(nil); ep != nil {
			ep.secrets.Destroy()
		}
		_ = s.vlt.Close()
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	reqID := uuid.NewString()

	limited := io.LimitReader(conn, MaxMessageSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		s.writeResponse(conn, Response{Error: "read request: " + err.Error()})
		return
	}
	if len(data) > MaxMessageSize {
		s.writeResponse(conn, Response{Error: "request exceeds maximum message size"})
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeResponse(conn, Response{Error: "invalid JSON request"})
		return
	}

	resp := s.dispatch(reqID, req)
	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	blob, err := json.Marshal(resp)
	if err != nil {
		blob, _ = json.Marshal(Response{Error: "failed to encode response"})
	}
	_, _ = conn.Write(blob)
}

func (s *Server) dispatch(reqID string, req Request) Response {
	switch req.Action {
	case ActionPing:
		ep := s.current.Load()
		return Response{Status: "ok", SecretsLoaded: ep.secrets.Len()}

	case ActionList:
		ep := s.current.Load()
		names := ep.secrets.Names()
		sort.Strings(names)
		return Response{Secrets: names}

	case ActionStatus:
		ep := s.current.Load()
		state := "no-scheduler"
		if s.scheduler != nil {
			state = s.scheduler.State().String()
		}
		return Response{Status: "ok", SecretsLoaded: ep.secrets.Len(), SchedulerState: state}

	case ActionExec:
		return s.handleExec(reqID, req)

	case ActionShutdown:
		go s.Shutdown()
		return Response{Status: "ok"}

	default:
		return Response{Error: "unknown action: " + req.Action}
	}
}

// handleExec implements spec §4.7's exec semantics: policy check first
// (no child spawned if blocked), then spawn with the decrypted secret map
// merged into the environment, then scrub both captured streams through
// the epoch's scrubber before returning.
func (s *Server) handleExec(reqID string, req Request) Response {
	result := policy.Validate(req.Command)
	if !result.Allowed {
		s.metrics.BlockedTotal.Inc()
		if s.logger != nil {
			s.logger.Info("exec_blocked").Str("request_id", reqID).Str("reason", result.Reason).Send()
		}
		return Response{
			ExitCode:    1,
			Blocked:     true,
			BlockReason: result.Reason,
			Stderr:      "BLOCKED: " + result.Reason,
		}
	}

	ep := s.current.Load()
	secretEnv := ep.secrets.Materialize()

	timeout := time.Duration(req.Timeout) * time.Second
	execResult, err := execenv.Run(context.Background(), execenv.Options{
		Command: req.Command,
		Env:     secretEnv,
		Dir:     req.Cwd,
		Timeout: timeout,
	})

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case execResult.TimedOut:
		outcome = "timeout"
	case execResult.ExitCode != 0:
		outcome = "nonzero"
	}
	s.metrics.ExecTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		return Response{ExitCode: 1, Stderr: ep.scrubber.Scrub(err.Error())}
	}

	return Response{
		ExitCode: execResult.ExitCode,
		Stdout:   ep.scrubber.Scrub(execResult.Stdout),
		Stderr:   ep.scrubber.Scrub(execResult.Stderr),
		Blocked:  false,
	}
}

func socketDirOf(socketPath string) string {
	idx := len(socketPath) - 1
	for idx >= 0 && socketPath[idx] != '/' {
		idx--
	}
	if idx < 0 {
		return "."
	}
	return socketPath[:idx]
}
