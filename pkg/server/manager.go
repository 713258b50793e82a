package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jactools/jacx/pkg/environment"
)

// State is the lifecycle state of the supervised server.
type State int

const (
	// StateStopped means no session exists
	StateStopped State = iota
	// StateStarting means a session is spawning or handshaking
	StateStarting
	// StateRunning means the session completed its handshake
	StateRunning
	// StateStopping means an explicit teardown is underway
	StateStopping
	// StateCrashed means the session exited unexpectedly while running
	StateCrashed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotStopped is returned by Start when a session already exists.
	ErrNotStopped = errors.New("server is not stopped")
	// ErrEnvironmentNotReady is returned by Start when no environment is
	// selected.
	ErrEnvironmentNotReady = errors.New("environment manager is not ready")
)

// Options configures the lifecycle manager.
type Options struct {
	Workspace        string
	ServerArgs       []string
	HandshakeTimeout time.Duration // 0 means default

	// OnCrash is invoked (off the caller's goroutine) when the session
	// exits unexpectedly. The warning is surfaced, never fatal.
	OnCrash func(sessionID string, err error)

	// OnStateChange observes every state transition.
	OnStateChange func(state State, env *environment.Environment)
}

// Manager enforces the single-instance invariant over server sessions: at
// most one session is Starting or Running at any time, and all transitions
// are serialized through one owner.
type Manager struct {
	// opMu serializes Start/Stop/Restart end to end; concurrent calls
	// queue rather than interleave.
	opMu sync.Mutex

	mu      sync.Mutex
	session *Session
	state   atomic.Int32
	gen     atomic.Int64 // increments per stop, detaches stale monitors

	envs   *environment.Manager
	opts   Options
	logger *zap.SugaredLogger
}

// NewManager creates a lifecycle manager bound to the environment manager
func NewManager(envs *environment.Manager, opts Options, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Manager{envs: envs, opts: opts, logger: logger}
	m.state.Store(int32(StateStopped))
	return m
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Session returns the active session, if any
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Start spawns a session bound to the current environment. Valid only from
// Stopped; requires a ready environment manager.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	if m.State() != StateStopped {
		return fmt.Errorf("%w: state is %s", ErrNotStopped, m.State())
	}

	env, ok := m.envs.Current()
	if !ok {
		return ErrEnvironmentNotReady
	}

	m.setState(StateStarting, &env)

	session := NewSession(env, m.opts.Workspace, m.opts.ServerArgs, m.opts.HandshakeTimeout, m.logger)
	if err := session.Start(ctx); err != nil {
		m.setState(StateCrashed, &env)
		m.logger.Warnw("language server failed to start", "env", env.RootPath, "error", err)
		return fmt.Errorf("failed to start language server: %w", err)
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	m.setState(StateRunning, &env)

	go m.monitor(session, m.gen.Load())
	return nil
}

// monitor watches for unexpected exits. gen guards against a monitor for a
// torn-down session observing a successor's state.
func (m *Manager) monitor(session *Session, gen int64) {
	<-session.Done()

	m.mu.Lock()
	stale := m.gen.Load() != gen || m.session != session
	if !stale {
		m.session = nil
	}
	m.mu.Unlock()

	if stale {
		// Expected exit: Stop already owns the transition.
		return
	}

	// A Stop or Restart that began after the exit may have superseded
	// this session already; confirm under opMu so Crashed is never
	// stamped over a successor's state.
	m.opMu.Lock()
	if m.gen.Load() != gen {
		m.opMu.Unlock()
		return
	}
	env := session.Environment()
	m.setState(StateCrashed, &env)
	m.opMu.Unlock()

	exitErr := session.ExitErr()
	m.logger.Warnw("language server exited unexpectedly",
		"session", session.ID, "error", exitErr)

	if m.opts.OnCrash != nil {
		m.opts.OnCrash(session.ID, exitErr)
	}
}

// Stop tears down the active session. Idempotent; transitions to Stopped
// unconditionally, even from Crashed. Returns only after the process exit
// is observed and handles are released.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.gen.Add(1)
	m.mu.Unlock()

	if session == nil {
		m.setState(StateStopped, nil)
		return nil
	}

	m.setState(StateStopping, nil)
	err := session.Shutdown(ctx)
	m.setState(StateStopped, nil)
	if err != nil {
		return fmt.Errorf("failed to stop language server: %w", err)
	}
	m.logger.Infow("language server stopped", "session", session.ID)
	return nil
}

// Restart stops any active session, fully awaiting its release, then
// starts a new one. Exposed as the manual recovery action after a crash.
func (m *Manager) Restart(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.stopLocked(ctx); err != nil {
		return err
	}
	return m.startLocked(ctx)
}

func (m *Manager) setState(state State, env *environment.Environment) {
	m.state.Store(int32(state))
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(state, env)
	}
}
