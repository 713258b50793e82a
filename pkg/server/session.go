package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jactools/jacx/pkg/environment"
)

// initializeParams is the handshake payload sent to the language server.
type initializeParams struct {
	ProcessID  int        `json:"processId"`
	RootURI    string     `json:"rootUri,omitempty"`
	ClientInfo clientInfo `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// initializeResult is the handshake response; jacx only checks that one
// arrives, the capability payload belongs to the protocol collaborator.
type initializeResult struct {
	Capabilities map[string]any `json:"capabilities"`
}

// Session wraps exactly one running language-server process instance.
type Session struct {
	// ID is assigned at creation and identifies this instance in logs and
	// status records.
	ID string

	env       environment.Environment
	args      []string
	workspace string
	timeout   time.Duration
	logger    *zap.SugaredLogger

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	transport *Transport

	ctx     context.Context
	cancel  context.CancelFunc
	exited  chan struct{}
	exitErr error
}

// NewSession creates a session bound to env (not yet started)
func NewSession(
	env environment.Environment,
	workspace string,
	args []string,
	handshakeTimeout time.Duration,
	logger *zap.SugaredLogger,
) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = 30 * time.Second
	}
	return &Session{
		ID:        uuid.NewString(),
		env:       env,
		args:      args,
		workspace: workspace,
		timeout:   handshakeTimeout,
		logger:    logger,
		exited:    make(chan struct{}),
	}
}

// Start spawns `<tool> lsp` and performs the handshake. On any failure the
// process is torn down before returning.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.startProcess(); err != nil {
		s.cancel()
		return err
	}

	s.transport = NewTransport(s.stdout, s.stdin)
	s.transport.Start(s.ctx)
	go s.drainStderr()
	go s.monitorProcess()

	if err := s.handshake(); err != nil {
		s.teardown()
		return fmt.Errorf("handshake: %w", err)
	}

	s.logger.Infow("language server started",
		"session", s.ID, "pid", s.cmd.Process.Pid, "env", s.env.RootPath)
	return nil
}

func (s *Session) startProcess() error {
	toolPath := s.env.ToolExecutablePath()
	args := append([]string{"lsp"}, s.args...)
	cmd := exec.CommandContext(s.ctx, toolPath, args...)
	cmd.Dir = s.workspace

	// The server runs against the selected environment's bin dir first.
	cmd.Env = append(os.Environ(), "PATH="+s.env.BinDir()+string(os.PathListSeparator)+os.Getenv("PATH"))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start process %s: %w", toolPath, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr
	return nil
}

func (s *Session) handshake() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	// Abort the handshake as soon as the process dies instead of waiting
	// out the timeout.
	go func() {
		select {
		case <-s.exited:
			cancel()
		case <-ctx.Done():
		}
	}()

	params := initializeParams{
		ProcessID:  os.Getpid(),
		RootURI:    "file://" + s.workspace,
		ClientInfo: clientInfo{Name: "jacx"},
	}

	var result initializeResult
	if err := s.transport.Call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	if err := s.transport.Notify("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// monitorProcess records the exit and broadcasts it by closing exited
func (s *Session) monitorProcess() {
	s.exitErr = s.cmd.Wait()
	close(s.exited)
}

// drainStderr forwards server stderr lines into the log
func (s *Session) drainStderr() {
	buf := make([]byte, 4096)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			s.logger.Debugw("server stderr", "session", s.ID, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Done is closed when the server process has exited, expectedly or not.
// Multiple observers may wait on it.
func (s *Session) Done() <-chan struct{} {
	return s.exited
}

// ExitErr returns the process exit error; valid only after Done is closed
func (s *Session) ExitErr() error {
	return s.exitErr
}

// PID returns the server process ID, 0 before Start
func (s *Session) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Environment returns the environment this session is bound to
func (s *Session) Environment() environment.Environment {
	return s.env
}

// Shutdown asks the server to exit politely, then tears the process down.
// It waits for process exit (bounded by ctx) so callers observe a fully
// released handle before starting a successor.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.transport != nil {
		// Best effort; the server may already be gone.
		shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = s.transport.Call(shutdownCtx, "shutdown", nil, nil)
		_ = s.transport.Notify("exit", nil)
		cancel()
	}

	s.teardown()

	select {
	case <-s.exited:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// teardown closes the transport, pipes, and kills the process
func (s *Session) teardown() {
	if s.transport != nil {
		s.transport.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.stderr != nil {
		s.stderr.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cancel != nil {
		s.cancel()
	}
}
