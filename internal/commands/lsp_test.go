package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jactools/jacx/pkg/config"
	"github.com/jactools/jacx/pkg/environment"
	"github.com/jactools/jacx/pkg/server"
	"github.com/jactools/jacx/pkg/state"
)

func TestLspCommand_Help(t *testing.T) {
	cmd := &LspCommand{}
	help := cmd.Help()

	expectedStrings := []string{
		"Supervise the jac language server",
		"--status",
		"never restarted automatically",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(help, expected) {
			t.Errorf("Help output should contain '%s', but got: %s", expected, help)
		}
	}
}

func TestLspCommand_Synopsis(t *testing.T) {
	cmd := &LspCommand{}
	synopsis := cmd.Synopsis()

	expected := "Supervise the jac language server"
	if synopsis != expected {
		t.Errorf("Expected synopsis '%s', got '%s'", expected, synopsis)
	}
}

func TestLspCommand_Run_Help(t *testing.T) {
	cmd := &LspCommand{}

	exitCode := cmd.Run([]string{"--help"})
	if exitCode != 0 {
		t.Errorf("Expected exit code 0 for --help, got %d", exitCode)
	}
}

func TestLspCommand_Run_InvalidFlag(t *testing.T) {
	cmd := &LspCommand{}

	exitCode := cmd.Run([]string{"--invalid-flag"})
	if exitCode == 0 {
		t.Error("Expected non-zero exit code for invalid flag")
	}
}

func TestLspCommand_Run_StatusEmpty(t *testing.T) {
	isolateState(t)
	cmd := &LspCommand{}

	exitCode := cmd.Run([]string{"--status", "--workspace", t.TempDir()})
	if exitCode != 0 {
		t.Errorf("Expected exit code 0 for --status with no record, got %d", exitCode)
	}
}

func TestLspCommand_Run_StatusJSON(t *testing.T) {
	isolateState(t)
	cmd := &LspCommand{}

	exitCode := cmd.Run([]string{"--status", "--json", "--workspace", t.TempDir()})
	if exitCode != 0 {
		t.Errorf("Expected exit code 0 for --status --json, got %d", exitCode)
	}
}

func TestLspCommand_Run_StatusWithRecord(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("JACX_HOME", stateDir)

	store, err := state.NewStore(state.DefaultStateDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	saveErr := store.SaveServerStatus(state.ServerStatus{
		PID: 4242, SessionID: "abc", State: "running", EnvRoot: "/opt/jac",
	})
	if closeErr := store.Close(); closeErr != nil {
		t.Fatalf("Failed to close store: %v", closeErr)
	}
	if saveErr != nil {
		t.Fatalf("Failed to save status: %v", saveErr)
	}

	cmd := &LspCommand{}
	exitCode := cmd.Run([]string{"--status", "--workspace", t.TempDir()})
	if exitCode != 0 {
		t.Errorf("Expected exit code 0 for --status with record, got %d", exitCode)
	}
}

func TestLspCommand_Run_NoEnvironment(t *testing.T) {
	isolateState(t)
	t.Setenv("PATH", t.TempDir())
	t.Setenv("PIPX_HOME", filepath.Join(t.TempDir(), "pipx"))

	cmd := &LspCommand{}
	exitCode := cmd.Run([]string{"--workspace", t.TempDir()})
	if exitCode == 0 {
		t.Error("Expected non-zero exit code when no environment can be selected")
	}
}

// exitAfterHandshakeScript behaves like a broken jac install: probes
// succeed and the lsp subcommand completes the handshake, then the process
// exits immediately.
const exitAfterHandshakeScript = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "jac 0.8.3"
  exit 0
fi
if [ "$1" = "lsp" ]; then
  read line
  printf '{"jsonrpc":"2.0","id":1,"result":{"capabilities":{}}}\n'
  read line
  exit 5
fi
exit 64
`

// newExitingServerManager builds a lifecycle manager whose server dies
// right after a successful start
func newExitingServerManager(t *testing.T) *server.Manager {
	t.Helper()

	root := filepath.Join(t.TempDir(), ".venv")
	toolPath := filepath.Join(root, "bin", "jac")
	if err := os.MkdirAll(filepath.Dir(toolPath), 0o755); err != nil {
		t.Fatalf("Failed to create bin dir: %v", err)
	}
	if err := os.WriteFile(toolPath, []byte(exitAfterHandshakeScript), 0o755); err != nil {
		t.Fatalf("Failed to write tool stub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "pyvenv.cfg"), []byte("home = /usr\n"), 0o644); err != nil {
		t.Fatalf("Failed to write pyvenv.cfg: %v", err)
	}

	store, err := state.NewStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	prober := environment.NewExecProber(2*time.Second, nil, nil)
	envs := environment.NewManager(store, environment.NewResolver(cfg, prober, nil), prober, cfg.Tool, nil)
	if err := envs.Select(context.Background(), environment.FromRoot(root, "jac")); err != nil {
		t.Fatalf("Failed to select environment: %v", err)
	}

	mgr := server.NewManager(envs, server.Options{Workspace: t.TempDir()}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Stop(ctx)
	})
	return mgr
}

func TestAnnounceSession_ServerGoneAfterStart(t *testing.T) {
	mgr := newExitingServerManager(t)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Expected start to succeed, got %v", err)
	}

	// Wait for the crash monitor to observe the exit and clear the session
	deadline := time.Now().Add(5 * time.Second)
	for mgr.Session() != nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.Session() != nil {
		t.Fatal("Expected the session to be cleared after the server exited")
	}

	// Must report the session gone rather than panic on a nil dereference
	env, ok := announceSession(mgr)
	if ok {
		t.Errorf("Expected announceSession to report no session, got environment %q", env.RootPath)
	}
}

func TestLspCommand_Run_SecondSupervisorRejected(t *testing.T) {
	isolateState(t)

	lock := state.NewFileLock(state.DefaultStateDir())
	if err := lock.TryLock(); err != nil {
		t.Fatalf("Failed to take lock: %v", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			t.Errorf("Failed to release lock: %v", err)
		}
	}()

	cmd := &LspCommand{}
	exitCode := cmd.Run([]string{"--workspace", t.TempDir()})
	if exitCode == 0 {
		t.Error("Expected non-zero exit code while another supervisor holds the lock")
	}
}
