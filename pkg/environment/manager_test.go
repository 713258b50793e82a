package environment

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jactools/jacx/pkg/config"
	"github.com/jactools/jacx/pkg/interfaces"
	"github.com/jactools/jacx/pkg/state"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) SetStatus(text string) {
	r.lines = append(r.lines, text)
}

type fakePicker struct {
	choice    int
	dismissed bool
	calls     int
}

func (p *fakePicker) Pick(_ context.Context, _ []interfaces.Candidate) (int, bool, error) {
	p.calls++
	return p.choice, !p.dismissed, nil
}

func newTestManager(t *testing.T) (*Manager, *state.Store) {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	prober := NewExecProber(2*time.Second, nil, nil)
	resolver := NewResolver(cfg, prober, nil)
	return NewManager(store, resolver, prober, cfg.Tool, nil), store
}

func TestManager_AccessorsWhenUnselected(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, ok := mgr.InterpreterPath()
	assert.False(t, ok)
	_, ok = mgr.ToolExecutablePath()
	assert.False(t, ok)
	_, ok = mgr.Current()
	assert.False(t, ok)
	assert.Contains(t, mgr.StatusLine(), "No Env")
}

func TestManager_SelectFiresReadyOnce(t *testing.T) {
	mgr, _ := newTestManager(t)
	root := filepath.Join(t.TempDir(), ".venv")
	newVenv(t, root)
	env := FromRoot(root, "jac")

	fired := 0
	mgr.OnReady(func(Environment) { fired++ })

	require.NoError(t, mgr.Select(context.Background(), env))
	require.NoError(t, mgr.Select(context.Background(), env))

	assert.Equal(t, 1, fired, "reselecting the same environment must not re-fire ready")
}

func TestManager_SelectDifferentEnvironmentRefires(t *testing.T) {
	mgr, _ := newTestManager(t)
	first := filepath.Join(t.TempDir(), ".venv")
	second := filepath.Join(t.TempDir(), ".venv")
	newVenv(t, first)
	newVenv(t, second)

	var roots []string
	mgr.OnReady(func(env Environment) { roots = append(roots, env.RootPath) })

	require.NoError(t, mgr.Select(context.Background(), FromRoot(first, "jac")))
	require.NoError(t, mgr.Select(context.Background(), FromRoot(second, "jac")))

	assert.Equal(t, []string{first, second}, roots)
}

func TestManager_SelectInvalidEnvironment(t *testing.T) {
	mgr, store := newTestManager(t)
	root := filepath.Join(t.TempDir(), ".venv")
	writeFakeTool(t, filepath.Join(root, "bin", "jac"), "exit 3")

	err := mgr.Select(context.Background(), FromRoot(root, "jac"))
	assert.Error(t, err)

	_, present, err := store.Selection()
	require.NoError(t, err)
	assert.False(t, present, "failed validation must not persist a selection")
}

func TestManager_InitRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".venv")
	newVenv(t, root)

	mgr, store := newTestManager(t)
	require.NoError(t, mgr.Select(context.Background(), FromRoot(root, "jac")))

	// A fresh manager against the same store recovers the same environment
	cfg := config.DefaultConfig()
	prober := NewExecProber(2*time.Second, nil, nil)
	reloaded := NewManager(store, NewResolver(cfg, prober, nil), prober, cfg.Tool, nil)
	require.NoError(t, reloaded.Init(context.Background()))

	env, ok := reloaded.Current()
	require.True(t, ok)
	assert.Equal(t, root, env.RootPath)
	assert.Equal(t, KindProjectLocal, env.Kind)
}

func TestManager_InitClearsStaleSelection(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".venv")
	newVenv(t, root)

	mgr, store := newTestManager(t)
	require.NoError(t, mgr.Select(context.Background(), FromRoot(root, "jac")))

	// The environment disappears between sessions
	require.NoError(t, os.RemoveAll(root))

	cfg := config.DefaultConfig()
	prober := NewExecProber(2*time.Second, nil, nil)
	reloaded := NewManager(store, NewResolver(cfg, prober, nil), prober, cfg.Tool, nil)
	require.NoError(t, reloaded.Init(context.Background()))

	_, ok := reloaded.Current()
	assert.False(t, ok, "stale selection must revert to no-environment")

	_, present, err := store.Selection()
	require.NoError(t, err)
	assert.False(t, present, "stale selection must be cleared from the store")
}

func TestManager_PromptSelection(t *testing.T) {
	workspace := t.TempDir()
	venvRoot := filepath.Join(workspace, ".venv")
	newVenv(t, venvRoot)

	pathDir := t.TempDir()
	writeFakeTool(t, filepath.Join(pathDir, "jac"), `echo "jac 0.8.0"`)
	t.Setenv("PATH", pathDir)
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	mgr, _ := newTestManager(t)

	sink := &recordingSink{}
	mgr.SetStatusSink(sink)
	require.Contains(t, sink.lines[len(sink.lines)-1], "No Env")

	fired := 0
	mgr.OnReady(func(Environment) { fired++ })

	picker := &fakePicker{choice: 0} // ranked list puts .venv first
	require.NoError(t, mgr.PromptSelection(context.Background(), workspace, picker))

	env, ok := mgr.Current()
	require.True(t, ok)
	assert.Equal(t, venvRoot, env.RootPath)
	assert.Equal(t, 1, fired)
	assert.Contains(t, sink.lines[len(sink.lines)-1], venvRoot)
}

func TestManager_PromptGuardedAgainstStorms(t *testing.T) {
	workspace := t.TempDir()
	newVenv(t, filepath.Join(workspace, ".venv"))
	t.Setenv("PATH", "/nonexistent")
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	mgr, _ := newTestManager(t)
	picker := &fakePicker{choice: 0}

	require.NoError(t, mgr.PromptSelection(context.Background(), workspace, picker))
	require.NoError(t, mgr.PromptSelection(context.Background(), workspace, picker))
	assert.Equal(t, 1, picker.calls, "only one prompt per session unless re-armed")

	mgr.RearmPrompt()
	require.NoError(t, mgr.PromptSelection(context.Background(), workspace, picker))
	assert.Equal(t, 2, picker.calls)
}

func TestManager_Clear(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".venv")
	newVenv(t, root)

	mgr, store := newTestManager(t)
	require.NoError(t, mgr.Select(context.Background(), FromRoot(root, "jac")))
	require.NoError(t, mgr.Clear())

	_, ok := mgr.Current()
	assert.False(t, ok)
	_, present, err := store.Selection()
	require.NoError(t, err)
	assert.False(t, present)
}

func TestStatusRendering(t *testing.T) {
	assert.Contains(t, RenderNoEnvironment(), "No Env")

	env := Environment{RootPath: "/proj/.venv", Kind: KindProjectLocal, Tool: "jac"}
	rendered := RenderEnvironment(env)
	assert.Contains(t, rendered, "/proj/.venv")
	assert.Contains(t, rendered, "project")
	assert.NotContains(t, RenderNoEnvironment(), "/proj/.venv")
}
