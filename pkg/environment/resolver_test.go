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
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	prober := NewExecProber(2*time.Second, nil, nil)
	return NewResolver(config.DefaultConfig(), prober, nil)
}

func TestDiscover_ProjectLocalVenv(t *testing.T) {
	workspace := t.TempDir()
	newVenv(t, filepath.Join(workspace, ".venv"))
	t.Setenv("PATH", "/nonexistent")
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	envs, err := newTestResolver(t).Discover(context.Background(), workspace)

	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, KindProjectLocal, envs[0].Kind)
	assert.Equal(t, filepath.Join(workspace, ".venv"), envs[0].RootPath)
	assert.Equal(t, "jac 0.8.3", envs[0].Version)
}

func TestDiscover_FailingProbeIsSkipped(t *testing.T) {
	workspace := t.TempDir()

	// Valid env plus one whose probe exits non-zero
	newVenv(t, filepath.Join(workspace, ".venv"))
	writeFakeTool(t, filepath.Join(workspace, "venv-broken", "bin", "jac"), "exit 1")

	t.Setenv("PATH", "/nonexistent")
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	envs, err := newTestResolver(t).Discover(context.Background(), workspace)

	require.NoError(t, err)
	require.Len(t, envs, 1, "a candidate whose probe failed must never be returned")
	assert.Equal(t, filepath.Join(workspace, ".venv"), envs[0].RootPath)
}

func TestDiscover_HungProbeIsBounded(t *testing.T) {
	workspace := t.TempDir()
	newVenv(t, filepath.Join(workspace, ".venv"))
	writeFakeTool(t, filepath.Join(workspace, "venv-hung", "bin", "jac"), "sleep 30")

	t.Setenv("PATH", "/nonexistent")
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	prober := NewExecProber(200*time.Millisecond, nil, nil)
	resolver := NewResolver(config.DefaultConfig(), prober, nil)

	start := time.Now()
	envs, err := resolver.Discover(context.Background(), workspace)

	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Less(t, time.Since(start), 5*time.Second, "hung probe must not stall discovery")
}

func TestDiscover_Ranking(t *testing.T) {
	workspace := t.TempDir()
	newVenv(t, filepath.Join(workspace, ".venv"))

	// pipx tier
	pipxHome := filepath.Join(t.TempDir(), "pipx")
	newVenv(t, filepath.Join(pipxHome, "venvs", "jac"))
	t.Setenv("PIPX_HOME", pipxHome)

	// PATH tier
	pathDir := t.TempDir()
	writeFakeTool(t, filepath.Join(pathDir, "jac"), `echo "jac 0.8.0"`)
	t.Setenv("PATH", pathDir)

	envs, err := newTestResolver(t).Discover(context.Background(), workspace)

	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, KindProjectLocal, envs[0].Kind)
	assert.Equal(t, KindUserGlobal, envs[1].Kind)
	assert.Equal(t, KindSystemPath, envs[2].Kind)
}

func TestDiscover_Deterministic(t *testing.T) {
	workspace := t.TempDir()
	newVenv(t, filepath.Join(workspace, ".venv"))
	newVenv(t, filepath.Join(workspace, "venv"))
	t.Setenv("PATH", "/nonexistent")
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	resolver := newTestResolver(t)

	first, err := resolver.Discover(context.Background(), workspace)
	require.NoError(t, err)
	second, err := resolver.Discover(context.Background(), workspace)
	require.NoError(t, err)

	assert.Equal(t, first, second, "discovery must be stable across calls")
}

func TestDiscover_Cancellation(t *testing.T) {
	workspace := t.TempDir()
	newVenv(t, filepath.Join(workspace, ".venv"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestResolver(t).Discover(ctx, workspace)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_UnreadableWorkspaceIsNonFatal(t *testing.T) {
	workspace := filepath.Join(t.TempDir(), "missing")
	t.Setenv("PIPX_HOME", filepath.Join(workspace, "no-pipx"))

	pathDir := t.TempDir()
	writeFakeTool(t, filepath.Join(pathDir, "jac"), `echo "jac 0.8.0"`)
	t.Setenv("PATH", pathDir)

	envs, err := newTestResolver(t).Discover(context.Background(), workspace)

	require.NoError(t, err, "unreadable tiers narrow the set, they do not abort")
	require.Len(t, envs, 1)
	assert.Equal(t, KindSystemPath, envs[0].Kind)
}

func TestProbe_MissingBinary(t *testing.T) {
	prober := NewExecProber(time.Second, nil, nil)
	_, err := prober.Probe(context.Background(), filepath.Join(t.TempDir(), "jac"))
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbe_Version(t *testing.T) {
	dir := t.TempDir()
	toolPath := filepath.Join(dir, "jac")
	writeFakeTool(t, toolPath, `echo "jac 0.9.1"`)
	require.NoError(t, os.Chmod(toolPath, 0o755))

	prober := NewExecProber(time.Second, nil, nil)
	version, err := prober.Probe(context.Background(), toolPath)

	require.NoError(t, err)
	assert.Equal(t, "jac 0.9.1", version)
}
