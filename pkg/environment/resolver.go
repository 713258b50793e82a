package environment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/jactools/jacx/pkg/config"
	"github.com/jactools/jacx/pkg/interfaces"
)

// venvNamePattern matches directory names that follow common virtual-env
// naming conventions. Case-insensitive, anchored.
var venvNamePattern = regexp2.MustCompile(`^\.?(venv.*|env|jacenv|virtualenv)$`, regexp2.IgnoreCase)

// Resolver scans the workspace and common locations for Jac installations.
// It is stateless; concurrent Discover calls are safe.
type Resolver struct {
	cfg    *config.Config
	prober interfaces.Prober
	logger *zap.SugaredLogger
}

// NewResolver creates a resolver using the given prober for candidate
// validation
func NewResolver(cfg *config.Config, prober interfaces.Prober, logger *zap.SugaredLogger) *Resolver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{cfg: cfg, prober: prober, logger: logger}
}

// Discover returns validated environments, most preferred first:
// project-local venvs, then workspace venv-named directories, then user
// pipx venvs, then the process PATH. A failing probe skips the candidate;
// it never aborts the scan.
func (r *Resolver) Discover(ctx context.Context, workspaceRoot string) ([]Environment, error) {
	var envs []Environment
	seen := make(map[string]bool)

	add := func(env Environment, toolPath string) {
		resolved, err := filepath.Abs(env.RootPath)
		if err != nil {
			r.logger.Debugw("skipping candidate with unresolvable root", "root", env.RootPath, "error", err)
			return
		}
		env.RootPath = resolved
		if seen[resolved] {
			return
		}
		version, err := r.prober.Probe(ctx, toolPath)
		if err != nil {
			r.logger.Debugw("candidate failed probe", "tool", toolPath, "error", err)
			return
		}
		env.Version = version
		seen[resolved] = true
		envs = append(envs, env)
	}

	for _, scan := range []func(context.Context, string, func(Environment, string)) error{
		r.scanProjectLocal,
		r.scanWorkspaceVenvs,
		r.scanPipxVenvs,
		r.scanPath,
	} {
		if err := ctx.Err(); err != nil {
			return envs, err
		}
		if err := scan(ctx, workspaceRoot, add); err != nil {
			// Discovery errors narrow the candidate set, nothing more.
			r.logger.Warnw("discovery tier failed", "error", err)
		}
	}

	return envs, nil
}

// scanProjectLocal checks the conventional project-local venv directories
func (r *Resolver) scanProjectLocal(_ context.Context, workspaceRoot string, add func(Environment, string)) error {
	roots := []string{
		filepath.Join(workspaceRoot, ".venv"),
		filepath.Join(workspaceRoot, ".jacenv"),
	}
	for _, dir := range r.cfg.SearchDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workspaceRoot, dir)
		}
		roots = append(roots, dir)
	}

	for _, root := range roots {
		env := Environment{RootPath: root, Kind: KindProjectLocal, Tool: r.cfg.Tool}
		if toolPath, ok := venvTool(env); ok {
			add(env, toolPath)
		}
	}
	return nil
}

// scanWorkspaceVenvs finds directories under the workspace root whose name
// matches a known virtual-env pattern
func (r *Resolver) scanWorkspaceVenvs(ctx context.Context, workspaceRoot string, add func(Environment, string)) error {
	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		return fmt.Errorf("failed to read workspace root: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}
		match, err := venvNamePattern.MatchString(entry.Name())
		if err != nil || !match {
			continue
		}
		env := Environment{
			RootPath: filepath.Join(workspaceRoot, entry.Name()),
			Kind:     KindProjectLocal,
			Tool:     r.cfg.Tool,
		}
		if toolPath, ok := venvTool(env); ok {
			add(env, toolPath)
		}
	}
	return nil
}

// scanPipxVenvs checks the per-user pipx venvs directory
func (r *Resolver) scanPipxVenvs(ctx context.Context, _ string, add func(Environment, string)) error {
	venvsDir := pipxVenvsDir()
	if venvsDir == "" {
		return nil
	}

	entries, err := os.ReadDir(venvsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read pipx venvs: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}
		env := Environment{
			RootPath: filepath.Join(venvsDir, entry.Name()),
			Kind:     KindUserGlobal,
			Tool:     r.cfg.Tool,
		}
		if toolPath, ok := venvTool(env); ok {
			add(env, toolPath)
		}
	}
	return nil
}

// scanPath resolves the bare tool name on the ambient PATH
func (r *Resolver) scanPath(_ context.Context, _ string, add func(Environment, string)) error {
	toolPath, err := exec.LookPath(r.cfg.Tool)
	if err != nil {
		// Not on PATH is an empty tier, not a failure.
		return nil
	}
	toolPath, err = filepath.Abs(toolPath)
	if err != nil {
		return fmt.Errorf("failed to resolve PATH executable: %w", err)
	}

	env := Environment{
		RootPath: filepath.Dir(toolPath),
		Kind:     KindSystemPath,
		Tool:     r.cfg.Tool,
	}
	add(env, toolPath)
	return nil
}

// venvTool returns the tool executable path inside a venv-shaped root and
// whether it exists
func venvTool(env Environment) (string, bool) {
	toolPath := env.ToolExecutablePath()
	if _, err := os.Stat(toolPath); err != nil {
		return "", false
	}
	return toolPath, true
}

// pipxVenvsDir returns the pipx venvs directory, honoring PIPX_HOME
func pipxVenvsDir() string {
	if pipxHome := os.Getenv("PIPX_HOME"); pipxHome != "" {
		return filepath.Join(pipxHome, "venvs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "pipx", "venvs")
}
