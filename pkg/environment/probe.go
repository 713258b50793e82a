package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jactools/jacx/pkg/interfaces"
	"github.com/jactools/jacx/pkg/state"
)

// Ensure ExecProber implements the Prober contract
var _ interfaces.Prober = (*ExecProber)(nil)

// ErrProbeFailed wraps any probe disqualification (missing binary, non-zero
// exit, timeout).
var ErrProbeFailed = errors.New("capability probe failed")

// ExecProber validates a candidate executable by running it with --version
// under a bounded timeout. Results are cached in the state store keyed by
// the executable's mtime, so repeated discovery stays cheap.
type ExecProber struct {
	Timeout time.Duration

	// Cache is optional; nil disables probe caching.
	Cache *state.Store

	logger *zap.SugaredLogger
}

// NewExecProber creates a prober with the given timeout and optional cache
func NewExecProber(timeout time.Duration, cache *state.Store, logger *zap.SugaredLogger) *ExecProber {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExecProber{Timeout: timeout, Cache: cache, logger: logger}
}

// Probe runs `<toolPath> --version` and returns the trimmed output. Any
// failure mode disqualifies the candidate without distinguishing further;
// callers skip and move on.
func (p *ExecProber) Probe(ctx context.Context, toolPath string) (string, error) {
	info, err := os.Stat(toolPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrProbeFailed, toolPath, err)
	}

	modTime := info.ModTime().UnixNano()
	if p.Cache != nil {
		if cached, hit := p.Cache.CachedProbe(toolPath, modTime); hit {
			if !cached.OK {
				return "", fmt.Errorf("%w: %s (cached)", ErrProbeFailed, toolPath)
			}
			return cached.Version, nil
		}
	}

	version, err := p.runProbe(ctx, toolPath)

	if p.Cache != nil {
		if saveErr := p.Cache.SaveProbe(state.ProbeResult{
			Path:    toolPath,
			ModTime: modTime,
			OK:      err == nil,
			Version: version,
		}); saveErr != nil {
			p.logger.Debugw("failed to cache probe result", "path", toolPath, "error", saveErr)
		}
	}

	return version, err
}

func (p *ExecProber) runProbe(ctx context.Context, toolPath string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, toolPath, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s timed out after %v", ErrProbeFailed, toolPath, p.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf(
				"%w: %s exited with code %d", ErrProbeFailed, toolPath, exitErr.ExitCode(),
			)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrProbeFailed, toolPath, err)
	}

	return strings.TrimSpace(string(output)), nil
}
