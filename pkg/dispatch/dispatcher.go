// Package dispatch translates user actions into Jac tool invocations with
// primary-path to PATH fallback resolution.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jactools/jacx/pkg/environment"
)

// Action is a user-facing verb routed to the Jac executable.
type Action string

const (
	// ActionRun executes a Jac file
	ActionRun Action = "run"
	// ActionServe serves a Jac file
	ActionServe Action = "serve"
)

// ErrUnknownAction is returned for verbs the dispatcher does not route.
var ErrUnknownAction = errors.New("unknown action")

// Invocation describes a single dispatched command: the chosen executable,
// argument vector, and the textual form echoed to the user.
type Invocation struct {
	Executable string
	Args       []string
	File       string

	// CommandLine is the human-readable form shown in the terminal so the
	// user sees exactly what ran.
	CommandLine string

	// PathFallback is true when the bare tool name was used instead of
	// the selected environment's executable.
	PathFallback bool
}

// Result captures the outcome of one dispatched command.
type Result struct {
	Invocation Invocation
	ExitCode   int
	Output     string
	Duration   time.Duration
	Err        string
}

// Success reports whether the command ran and exited zero
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Err == ""
}

// Dispatcher routes run/serve actions to the right Jac executable.
type Dispatcher struct {
	envs   *environment.Manager
	tool   string
	echo   io.Writer
	logger *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher. echo receives the visible command
// line; pass os.Stdout for the interactive terminal.
func NewDispatcher(envs *environment.Manager, tool string, echo io.Writer, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if echo == nil {
		echo = io.Discard
	}
	return &Dispatcher{envs: envs, tool: tool, echo: echo, logger: logger}
}

// Resolve picks the executable for an action with two-tier fallback:
// (1) the selected environment's tool executable, if it still exists;
// (2) the bare tool name, resolved by the OS via PATH. Tier 2 is used even
// when nothing confirms it exists, so a missing tool fails loudly in the
// shell rather than dying silently inside jacx.
func (d *Dispatcher) Resolve(action Action, file string) (Invocation, error) {
	if action != ActionRun && action != ActionServe {
		return Invocation{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if file == "" {
		return Invocation{}, fmt.Errorf("no file given for %s", action)
	}

	executable := d.tool
	fallback := true
	if toolPath, ok := d.envs.ToolExecutablePath(); ok {
		if _, err := os.Stat(toolPath); err == nil {
			executable = toolPath
			fallback = false
		} else {
			d.logger.Warnw("selected tool executable is missing, falling back to PATH",
				"path", toolPath, "error", err)
		}
	}

	args := []string{string(action), file}
	return Invocation{
		Executable:   executable,
		Args:         args,
		File:         file,
		CommandLine:  executable + " " + strings.Join(args, " "),
		PathFallback: fallback,
	}, nil
}

// Run resolves and executes an action against a file. The echoed command
// line goes to the terminal collaborator; execution and exit-code capture
// happen independently. Executable-not-found errors are reported in the
// Result, not swallowed.
func (d *Dispatcher) Run(ctx context.Context, action Action, file string) (*Result, error) {
	inv, err := d.Resolve(action, file)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(d.echo, "$ %s\n", inv.CommandLine)

	start := time.Now()
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	output, execErr := cmd.CombinedOutput()

	result := &Result{
		Invocation: inv,
		Output:     string(output),
		Duration:   time.Since(start),
	}

	if execErr != nil {
		result.Err = execErr.Error()
		var exitErr *exec.ExitError
		switch {
		case errors.As(execErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			// The command's own output is the real information; keep the
			// generic message only when there is none.
			if strings.TrimSpace(result.Output) != "" {
				result.Err = ""
			}
		case isNotFound(execErr):
			result.ExitCode = 127
			result.Err = fmt.Sprintf("executable not found: %s", inv.Executable)
		default:
			result.ExitCode = 1
		}
	}

	d.logger.Debugw("dispatched command",
		"command", inv.CommandLine, "exit_code", result.ExitCode, "fallback", inv.PathFallback)
	return result, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
