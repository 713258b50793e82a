package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/pkg/environment"
	"github.com/jactools/jacx/pkg/server"
	"github.com/jactools/jacx/pkg/state"
)

// stopTimeout bounds the graceful shutdown of the supervised server
const stopTimeout = 10 * time.Second

// LspCommand supervises the jac language server in the foreground
type LspCommand struct {
	WorkspaceCommand
}

// LspOptions holds command-line options for the lsp command
type LspOptions struct {
	Workspace string `short:"w" long:"workspace" description:"Workspace root directory"          default:"."`
	Status    bool   `          long:"status"    description:"Show the recorded server status"`
	JSON      bool   `          long:"json"      description:"Emit machine-readable JSON"`
	Verbose   bool   `short:"v" long:"verbose"   description:"Verbose output"`
	Help      bool   `short:"h" long:"help"      description:"Show this help message"`
}

// Help returns the help text for the lsp command
func (c *LspCommand) Help() string {
	var opts LspOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = OptionsUsage

	formatter := &HelpFormatter{
		Command:     "lsp",
		Description: "Supervise the jac language server for the workspace.",
		Examples: []Example{
			{Command: "jacx lsp", Description: "Start the supervised language server"},
			{Command: "jacx lsp --status", Description: "Show the recorded server status"},
			{Command: "jacx lsp --status --json", Description: "Show the status as JSON"},
		},
		Notes: []string{
			"Runs in the foreground until interrupted. At most one supervisor",
			"runs per state directory; a second invocation fails fast.",
			"A crashed server is reported but never restarted automatically;",
			"restart by running 'jacx lsp' again.",
		},
	}

	return formatter.FormatHelp(parser)
}

// Synopsis returns a short description of the lsp command
func (c *LspCommand) Synopsis() string {
	return "Supervise the jac language server"
}

// Run executes the lsp command
func (c *LspCommand) Run(args []string) int {
	var opts LspOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = OptionsUsage

	_, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		fmt.Printf("Error parsing arguments: %v\n", err)
		return 1
	}

	workspace, err := c.ResolveWorkspace(opts.Workspace)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	rt, err := newRuntime(workspace, opts.Verbose)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	defer rt.close()

	if opts.Status {
		return c.runStatus(rt, opts)
	}
	return c.runSupervisor(rt)
}

// runStatus prints the server status recorded by a running supervisor
func (c *LspCommand) runStatus(rt *cliRuntime, opts LspOptions) int {
	status, ok, err := rt.store.ServerStatusRecord()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	if opts.JSON {
		if !ok {
			return printJSON(map[string]any{"state": server.StateStopped.String()})
		}
		return printJSON(map[string]any{
			"state":      status.State,
			"pid":        status.PID,
			"session_id": status.SessionID,
			"env_root":   status.EnvRoot,
		})
	}

	if !ok {
		fmt.Println("Server: stopped (no status recorded)")
		return 0
	}
	fmt.Printf("Server: %s\n", status.State)
	if status.PID != 0 {
		fmt.Printf("  pid: %d\n", status.PID)
		fmt.Printf("  session: %s\n", status.SessionID)
	}
	if status.EnvRoot != "" {
		fmt.Printf("  environment: %s\n", status.EnvRoot)
	}
	return 0
}

// runSupervisor starts the language server and blocks until a signal or a
// crash. Only one supervisor may run against a state directory.
func (c *LspCommand) runSupervisor(rt *cliRuntime) int {
	lock := state.NewFileLock(rt.store.StateDir())
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, state.ErrLockHeld) {
			fmt.Printf("Error: another jacx lsp supervisor is already running\n")
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		return 1
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			rt.logger.Warnw("failed to release supervisor lock", "error", err)
		}
	}()

	ctx := context.Background()
	if err := c.ensureEnvironment(ctx, rt); err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	crashed := make(chan string, 1)
	var mgr *server.Manager
	mgr = server.NewManager(rt.envs, server.Options{
		Workspace:        rt.workspace,
		ServerArgs:       rt.cfg.Server.Args,
		HandshakeTimeout: rt.cfg.HandshakeTimeout(),
		OnCrash: func(sessionID string, err error) {
			fmt.Fprintf(os.Stderr, "Warning: language server crashed (session %s): %v\n", sessionID, err)
			select {
			case crashed <- sessionID:
			default:
			}
		},
		OnStateChange: func(st server.State, env *environment.Environment) {
			record := state.ServerStatus{State: st.String()}
			if env != nil {
				record.EnvRoot = env.RootPath
			}
			if session := mgr.Session(); session != nil {
				record.PID = session.PID()
				record.SessionID = session.ID
			}
			if saveErr := rt.store.SaveServerStatus(record); saveErr != nil {
				rt.logger.Debugw("failed to record server status", "error", saveErr)
			}
		},
	}, rt.logger)

	if err := mgr.Start(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	// The crash monitor clears the session as soon as the server exits,
	// so it can already be gone here even though Start succeeded.
	env, ok := announceSession(mgr)
	if !ok {
		fmt.Fprintf(os.Stderr, "Warning: language server exited immediately after start\n")
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := mgr.Stop(stopCtx); stopErr != nil {
			rt.logger.Warnw("failed to release crashed session", "error", stopErr)
		}
		return 1
	}

	// Watch the server binary itself so a deleted or replaced
	// installation surfaces immediately
	watcher, err := server.WatchBinary(env.ToolExecutablePath(), func(path string) {
		fmt.Fprintf(os.Stderr, "Warning: server executable disappeared: %s\n", path)
	}, rt.logger)
	if err != nil {
		rt.logger.Warnw("cannot watch server binary", "error", err)
	} else {
		defer func() {
			if closeErr := watcher.Close(); closeErr != nil {
				rt.logger.Debugw("failed to close binary watcher", "error", closeErr)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	exitCode := 0
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-crashed:
		exitCode = 1
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown did not complete cleanly: %v\n", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

// announceSession reports the running server session. It returns false
// when the session is already gone, which the caller treats as a crash
// instead of dereferencing a nil session.
func announceSession(mgr *server.Manager) (environment.Environment, bool) {
	session := mgr.Session()
	if session == nil {
		return environment.Environment{}, false
	}
	fmt.Printf("Language server running (pid %d, session %s)\n", session.PID(), session.ID)
	return session.Environment(), true
}

// ensureEnvironment restores the persisted selection, falling back to the
// top-ranked discovered environment.
func (c *LspCommand) ensureEnvironment(ctx context.Context, rt *cliRuntime) error {
	if err := rt.initSelection(ctx); err != nil {
		rt.logger.Warnw("failed to restore selection", "error", err)
	}
	if _, ok := rt.envs.Current(); ok {
		return nil
	}

	envs, err := rt.resolver.Discover(ctx, rt.workspace)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(envs) == 0 {
		return fmt.Errorf("no usable %s installation found; run 'jacx env select'", rt.cfg.Tool)
	}

	if err := rt.envs.Select(ctx, envs[0]); err != nil {
		return fmt.Errorf("selecting environment: %w", err)
	}
	fmt.Printf("Auto-selected %s (%s)\n", envs[0].RootPath, envs[0].Kind)
	return nil
}

// LspCommandFactory creates a new lsp command instance
func LspCommandFactory() (cli.Command, error) {
	return &LspCommand{}, nil
}
