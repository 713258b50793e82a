package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/pkg/dispatch"
)

// RunCommand executes a Jac program file
type RunCommand struct {
	WorkspaceCommand
}

// DispatchOptions holds the shared command-line options for run and serve
type DispatchOptions struct {
	Workspace string `short:"w" long:"workspace" description:"Workspace root directory"               default:"."`
	EchoOnly  bool   `          long:"echo-only" description:"Print the resolved command, do not run"`
	Verbose   bool   `short:"v" long:"verbose"   description:"Verbose output"`
	Help      bool   `short:"h" long:"help"      description:"Show this help message"`
}

// Help returns the help text for the run command
func (c *RunCommand) Help() string {
	var opts DispatchOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = FileUsage

	formatter := &HelpFormatter{
		Command:     "run",
		Description: "Run a Jac program file with the selected environment's runtime.",
		Examples: []Example{
			{Command: "jacx run main.jac", Description: "Run a program"},
			{Command: "jacx run main.jac --echo-only", Description: "Show the command without running it"},
		},
		Notes: []string{
			"Uses the selected environment's jac executable when it exists,",
			"otherwise falls back to the bare tool name so PATH resolution",
			"(and its error messages) stay visible.",
		},
	}

	return formatter.FormatHelp(parser)
}

// Synopsis returns a short description of the run command
func (c *RunCommand) Synopsis() string {
	return "Run a Jac program file"
}

// Run executes the run command
func (c *RunCommand) Run(args []string) int {
	return c.dispatchAction(dispatch.ActionRun, args)
}

// dispatchAction parses dispatch options and routes one file through the
// command dispatcher. Shared by run and serve.
func (wc *WorkspaceCommand) dispatchAction(action dispatch.Action, args []string) int {
	var opts DispatchOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = FileUsage

	remaining, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		fmt.Printf("Error parsing arguments: %v\n", err)
		return 1
	}

	if len(remaining) != 1 {
		fmt.Printf("Error: expected exactly one file argument\n")
		return 1
	}
	file := remaining[0]

	workspace, err := wc.ResolveWorkspace(opts.Workspace)
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

	ctx := context.Background()
	if err := rt.initSelection(ctx); err != nil {
		rt.logger.Warnw("failed to restore selection", "error", err)
	}

	dispatcher := dispatch.NewDispatcher(rt.envs, rt.cfg.Tool, os.Stdout, rt.logger)

	if opts.EchoOnly {
		invocation, resolveErr := dispatcher.Resolve(action, file)
		if resolveErr != nil {
			fmt.Printf("Error: %v\n", resolveErr)
			return 1
		}
		fmt.Println(invocation.CommandLine)
		return 0
	}

	result, err := dispatcher.Run(ctx, action, file)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	if result.Output != "" {
		fmt.Print(result.Output)
	}
	if result.Err != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Err)
	}
	return result.ExitCode
}

// RunCommandFactory creates a new run command instance
func RunCommandFactory() (cli.Command, error) {
	return &RunCommand{}, nil
}
