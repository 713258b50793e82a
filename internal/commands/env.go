package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/pkg/environment"
)

// EnvCommand handles environment discovery, selection, and status
type EnvCommand struct {
	WorkspaceCommand
}

// EnvOptions holds command-line options for the env command
type EnvOptions struct {
	Workspace string `short:"w" long:"workspace" description:"Workspace root directory"                   default:"."`
	Index     int    `short:"i" long:"index"     description:"Select by discovery rank instead of path"   default:"-1"`
	JSON      bool   `          long:"json"      description:"Emit machine-readable JSON"`
	Verbose   bool   `short:"v" long:"verbose"   description:"Verbose output"`
	Help      bool   `short:"h" long:"help"      description:"Show this help message"`
}

// envJSON is the wire shape of one environment in --json output
type envJSON struct {
	Root     string `json:"root"`
	Kind     string `json:"kind"`
	Version  string `json:"version"`
	Selected bool   `json:"selected"`
}

// Help returns the help text for the env command
func (c *EnvCommand) Help() string {
	var opts EnvOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "{list|select|clear|status} [OPTIONS]"

	formatter := &HelpFormatter{
		Command:     "env",
		Description: "Discover, select, and inspect Jac runtime environments.",
		Examples: []Example{
			{Command: "jacx env list", Description: "Show discovered environments in ranked order"},
			{Command: "jacx env select ./.venv", Description: "Select an environment by root path"},
			{Command: "jacx env select --index 0", Description: "Select the top-ranked environment"},
			{Command: "jacx env status --json", Description: "Show the active selection as JSON"},
			{Command: "jacx env clear", Description: "Forget the persisted selection"},
		},
		Notes: []string{
			"Discovery ranks project-local virtual environments first, then",
			"user-global pipx installs, then executables found on PATH.",
			"The selection persists across runs until cleared or replaced.",
		},
	}

	return formatter.FormatHelp(parser)
}

// Synopsis returns a short description of the env command
func (c *EnvCommand) Synopsis() string {
	return "Discover and select Jac runtime environments"
}

// Run executes the env command
func (c *EnvCommand) Run(args []string) int {
	var opts EnvOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "{list|select|clear|status} [OPTIONS]"

	remaining, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		fmt.Printf("Error parsing arguments: %v\n", err)
		return 1
	}

	if len(remaining) == 0 {
		fmt.Print(c.Help())
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

	ctx := context.Background()
	if err := rt.initSelection(ctx); err != nil {
		rt.logger.Warnw("failed to restore selection", "error", err)
	}

	switch remaining[0] {
	case envSubList:
		return c.runList(ctx, rt, opts)
	case envSubSelect:
		return c.runSelect(ctx, rt, opts, remaining[1:])
	case envSubClear:
		return c.runClear(rt)
	case envSubStatus:
		return c.runStatus(rt, opts)
	default:
		fmt.Printf("Unknown env subcommand: %s\n\n", remaining[0])
		fmt.Print(c.Help())
		return 1
	}
}

// runList discovers environments and prints them in ranked order
func (c *EnvCommand) runList(ctx context.Context, rt *cliRuntime, opts EnvOptions) int {
	envs, err := rt.resolver.Discover(ctx, rt.workspace)
	if err != nil {
		fmt.Printf("Error: discovery failed: %v\n", err)
		return 1
	}

	selected, hasSelection := rt.envs.Current()

	if opts.JSON {
		items := make([]envJSON, len(envs))
		for i, env := range envs {
			items[i] = envJSON{
				Root:     env.RootPath,
				Kind:     env.Kind.String(),
				Version:  env.Version,
				Selected: hasSelection && env.RootPath == selected.RootPath,
			}
		}
		return printJSON(items)
	}

	if len(envs) == 0 {
		fmt.Println("No usable Jac environments found.")
		return 0
	}

	marker := color.New(color.FgGreen, color.Bold)
	for i, env := range envs {
		prefix := "  "
		if hasSelection && env.RootPath == selected.RootPath {
			prefix = marker.Sprint("* ")
		}
		fmt.Printf("%s[%d] %s (%s, %s)\n", prefix, i, env.RootPath, env.Kind, env.Version)
	}
	return 0
}

// runSelect selects an environment by root path or by discovery rank
func (c *EnvCommand) runSelect(ctx context.Context, rt *cliRuntime, opts EnvOptions, args []string) int {
	env, err := c.resolveSelection(ctx, rt, opts, args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	if err := rt.envs.Select(ctx, env); err != nil {
		fmt.Printf("Error: environment failed validation: %v\n", err)
		return 1
	}

	fmt.Printf("Selected %s (%s, %s)\n", env.RootPath, env.Kind, env.Version)
	return 0
}

// resolveSelection maps the select arguments to a concrete environment
func (c *EnvCommand) resolveSelection(
	ctx context.Context,
	rt *cliRuntime,
	opts EnvOptions,
	args []string,
) (environment.Environment, error) {
	if opts.Index >= 0 {
		envs, err := rt.resolver.Discover(ctx, rt.workspace)
		if err != nil {
			return environment.Environment{}, fmt.Errorf("discovery failed: %w", err)
		}
		if opts.Index >= len(envs) {
			return environment.Environment{}, fmt.Errorf(
				"index %d out of range: %d environments discovered", opts.Index, len(envs))
		}
		return envs[opts.Index], nil
	}

	if len(args) == 0 {
		return environment.Environment{}, errors.New(
			"select requires an environment root path or --index")
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return environment.Environment{}, fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		return environment.Environment{}, fmt.Errorf("environment root not accessible: %w", err)
	}
	return environment.FromRoot(root, rt.cfg.Tool), nil
}

// runClear forgets the persisted selection
func (c *EnvCommand) runClear(rt *cliRuntime) int {
	if err := rt.envs.Clear(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	fmt.Println("Selection cleared.")
	return 0
}

// runStatus shows the active selection
func (c *EnvCommand) runStatus(rt *cliRuntime, opts EnvOptions) int {
	env, ok := rt.envs.Current()

	if opts.JSON {
		if !ok {
			return printJSON(map[string]any{"selected": false})
		}
		return printJSON(envJSON{
			Root:     env.RootPath,
			Kind:     env.Kind.String(),
			Version:  env.Version,
			Selected: true,
		})
	}

	fmt.Println(rt.envs.StatusLine())
	if ok {
		fmt.Printf("  executable: %s\n", env.ToolExecutablePath())
		fmt.Printf("  interpreter: %s\n", env.InterpreterPath())
	}
	return 0
}

// printJSON writes v to stdout as indented JSON
func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Error: encoding JSON: %v\n", err)
		return 1
	}
	return 0
}

// EnvCommandFactory creates a new env command instance
func EnvCommandFactory() (cli.Command, error) {
	return &EnvCommand{}, nil
}
