package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/pkg/config"
	"github.com/jactools/jacx/pkg/state"
)

// DoctorCommand handles the doctor command functionality
type DoctorCommand struct {
	WorkspaceCommand
}

// DoctorOptions holds command-line options for the doctor command
type DoctorOptions struct {
	Workspace string `short:"w" long:"workspace" description:"Workspace root directory" default:"."`
	Verbose   bool   `short:"v" long:"verbose"   description:"Verbose output"`
	Help      bool   `short:"h" long:"help"      description:"Show this help message"`
}

// Help returns the help text for the doctor command
func (c *DoctorCommand) Help() string {
	var opts DoctorOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = OptionsUsage

	formatter := &HelpFormatter{
		Command:     "doctor",
		Description: "Check jacx environment and workspace health.",
		Examples: []Example{
			{Command: "jacx doctor", Description: "Check environment health"},
			{Command: "jacx doctor --verbose", Description: "Show detailed diagnostic information"},
		},
		Notes: []string{
			"Checks the workspace configuration, the state directory, the",
			"persisted environment selection, and Jac runtime availability.",
			"",
			"Exit codes:",
			"  0: No problems found",
			"  1: Problems found",
			"  2: Error running doctor command",
		},
	}

	return formatter.FormatHelp(parser)
}

// Synopsis returns a short description of the doctor command
func (c *DoctorCommand) Synopsis() string {
	return "Check environment and workspace health"
}

// Run executes the doctor command with the given arguments
func (c *DoctorCommand) Run(args []string) int {
	var opts DoctorOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = OptionsUsage

	_, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		fmt.Printf("Error parsing arguments: %v\n", err)
		return 2
	}

	workspace, err := c.ResolveWorkspace(opts.Workspace)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 2
	}

	fmt.Printf("Running jacx health check...\n\n")

	var problems []string
	var warnings []string

	cfg, configProblems := c.checkConfig(workspace, opts.Verbose)
	problems = append(problems, configProblems...)

	stateProblems := c.checkStateDirectory(opts.Verbose)
	problems = append(problems, stateProblems...)

	if cfg != nil {
		envProblems, envWarnings := c.checkEnvironments(workspace, cfg, opts.Verbose)
		problems = append(problems, envProblems...)
		warnings = append(warnings, envWarnings...)
	}

	return c.printResults(problems, warnings)
}

// checkConfig validates the workspace configuration file
func (c *DoctorCommand) checkConfig(workspace string, verbose bool) (*config.Config, []string) {
	var problems []string

	cfg, err := config.LoadConfig(workspace)
	if err != nil {
		problems = append(problems, fmt.Sprintf("Invalid workspace config: %v", err))
		return nil, problems
	}

	if verbose {
		configPath := filepath.Join(workspace, config.ConfigFileName)
		if _, statErr := os.Stat(configPath); statErr == nil {
			fmt.Printf("  ✓ Config loaded from %s\n", configPath)
		} else {
			fmt.Printf("  ✓ No config file, using defaults (tool: %s)\n", cfg.Tool)
		}
	}

	return cfg, problems
}

// checkStateDirectory checks that the state directory is usable
func (c *DoctorCommand) checkStateDirectory(verbose bool) []string {
	var problems []string

	stateDir := state.DefaultStateDir()
	if verbose {
		fmt.Printf("Checking state directory: %s\n", stateDir)
	}

	testFile := filepath.Join(stateDir, ".doctor-test")
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		problems = append(problems, fmt.Sprintf("State directory not writable: %v", err))
	} else if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		problems = append(problems, fmt.Sprintf("State directory not writable: %v", err))
	} else {
		if removeErr := os.Remove(testFile); removeErr != nil && verbose {
			fmt.Printf("  Warning: failed to clean up test file: %v\n", removeErr)
		}
		if verbose {
			fmt.Printf("  ✓ State directory writable\n")
		}
	}

	// An open store validates the database schema too
	store, err := state.NewStore(stateDir)
	if err != nil {
		problems = append(problems, fmt.Sprintf("State database unusable: %v", err))
		return problems
	}
	if verbose {
		fmt.Printf("  ✓ State database opened at %s\n", store.DBPath())
	}
	if closeErr := store.Close(); closeErr != nil && verbose {
		fmt.Printf("  Warning: failed to close state database: %v\n", closeErr)
	}

	return problems
}

// checkEnvironments runs discovery and validates the persisted selection
func (c *DoctorCommand) checkEnvironments(
	workspace string,
	cfg *config.Config,
	verbose bool,
) ([]string, []string) {
	var problems []string
	var warnings []string

	rt, err := newRuntime(workspace, verbose)
	if err != nil {
		problems = append(problems, fmt.Sprintf("Cannot initialize runtime: %v", err))
		return problems, warnings
	}
	defer rt.close()

	ctx := context.Background()

	envs, err := rt.resolver.Discover(ctx, workspace)
	if err != nil {
		problems = append(problems, fmt.Sprintf("Environment discovery failed: %v", err))
		return problems, warnings
	}

	if len(envs) == 0 {
		warnings = append(warnings,
			fmt.Sprintf("No usable %s installation found; install it or add search_dirs to %s",
				cfg.Tool, config.ConfigFileName))
	} else if verbose {
		fmt.Printf("Found %d usable environment(s):\n", len(envs))
		for _, env := range envs {
			fmt.Printf("  ✓ %s (%s, %s)\n", env.RootPath, env.Kind, env.Version)
		}
	}

	if err := rt.initSelection(ctx); err != nil {
		warnings = append(warnings, fmt.Sprintf("Could not restore selection: %v", err))
		return problems, warnings
	}

	env, ok := rt.envs.Current()
	switch {
	case !ok:
		warnings = append(warnings, "No environment selected; run 'jacx env select'")
	case verbose:
		fmt.Printf("  ✓ Selected environment healthy: %s (%s)\n", env.RootPath, env.Version)
	}

	return problems, warnings
}

// printResults prints the final results and returns the exit code
func (c *DoctorCommand) printResults(problems, warnings []string) int {
	fmt.Printf("\nHealth Check Results:\n")

	if len(problems) == 0 && len(warnings) == 0 {
		fmt.Printf("✅ All checks passed! Your jacx setup is healthy.\n")
		return 0
	}

	if len(warnings) > 0 {
		fmt.Printf("\n⚠️  Warnings:\n")
		for _, warning := range warnings {
			fmt.Printf("  • %s\n", warning)
		}
	}

	if len(problems) > 0 {
		fmt.Printf("\n❌ Problems found:\n")
		for _, problem := range problems {
			fmt.Printf("  • %s\n", problem)
		}
		return 1
	}

	fmt.Printf("\nNo critical problems found, but please review the warnings above.\n")
	return 0
}

// DoctorCommandFactory creates a new doctor command instance
func DoctorCommandFactory() (cli.Command, error) {
	return &DoctorCommand{}, nil
}
