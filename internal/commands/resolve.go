package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/pkg/imports"
)

// ResolveCommand maps an import under a cursor position to a source file
type ResolveCommand struct {
	WorkspaceCommand
}

// ResolveOptions holds command-line options for the resolve command
type ResolveOptions struct {
	Workspace string `short:"w" long:"workspace" description:"Workspace root directory" default:"."`
	JSON      bool   `          long:"json"      description:"Emit machine-readable JSON"`
	Verbose   bool   `short:"v" long:"verbose"   description:"Verbose output"`
	Help      bool   `short:"h" long:"help"      description:"Show this help message"`
}

// Help returns the help text for the resolve command
func (c *ResolveCommand) Help() string {
	var opts ResolveOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "FILE:LINE:COL [OPTIONS]"

	formatter := &HelpFormatter{
		Command:     "resolve",
		Description: "Resolve the import under a cursor position to its source file.",
		Examples: []Example{
			{Command: "jacx resolve main.jac:3:12", Description: "Resolve the import at line 3, column 12"},
			{Command: "jacx resolve main.jac:3:12 --json", Description: "Emit the location as JSON"},
		},
		Notes: []string{
			"LINE and COL are one-based, matching editor conventions.",
			"Resolution tries the importing file's directory, the workspace",
			"root, src/ and lib/, then a recursive workspace scan.",
		},
	}

	return formatter.FormatHelp(parser)
}

// Synopsis returns a short description of the resolve command
func (c *ResolveCommand) Synopsis() string {
	return "Resolve an import to its source file"
}

// Run executes the resolve command
func (c *ResolveCommand) Run(args []string) int {
	var opts ResolveOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "FILE:LINE:COL [OPTIONS]"

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
		fmt.Printf("Error: expected exactly one FILE:LINE:COL argument\n")
		return 1
	}

	file, pos, err := parseLocation(remaining[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
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

	docPath, err := filepath.Abs(file)
	if err != nil {
		fmt.Printf("Error: resolving file path: %v\n", err)
		return 1
	}
	doc, err := os.ReadFile(docPath)
	if err != nil {
		fmt.Printf("Error: reading file: %v\n", err)
		return 1
	}

	resolver := imports.NewResolver(workspace, rt.cfg.Resolver.ExcludeDirs, rt.logger)
	loc, ok := resolver.ResolveAt(context.Background(), string(doc), docPath, pos)
	if !ok {
		fmt.Printf("No import resolved at %s:%d:%d\n", file, pos.Line+1, pos.Character+1)
		return 1
	}

	if opts.JSON {
		return printJSON(map[string]any{
			"path":      loc.Path,
			"line":      loc.Line + 1,
			"character": loc.Character + 1,
		})
	}
	fmt.Printf("%s:%d:%d\n", loc.Path, loc.Line+1, loc.Character+1)
	return 0
}

// parseLocation splits FILE:LINE:COL into a path and a zero-based position
func parseLocation(arg string) (string, imports.Position, error) {
	idx := strings.LastIndex(arg, ":")
	if idx < 0 {
		return "", imports.Position{}, fmt.Errorf("expected FILE:LINE:COL, got %q", arg)
	}
	col, err := strconv.Atoi(arg[idx+1:])
	if err != nil {
		return "", imports.Position{}, fmt.Errorf("invalid column in %q: %w", arg, err)
	}

	rest := arg[:idx]
	idx = strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", imports.Position{}, fmt.Errorf("expected FILE:LINE:COL, got %q", arg)
	}
	line, err := strconv.Atoi(rest[idx+1:])
	if err != nil {
		return "", imports.Position{}, fmt.Errorf("invalid line in %q: %w", arg, err)
	}

	if line < 1 || col < 1 {
		return "", imports.Position{}, fmt.Errorf("line and column are one-based, got %d:%d", line, col)
	}
	return rest[:idx], imports.Position{Line: line - 1, Character: col - 1}, nil
}

// ResolveCommandFactory creates a new resolve command instance
func ResolveCommandFactory() (cli.Command, error) {
	return &ResolveCommand{}, nil
}
