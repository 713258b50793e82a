package commands

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"
)

// HelpCommand handles the help command functionality
type HelpCommand struct {
	UI cli.Ui // User interface for command output
}

// HelpOptions holds command-line options for the help command
type HelpOptions struct {
	Help bool `short:"h" long:"help" description:"Show this help message"`
}

// Help returns the help text for the help command
func (c *HelpCommand) Help() string {
	helpText := `
Show help for a specific command.

Usage: jacx help [COMMAND]

If COMMAND is specified, shows detailed help for that command.
If no command is specified, shows general help.

Available commands:
  doctor     Check environment and workspace health
  env        Discover and select Jac runtime environments
  lsp        Supervise the jac language server
  resolve    Resolve an import to its source file
  run        Run a Jac program file
  serve      Serve a Jac program file

`
	return helpText
}

// Synopsis returns a short description of the help command
func (c *HelpCommand) Synopsis() string {
	return "Show help for a specific command"
}

// Run executes the help command
func (c *HelpCommand) Run(args []string) int {
	var opts HelpOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[COMMAND]"

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
		// Show general help
		fmt.Print(c.Help())
		return 0
	}

	command := remaining[0]

	// Map of command descriptions
	commandHelp := map[string]string{
		"env":     "Discover Jac runtime environments, select one, and inspect the active selection.",
		"doctor":  "Check the workspace config, state directory, and runtime availability.",
		"run":     "Run a Jac program file with the selected environment's runtime.",
		"serve":   "Serve a Jac program file with the selected environment's runtime.",
		"lsp":     "Run the supervised jac language server in the foreground.",
		"resolve": "Map the import under a cursor position to the source file it names.",
		"help":    "Show help information for commands.",
	}

	if help, exists := commandHelp[command]; exists {
		fmt.Printf("Command: %s\n\n", command)
		fmt.Printf("Description: %s\n\n", help)
		fmt.Printf("For detailed usage information, run:\n")
		fmt.Printf("  jacx %s --help\n", command)
	} else {
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println("Available commands:")
		for cmd := range commandHelp {
			fmt.Printf("  %s\n", cmd)
		}
		return 1
	}

	return 0
}

// HelpCommandFactory creates a new help command instance
func HelpCommandFactory() (cli.Command, error) {
	return &HelpCommand{}, nil
}
