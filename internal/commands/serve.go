package commands

import (
	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/pkg/dispatch"
)

// ServeCommand serves a Jac program file
type ServeCommand struct {
	WorkspaceCommand
}

// Help returns the help text for the serve command
func (c *ServeCommand) Help() string {
	var opts DispatchOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = FileUsage

	formatter := &HelpFormatter{
		Command:     "serve",
		Description: "Serve a Jac program file with the selected environment's runtime.",
		Examples: []Example{
			{Command: "jacx serve api.jac", Description: "Serve a program"},
			{Command: "jacx serve api.jac --echo-only", Description: "Show the command without running it"},
		},
		Notes: []string{
			"Resolution follows the same two-tier rules as 'jacx run': the",
			"selected environment's executable first, then the bare tool name.",
		},
	}

	return formatter.FormatHelp(parser)
}

// Synopsis returns a short description of the serve command
func (c *ServeCommand) Synopsis() string {
	return "Serve a Jac program file"
}

// Run executes the serve command
func (c *ServeCommand) Run(args []string) int {
	return c.dispatchAction(dispatch.ActionServe, args)
}

// ServeCommandFactory creates a new serve command instance
func ServeCommandFactory() (cli.Command, error) {
	return &ServeCommand{}, nil
}
