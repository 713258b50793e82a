// Package main provides the jacx command-line tool, a companion for the
// Jac language runtime: environment discovery and selection, a supervised
// language server, and command dispatch for Jac programs.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/jactools/jacx/internal/commands"
)

// Version information set by GoReleaser
var (
	version = "dev"
	commit  = "none"    //nolint:unused // Set by GoReleaser
	date    = "unknown" //nolint:unused // Set by GoReleaser
	builtBy = "unknown" //nolint:unused // Set by GoReleaser
)

func main() {
	c := cli.NewCLI("jacx", version)
	c.Args = os.Args[1:]
	c.HelpFunc = customHelpFunc
	c.Commands = map[string]cli.CommandFactory{
		"doctor":  commands.DoctorCommandFactory,
		"env":     commands.EnvCommandFactory,
		"lsp":     commands.LspCommandFactory,
		"resolve": commands.ResolveCommandFactory,
		"run":     commands.RunCommandFactory,
		"serve":   commands.ServeCommandFactory,
		"help":    commands.HelpCommandFactory,
	}

	exitStatus, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitStatus)
}

// customHelpFunc renders the top-level usage screen
func customHelpFunc(cmdFactories map[string]cli.CommandFactory) string {
	var commandNames []string
	for name := range cmdFactories {
		// Skip internal commands from main help
		if name != "help" {
			commandNames = append(commandNames, name)
		}
	}

	sort.Strings(commandNames)

	usageLine := "usage: jacx [-h] [--version]\n"
	usageLine += "            {"
	usageLine += strings.Join(commandNames, ",")
	usageLine += "}\n            ...\n"

	helpText := usageLine + `
A companion tool for the Jac language runtime.

positional arguments:
  {` + strings.Join(commandNames, ",") + `}
    doctor     Check environment and workspace health
    env        Discover and select Jac runtime environments
    lsp        Supervise the jac language server
    resolve    Resolve an import to its source file
    run        Run a Jac program file
    serve      Serve a Jac program file

optional arguments:
  -h, --help            show this help message and exit
  --version             show program's version number and exit
`

	return helpText
}
