package environment

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// NoEnvironmentText is the unstyled indicator for the unselected state. It
// can never be confused with a selected path because paths are absolute.
const NoEnvironmentText = "Jac: No Env"

var (
	noEnvStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	envStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)
)

// RenderNoEnvironment renders the "no environment selected" indicator
func RenderNoEnvironment() string {
	return noEnvStyle.Render(NoEnvironmentText)
}

// RenderEnvironment renders the indicator for a selected environment
func RenderEnvironment(env Environment) string {
	return fmt.Sprintf("%s %s",
		envStyle.Render("Jac: "+env.RootPath),
		kindStyle.Render("("+env.Kind.String()+")"),
	)
}
