package commands

// Common constants used across command implementations
const (
	// Command usage patterns
	OptionsUsage = "[OPTIONS]"
	FileUsage    = "FILE [OPTIONS]"

	// Environment subcommand names
	envSubList   = "list"
	envSubSelect = "select"
	envSubClear  = "clear"
	envSubStatus = "status"

	// Test configuration template
	ValidWorkspaceConfig = `tool: jac
probe_timeout_seconds: 5
server:
  handshake_timeout_seconds: 30
`
)
