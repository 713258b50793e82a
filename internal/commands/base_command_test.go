package commands

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
)

func TestBaseCommand_ParseArgsWithHelp(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
		expectNil   bool // for help case
	}{
		{
			name:        "normal args",
			args:        []string{"arg1", "arg2"},
			expectError: false,
			expectNil:   false,
		},
		{
			name:        "help flag",
			args:        []string{"--help"},
			expectError: false,
			expectNil:   true,
		},
		{
			name:        "short help flag",
			args:        []string{"-h"},
			expectError: false,
			expectNil:   true,
		},
		{
			name:        "invalid flag",
			args:        []string{"--invalid-flag"},
			expectError: true,
			expectNil:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := &BaseCommand{
				Name:        "test",
				Description: "Test command",
			}

			// Use CommonOptions as a simple test struct
			var opts CommonOptions

			remaining, err := bc.ParseArgsWithHelp(&opts, tt.args)

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.expectNil && remaining != nil {
				t.Errorf("expected nil remaining args for help case")
			}
		})
	}
}

func TestCommonOptions_Defaults(t *testing.T) {
	bc := &BaseCommand{Name: "test"}

	var opts CommonOptions
	if _, err := bc.ParseArgsWithHelp(&opts, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if opts.Workspace != "." {
		t.Errorf("expected default workspace '.', got %q", opts.Workspace)
	}
	if opts.Verbose {
		t.Error("expected verbose to default to false")
	}
}

func TestBaseCommand_GenerateHelp(t *testing.T) {
	bc := &BaseCommand{
		Name:        "test-command",
		Description: "A test command for validation",
		Examples: []Example{
			{Command: "test-command --flag", Description: "Test with flag"},
		},
		Notes: []string{
			"This is a test note",
		},
	}

	var opts CommonOptions
	parser := flags.NewParser(&opts, flags.Default)

	help := bc.GenerateHelp(parser)

	if help == "" {
		t.Error("expected non-empty help output")
	}

	// Check that key components are included
	if !strings.Contains(help, "A test command for validation") {
		t.Error("help should contain description")
	}
	if !strings.Contains(help, "test-command --flag") {
		t.Error("help should contain the example command")
	}
	if !strings.Contains(help, "This is a test note") {
		t.Error("help should contain the note")
	}
}

func TestWorkspaceCommand_ResolveWorkspace(t *testing.T) {
	wc := &WorkspaceCommand{}

	tempDir := t.TempDir()
	resolved, err := wc.ResolveWorkspace(tempDir)
	if err != nil {
		t.Fatalf("Expected no error for existing directory, got %v", err)
	}
	if !filepath.IsAbs(resolved) {
		t.Errorf("Expected absolute path, got %s", resolved)
	}
}

func TestWorkspaceCommand_ResolveWorkspace_Missing(t *testing.T) {
	wc := &WorkspaceCommand{}

	if _, err := wc.ResolveWorkspace(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestWorkspaceCommand_ResolveWorkspace_File(t *testing.T) {
	wc := &WorkspaceCommand{}

	file := filepath.Join(t.TempDir(), "file.txt")
	writeTestFile(t, file, "content")

	if _, err := wc.ResolveWorkspace(file); err == nil {
		t.Error("Expected error when workspace is a regular file")
	}
}

func TestWorkspaceCommand_ResolveWorkspace_Default(t *testing.T) {
	wc := &WorkspaceCommand{}

	resolved, err := wc.ResolveWorkspace("")
	if err != nil {
		t.Fatalf("Expected no error for empty workspace, got %v", err)
	}
	if !filepath.IsAbs(resolved) {
		t.Errorf("Expected absolute path for default workspace, got %s", resolved)
	}
}
