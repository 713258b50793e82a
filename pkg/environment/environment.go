// Package environment discovers Jac runtime installations, ranks them, and
// owns the persisted selection among them.
package environment

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Kind classifies where an environment was found
type Kind int

const (
	// KindProjectLocal is a virtual environment inside the workspace
	KindProjectLocal Kind = iota
	// KindUserGlobal is a per-user install such as a pipx venv
	KindUserGlobal
	// KindSystemPath is whatever resolves on the process PATH
	KindSystemPath
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindProjectLocal:
		return "project"
	case KindUserGlobal:
		return "user"
	case KindSystemPath:
		return "system"
	default:
		return "unknown"
	}
}

// ExeExt is the Windows executable file extension
const ExeExt = ".exe"

// Environment is a discovered Jac runtime installation. Interpreter and
// tool paths are derived from the root, never stored redundantly.
type Environment struct {
	// RootPath is the absolute environment root: the virtual-env directory
	// for venv-shaped installs, or the bin directory itself for PATH finds.
	RootPath string

	Kind Kind

	// Tool is the executable name this environment was validated with.
	Tool string

	// Version is the probe output captured during discovery.
	Version string
}

// BinDir returns the directory holding the environment's executables
func (e Environment) BinDir() string {
	if e.Kind == KindSystemPath {
		return e.RootPath
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(e.RootPath, "Scripts")
	}
	return filepath.Join(e.RootPath, "bin")
}

// ToolExecutablePath returns the absolute path of the Jac executable
func (e Environment) ToolExecutablePath() string {
	return filepath.Join(e.BinDir(), exeName(e.Tool))
}

// InterpreterPath returns the absolute path of the Python interpreter that
// backs this environment
func (e Environment) InterpreterPath() string {
	bin := e.BinDir()
	for _, name := range []string{"python3", "python"} {
		candidate := filepath.Join(bin, exeName(name))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(bin, exeName("python"))
}

// FromRoot reconstructs an Environment from a persisted root path by
// inspecting the directory layout. It does not probe; callers validate
// separately.
func FromRoot(rootPath, tool string) Environment {
	env := Environment{RootPath: rootPath, Tool: tool}

	// A venv-shaped root carries pyvenv.cfg or a bin/Scripts layout.
	venvShaped := false
	if _, err := os.Stat(filepath.Join(rootPath, "pyvenv.cfg")); err == nil {
		venvShaped = true
	} else if _, err := os.Stat(filepath.Join(rootPath, "bin", exeName(tool))); err == nil {
		venvShaped = true
	} else if _, err := os.Stat(filepath.Join(rootPath, "Scripts", exeName(tool))); err == nil {
		venvShaped = true
	}

	if !venvShaped {
		env.Kind = KindSystemPath
		return env
	}

	if underPipxVenvs(rootPath) {
		env.Kind = KindUserGlobal
	} else {
		env.Kind = KindProjectLocal
	}
	return env
}

// underPipxVenvs reports whether rootPath lives in a pipx venvs directory
func underPipxVenvs(rootPath string) bool {
	parent := filepath.Base(filepath.Dir(rootPath))
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(rootPath)))
	return parent == "venvs" && grandparent == "pipx"
}

func exeName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ExeExt) {
		return name + ExeExt
	}
	return name
}
