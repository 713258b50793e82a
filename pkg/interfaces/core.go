// Package interfaces defines the contracts between jacx components:
// probing, selection persistence, and candidate picking. Capability is
// expressed through these interfaces and checked at construction, not at
// call time.
package interfaces

import "context"

// Prober validates that an executable is present and functional by running
// a lightweight version query.
type Prober interface {
	// Probe runs the capability check against the executable at toolPath.
	// It returns the version string on success. A missing binary, non-zero
	// exit or timeout is reported as an error.
	Probe(ctx context.Context, toolPath string) (string, error)
}

// SelectionStore persists the chosen environment root across process
// restarts. An absent selection is reported as ("", false), never an error.
type SelectionStore interface {
	Selection() (string, bool, error)
	SaveSelection(rootPath string) error
	ClearSelection() error
}

// Candidate is one pickable entry presented to the user during selection.
type Candidate struct {
	Label   string
	Detail  string
	Ordinal int
}

// Picker presents ranked candidates and returns the index of the user's
// choice. Returning ok=false means the user dismissed the prompt.
type Picker interface {
	Pick(ctx context.Context, candidates []Candidate) (int, bool, error)
}

// StatusSink receives the environment status line whenever it changes.
// The CLI prints it; an editor integration would forward it to a widget.
type StatusSink interface {
	SetStatus(text string)
}
