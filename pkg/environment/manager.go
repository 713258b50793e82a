package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jactools/jacx/pkg/interfaces"
)

// ErrNoEnvironment is returned by operations that require an active
// selection when none exists.
var ErrNoEnvironment = errors.New("no environment selected")

// Manager owns the single authoritative environment selection. All
// downstream consumers read the current paths through it; only Select and
// Clear write the persisted state.
type Manager struct {
	mu sync.RWMutex

	store    interfaces.SelectionStore
	resolver *Resolver
	prober   interfaces.Prober
	logger   *zap.SugaredLogger

	current  *Environment
	tool     string
	readyFn  func(Environment)
	status   interfaces.StatusSink
	prompted bool
}

// NewManager creates an environment manager. The ready callback and status
// sink are registered before Init so startup selection can arm them.
func NewManager(
	store interfaces.SelectionStore,
	resolver *Resolver,
	prober interfaces.Prober,
	tool string,
	logger *zap.SugaredLogger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		store:    store,
		resolver: resolver,
		prober:   prober,
		tool:     tool,
		logger:   logger,
	}
}

// OnReady registers the callback fired exactly once per transition into
// "an environment is usable". Reselecting the same environment does not
// re-fire it; selecting a different one does.
func (m *Manager) OnReady(fn func(Environment)) {
	m.mu.Lock()
	m.readyFn = fn
	m.mu.Unlock()
}

// SetStatusSink registers the collaborator that renders the status line
func (m *Manager) SetStatusSink(sink interfaces.StatusSink) {
	m.mu.Lock()
	m.status = sink
	m.mu.Unlock()
	m.publishStatus()
}

// Init loads the persisted selection and re-validates it. A stale
// selection is cleared rather than silently kept.
func (m *Manager) Init(ctx context.Context) error {
	rootPath, present, err := m.store.Selection()
	if err != nil {
		return fmt.Errorf("failed to load persisted selection: %w", err)
	}
	if !present {
		m.publishStatus()
		return nil
	}

	env := FromRoot(rootPath, m.tool)
	version, err := m.prober.Probe(ctx, env.ToolExecutablePath())
	if err != nil {
		m.logger.Warnw("persisted environment is no longer valid, clearing selection",
			"root", rootPath, "error", err)
		if clearErr := m.store.ClearSelection(); clearErr != nil {
			return fmt.Errorf("failed to clear stale selection: %w", clearErr)
		}
		m.publishStatus()
		return nil
	}
	env.Version = version

	m.activate(env)
	return nil
}

// Select validates the environment, persists it, and arms the ready
// callback on a genuine transition.
func (m *Manager) Select(ctx context.Context, env Environment) error {
	version, err := m.prober.Probe(ctx, env.ToolExecutablePath())
	if err != nil {
		return fmt.Errorf("environment %s failed validation: %w", env.RootPath, err)
	}
	env.Version = version

	if err := m.store.SaveSelection(env.RootPath); err != nil {
		return fmt.Errorf("failed to persist selection: %w", err)
	}

	m.activate(env)
	return nil
}

// activate installs env as current and fires the ready callback when this
// is a transition (no environment, or a different root).
func (m *Manager) activate(env Environment) {
	m.mu.Lock()
	transition := m.current == nil || m.current.RootPath != env.RootPath
	m.current = &env
	readyFn := m.readyFn
	m.mu.Unlock()

	m.publishStatus()

	if transition && readyFn != nil {
		readyFn(env)
	}
}

// Clear drops the selection, both in memory and in the store
func (m *Manager) Clear() error {
	if err := m.store.ClearSelection(); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.publishStatus()
	return nil
}

// Current returns the active environment, if any
func (m *Manager) Current() (Environment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Environment{}, false
	}
	return *m.current, true
}

// InterpreterPath returns the active interpreter path. ok=false means "not
// ready"; callers never substitute a default.
func (m *Manager) InterpreterPath() (string, bool) {
	env, ok := m.Current()
	if !ok {
		return "", false
	}
	return env.InterpreterPath(), true
}

// ToolExecutablePath returns the active tool executable path, ok=false
// when unselected
func (m *Manager) ToolExecutablePath() (string, bool) {
	env, ok := m.Current()
	if !ok {
		return "", false
	}
	return env.ToolExecutablePath(), true
}

// PromptSelection drives discovery and asks the picker to choose. At most
// one prompt per session unless RearmPrompt is called; repeated "no
// environment" checks must not cause prompt storms.
func (m *Manager) PromptSelection(ctx context.Context, workspaceRoot string, picker interfaces.Picker) error {
	m.mu.Lock()
	if m.prompted {
		m.mu.Unlock()
		return nil
	}
	m.prompted = true
	m.mu.Unlock()

	candidates, err := m.resolver.Discover(ctx, workspaceRoot)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no usable Jac installation found", ErrNoEnvironment)
	}

	items := make([]interfaces.Candidate, len(candidates))
	for i, env := range candidates {
		items[i] = interfaces.Candidate{
			Label:   env.RootPath,
			Detail:  fmt.Sprintf("%s, %s", env.Kind, env.Version),
			Ordinal: i,
		}
	}

	choice, ok, err := picker.Pick(ctx, items)
	if err != nil {
		return fmt.Errorf("selection prompt failed: %w", err)
	}
	if !ok {
		return nil
	}
	if choice < 0 || choice >= len(candidates) {
		return fmt.Errorf("picker returned out-of-range choice %d", choice)
	}

	return m.Select(ctx, candidates[choice])
}

// RearmPrompt allows PromptSelection to prompt again
func (m *Manager) RearmPrompt() {
	m.mu.Lock()
	m.prompted = false
	m.mu.Unlock()
}

// StatusLine renders the current selection state
func (m *Manager) StatusLine() string {
	env, ok := m.Current()
	if !ok {
		return RenderNoEnvironment()
	}
	return RenderEnvironment(env)
}

func (m *Manager) publishStatus() {
	m.mu.RLock()
	sink := m.status
	m.mu.RUnlock()
	if sink != nil {
		sink.SetStatus(m.StatusLine())
	}
}
