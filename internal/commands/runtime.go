package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jactools/jacx/pkg/config"
	"github.com/jactools/jacx/pkg/environment"
	"github.com/jactools/jacx/pkg/state"
)

// cliRuntime bundles the long-lived objects most commands need: the loaded
// workspace config, the state store, and a wired environment manager.
type cliRuntime struct {
	workspace string
	cfg       *config.Config
	store     *state.Store
	envs      *environment.Manager
	prober    *environment.ExecProber
	resolver  *environment.Resolver
	logger    *zap.SugaredLogger
}

// newRuntime loads the workspace config, opens the state store, and wires
// the environment manager. Callers own the returned runtime and must call
// close when done.
func newRuntime(workspace string, verbose bool) (*cliRuntime, error) {
	cfg, err := config.LoadConfig(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := state.NewStore(state.DefaultStateDir())
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	logger := newCommandLogger(verbose)
	prober := environment.NewExecProber(cfg.ProbeTimeout(), store, logger)
	resolver := environment.NewResolver(cfg, prober, logger)
	envs := environment.NewManager(store, resolver, prober, cfg.Tool, logger)

	return &cliRuntime{
		workspace: workspace,
		cfg:       cfg,
		store:     store,
		envs:      envs,
		prober:    prober,
		resolver:  resolver,
		logger:    logger,
	}, nil
}

// initSelection restores the persisted environment selection, clearing it
// when stale
func (r *cliRuntime) initSelection(ctx context.Context) error {
	return r.envs.Init(ctx)
}

func (r *cliRuntime) close() {
	_ = r.logger.Sync()
	if err := r.store.Close(); err != nil {
		r.logger.Debugw("failed to close state store", "error", err)
	}
}

// newCommandLogger builds the CLI logger: warnings and errors only unless
// verbose is set.
func newCommandLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
