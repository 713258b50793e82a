package imports

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// SourceExt is the file extension the resolver targets.
const SourceExt = ".jac"

// Directory names never descended into during the recursive fallback scan.
var defaultExcludedDirs = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
}

// Resolver maps dotted module paths to files under a workspace.
type Resolver struct {
	workspaceRoot string
	excluded      map[string]struct{}
	logger        *zap.SugaredLogger
}

// NewResolver creates a resolver rooted at workspaceRoot. extraExcludes
// supplements the built-in list of directories skipped by the fallback scan.
func NewResolver(workspaceRoot string, extraExcludes []string, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	excluded := make(map[string]struct{}, len(defaultExcludedDirs)+len(extraExcludes))
	for _, name := range defaultExcludedDirs {
		excluded[name] = struct{}{}
	}
	for _, name := range extraExcludes {
		excluded[name] = struct{}{}
	}
	return &Resolver{
		workspaceRoot: workspaceRoot,
		excluded:      excluded,
		logger:        logger,
	}
}

// ResolveAt extracts the dotted module path under the cursor in doc and
// resolves it to a file location. docPath anchors the first search tier at
// the importing file's own directory.
func (r *Resolver) ResolveAt(ctx context.Context, doc, docPath string, pos Position) (Location, bool) {
	dotted, ok := ModulePathAt(doc, pos)
	if !ok {
		return Location{}, false
	}
	return r.Resolve(ctx, dotted, filepath.Dir(docPath))
}

// Resolve maps a dotted module path to a file on disk. Search order:
//
//  1. the importing file's directory
//  2. the workspace root
//  3. conventional source dirs under the root (src, lib)
//  4. a recursive workspace scan
//
// Each direct tier tries `<path>.jac`, `<path>/index.jac`, and
// `<path>/__init__.jac` in turn. The first hit wins; Location always points
// at the start of the file.
func (r *Resolver) Resolve(ctx context.Context, dotted, sourceDir string) (Location, bool) {
	segments := strings.Split(dotted, ".")
	if len(segments) == 0 || segments[0] == "" {
		return Location{}, false
	}
	rel := filepath.Join(segments...)

	bases := []string{sourceDir, r.workspaceRoot,
		filepath.Join(r.workspaceRoot, "src"),
		filepath.Join(r.workspaceRoot, "lib"),
	}
	for _, base := range bases {
		if base == "" {
			continue
		}
		if ctx.Err() != nil {
			return Location{}, false
		}
		if path, ok := tryCandidates(filepath.Join(base, rel)); ok {
			return Location{Path: path}, true
		}
	}

	if path, ok := r.scanWorkspace(ctx, segments); ok {
		return Location{Path: path}, true
	}
	return Location{}, false
}

// tryCandidates checks a direct path against the three file layouts that
// can satisfy a module path.
func tryCandidates(stem string) (string, bool) {
	candidates := []string{
		stem + SourceExt,
		filepath.Join(stem, "index"+SourceExt),
		filepath.Join(stem, "__init__"+SourceExt),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// scanWorkspace walks the workspace looking for a file whose base name
// matches the final segment and whose enclosing directories match the
// remaining segments exactly, in order. A one-segment path matches on base
// name alone; longer paths never match on a subset of segments.
func (r *Resolver) scanWorkspace(ctx context.Context, segments []string) (string, bool) {
	wantName := segments[len(segments)-1] + SourceExt
	var found string

	err := filepath.WalkDir(r.workspaceRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			r.logger.Debugw("skipping unreadable path during import scan",
				"path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if _, skip := r.excluded[d.Name()]; skip && path != r.workspaceRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != wantName {
			return nil
		}
		if !r.dirChainMatches(path, segments) {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warnw("workspace import scan failed", "error", err)
	}
	return found, found != ""
}

// dirChainMatches verifies that the directories immediately enclosing path
// spell out the leading dotted segments. segment count and order must match
// exactly
func (r *Resolver) dirChainMatches(path string, segments []string) bool {
	dirs := segments[:len(segments)-1]
	dir := filepath.Dir(path)
	for i := len(dirs) - 1; i >= 0; i-- {
		if filepath.Base(dir) != dirs[i] {
			return false
		}
		dir = filepath.Dir(dir)
	}
	return true
}
