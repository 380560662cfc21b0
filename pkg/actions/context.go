package actions

import (
	"context"

	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
	"github.com/arkforge/arkforge/pkg/workspace"
)

// Context is handed to each action's PreCompile. It exposes the
// workspace, the pipeline document, the action's own settings and
// cached file enumeration. One Context is built per action invocation;
// the underlying cache is shared across the run.
type Context struct {
	ctx context.Context

	WorkspaceDir string
	Config       *types.PipelineConfig
	Settings     types.ActionSettings
	Log          logger.Logger

	cache *enumerationCache
}

// Done exposes run cancellation to long-running actions.
func (c *Context) Done() <-chan struct{} {
	if c.ctx == nil {
		return nil
	}
	return c.ctx.Done()
}

// Err returns the run's cancellation cause, if any.
func (c *Context) Err() error {
	if c.ctx == nil {
		return nil
	}
	return c.ctx.Err()
}

// Files enumerates the workspace with the pipeline document's
// configured include and exclude patterns.
func (c *Context) Files() ([]string, error) {
	return c.FilesMatching(c.Config.FilePatterns, c.Config.ExcludePatterns)
}

// FilesMatching enumerates the workspace with explicit patterns,
// memoized per pattern set within the run when caching is enabled.
func (c *Context) FilesMatching(include, exclude []string) ([]string, error) {
	if c.cache != nil && c.Config.Options.CacheOn() {
		return c.cache.files(include, exclude)
	}
	return workspace.EnumerateFiles(c.WorkspaceDir, include, exclude)
}

// Param returns a free-form parameter from the action's settings.
func (c *Context) Param(key string) (interface{}, bool) {
	if c.Settings.Params == nil {
		return nil, false
	}
	v, ok := c.Settings.Params[key]
	return v, ok
}

// StringParam returns a string parameter, or fallback when absent or
// of another type.
func (c *Context) StringParam(key, fallback string) string {
	if v, ok := c.Param(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// BoolParam returns a boolean parameter, or fallback when absent or of
// another type.
func (c *Context) BoolParam(key string, fallback bool) bool {
	if v, ok := c.Param(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
