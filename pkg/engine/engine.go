// Package engine defines the compilation-engine plugin surface and
// the engines shipped with ArkForge.
package engine

import (
	"context"

	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// Context is the host environment handed to every engine hook. Engines
// own no long-lived resources; anything they need between hooks goes
// through the config store.
type Context struct {
	WorkspaceDir string
	Log          logger.Logger
	Config       interfaces.ConfigStore
	Runner       interfaces.ProcessRunner
}

// Append writes one line to the build log.
func (c *Context) Append(line string) {
	if c.Log != nil {
		c.Log.Info(line)
	}
}

// Engine is the adapter around one external packaging tool. Hooks an
// engine does not care about are inherited as no-ops from Base.
type Engine interface {
	Descriptor() types.PluginDescriptor

	// Preflight verifies the engine can run; returning false aborts
	// the build before any command is resolved.
	Preflight(ctx context.Context, env *Context, file string) bool

	// BuildCommand resolves the argv to execute. The first element is
	// the program; at least one element is required.
	BuildCommand(ctx context.Context, env *Context, file string) ([]string, error)

	// OutputDirectory reports where build artifacts land, or "" when
	// the engine has no fixed output location.
	OutputDirectory(env *Context) string

	// Environment returns extra environment pairs overlaid on the
	// sanitized base environment, or nil.
	Environment(env *Context, file string) map[string]string

	OnSuccess(env *Context, file string)
	OnFailure(env *Context, file string, result *types.ExecutionResult)
}

// ToolInstaller is implemented by engines whose external tool can be
// installed on demand. Installation runs as a cancellable task so the
// caller never blocks on it.
type ToolInstaller interface {
	EnsureTool(ctx context.Context, env *Context) *InstallTask
}

// Base provides default no-op hook implementations for engines.
type Base struct {
	Meta types.PluginDescriptor
}

// Descriptor returns the engine's plugin descriptor.
func (b *Base) Descriptor() types.PluginDescriptor { return b.Meta }

// Preflight defaults to allowing the build.
func (b *Base) Preflight(ctx context.Context, env *Context, file string) bool { return true }

// OutputDirectory defaults to no fixed output location.
func (b *Base) OutputDirectory(env *Context) string { return "" }

// Environment defaults to no extra variables.
func (b *Base) Environment(env *Context, file string) map[string]string { return nil }

// OnSuccess is a no-op by default.
func (b *Base) OnSuccess(env *Context, file string) {}

// OnFailure is a no-op by default.
func (b *Base) OnFailure(env *Context, file string, result *types.ExecutionResult) {}
