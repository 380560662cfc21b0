// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"
	"time"

	"github.com/arkforge/arkforge/pkg/types"
)

// ConfigStore persists per-entity configuration documents. Persisted
// values are authoritative; a caller-supplied schema only fills gaps.
type ConfigStore interface {
	Load(id string, schema map[string]interface{}) map[string]interface{}
	Save(id string, document map[string]interface{}) bool
	Delete(id string) bool
	Exists(id string) bool
	ListEntities() []string
}

// LogSink receives streamed process output one line at a time.
type LogSink func(line string)

// RunOptions controls a single external process execution.
type RunOptions struct {
	WorkspaceDir string
	Env          map[string]string
	Timeout      time.Duration
	Sink         LogSink
}

// ProcessRunner executes an external program with a sanitized
// environment and wall-clock timeout enforcement. Ordinary process
// failure is reported through the result, never as an error.
type ProcessRunner interface {
	Run(ctx context.Context, argv []string, opts RunOptions) (*types.ExecutionResult, error)
}

// BuildNotifier handles build notifications
type BuildNotifier interface {
	NotifyBuildStart(engine string)
	NotifyBuildSuccess(engine string, duration time.Duration)
	NotifyBuildFailure(engine string, err error)
	NotifyPipelineResult(run *types.PipelineRun)
}

// PluginLookup is the read side of the plugin registry consumed by the
// orchestrator and CLI.
type PluginLookup interface {
	Get(id string) (types.PluginDescriptor, bool)
	List() []types.PluginDescriptor
}
