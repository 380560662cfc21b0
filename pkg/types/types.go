// Package types provides core types and configurations for ArkForge
package types

import (
	"time"
)

// PluginKind distinguishes the two plugin families ArkForge loads.
type PluginKind string

const (
	PluginKindEngine PluginKind = "engine"
	PluginKindAction PluginKind = "action"
)

// PluginDescriptor describes a loadable plugin. The ID must be unique
// within a registry instance and stable across releases.
type PluginDescriptor struct {
	ID                  string     `json:"id" yaml:"id"`
	Name                string     `json:"name" yaml:"name"`
	Kind                PluginKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Version             string     `json:"version" yaml:"version"`
	Description         string     `json:"description,omitempty" yaml:"description,omitempty"`
	Author              string     `json:"author,omitempty" yaml:"author,omitempty"`
	Tags                []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	RequiredCoreVersion string     `json:"requiredCoreVersion,omitempty" yaml:"required_core_version,omitempty"`
	RequiredSDKVersion  string     `json:"requiredSdkVersion,omitempty" yaml:"required_sdk_version,omitempty"`
	Capabilities        []string   `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// ActionSettings is the per-action configuration persisted in the
// pipeline document's plugins map.
type ActionSettings struct {
	Enabled  *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Priority *int                   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Critical *bool                  `json:"critical,omitempty" yaml:"critical,omitempty"`
	Params   map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// IsEnabled reports whether the action should run. Actions default to
// enabled when no setting is persisted.
func (s ActionSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ActionDescriptor describes a pre-build action plugin as it will be
// scheduled by the pipeline.
type ActionDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
	Critical bool   `json:"critical,omitempty"`
}

// ExecutionResult captures the observable outcome of one external
// process run or one sandboxed action invocation. Immutable once
// produced.
type ExecutionResult struct {
	ExitCode  int           `json:"exitCode"`
	TimedOut  bool          `json:"timedOut"`
	Duration  time.Duration `json:"duration"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Err       string        `json:"error,omitempty"`
}

// Success reports whether the execution completed normally.
func (r *ExecutionResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut && r.Err == ""
}

// PipelineStatus represents the state of an action-pipeline run.
type PipelineStatus string

const (
	PipelineStatusIdle      PipelineStatus = "idle"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusCompleted PipelineStatus = "completed"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s PipelineStatus) Terminal() bool {
	switch s {
	case PipelineStatusCompleted, PipelineStatusFailed, PipelineStatusCancelled:
		return true
	}
	return false
}

// ActionResult is the per-plugin outcome recorded in a pipeline run.
type ActionResult struct {
	PluginID string          `json:"pluginId"`
	Name     string          `json:"name,omitempty"`
	Skipped  bool            `json:"skipped,omitempty"`
	Result   ExecutionResult `json:"result"`
}

// PipelineRun is the ordered per-plugin outcome log of one pipeline
// execution plus an aggregate status. Created per build attempt.
type PipelineRun struct {
	ID        string         `json:"id"`
	Status    PipelineStatus `json:"status"`
	Results   []ActionResult `json:"results"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"duration"`
}

// OK reports whether every executed action succeeded.
func (r *PipelineRun) OK() bool {
	if r.Status != PipelineStatusCompleted {
		return false
	}
	for i := range r.Results {
		if !r.Results[i].Skipped && !r.Results[i].Result.Success() {
			return false
		}
	}
	return true
}

// PipelineOptions is the options block of the workspace pipeline
// document. TimeoutSeconds of zero or below means unlimited;
// Parallelism of zero means strictly sequential.
type PipelineOptions struct {
	Enabled        *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	TimeoutSeconds float64 `json:"timeout_s,omitempty" yaml:"timeout_s,omitempty"`
	Sandbox        *bool   `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	Parallelism    int     `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	CacheEnabled   *bool   `json:"cache_enabled,omitempty" yaml:"cache_enabled,omitempty"`
}

// IsEnabled reports whether the pipeline should run at all.
func (o PipelineOptions) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// SandboxEnabled reports whether action invocations are fault-contained.
func (o PipelineOptions) SandboxEnabled() bool {
	return o.Sandbox == nil || *o.Sandbox
}

// CacheOn reports whether per-run file enumeration caching is active.
func (o PipelineOptions) CacheOn() bool {
	return o.CacheEnabled == nil || *o.CacheEnabled
}

// PipelineConfig is the workspace pre-build pipeline document
// (bcasl.yaml and friends).
type PipelineConfig struct {
	FilePatterns    []string                  `json:"file_patterns,omitempty" yaml:"file_patterns,omitempty"`
	ExcludePatterns []string                  `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`
	RequiredFiles   []string                  `json:"required_files,omitempty" yaml:"required_files,omitempty"`
	Options         PipelineOptions           `json:"options,omitempty" yaml:"options,omitempty"`
	Plugins         map[string]ActionSettings `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	PluginOrder     []string                  `json:"plugin_order,omitempty" yaml:"plugin_order,omitempty"`
}

// GlobalConfig is the process-wide document controlling pipeline
// activation and the global per-plugin timeout override.
type GlobalConfig struct {
	PipelineEnabled bool    `json:"bcasl_enabled" yaml:"bcasl_enabled" mapstructure:"bcasl_enabled"`
	PluginTimeout   float64 `json:"plugin_timeout" yaml:"plugin_timeout" mapstructure:"plugin_timeout"`
}

// DefaultGlobalConfig returns the built-in global document.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		PipelineEnabled: true,
		PluginTimeout:   0, // unlimited
	}
}

// BuildStatus represents the current state of a build request.
type BuildStatus string

const (
	BuildStatusIdle      BuildStatus = "idle"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusAborted   BuildStatus = "aborted"
)

// BuildStep identifies a phase of a build report.
type BuildStep string

const (
	BuildStepActions   BuildStep = "actions"
	BuildStepPreflight BuildStep = "preflight"
	BuildStepCommand   BuildStep = "command"
	BuildStepExecute   BuildStep = "execute"
	BuildStepHooks     BuildStep = "hooks"
)

// StepReport records the outcome of one build phase.
type StepReport struct {
	Step    BuildStep     `json:"step"`
	OK      bool          `json:"ok"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// BuildReport is the final user-visible outcome of a build request.
type BuildReport struct {
	ID        string           `json:"id"`
	EngineID  string           `json:"engineId"`
	File      string           `json:"file"`
	Status    BuildStatus      `json:"status"`
	Steps     []StepReport     `json:"steps"`
	Pipeline  *PipelineRun     `json:"pipeline,omitempty"`
	Execution *ExecutionResult `json:"execution,omitempty"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`
}

// BuildRequest asks the orchestrator to compile a single entry file
// with a chosen engine.
type BuildRequest struct {
	ID           string    `json:"id"`
	EngineID     string    `json:"engineId"`
	File         string    `json:"file"`
	WorkspaceDir string    `json:"workspaceDir"`
	Timestamp    time.Time `json:"timestamp"`
}
