// Package orchestrator coordinates a full build: pre-build actions,
// engine preflight, command resolution, execution and lifecycle hooks.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkforge/arkforge/pkg/actions"
	"github.com/arkforge/arkforge/pkg/config"
	"github.com/arkforge/arkforge/pkg/engine"
	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/registry"
	"github.com/arkforge/arkforge/pkg/types"
)

// ErrBuildInProgress is returned when a workspace already has a build
// running.
var ErrBuildInProgress = fmt.Errorf("a build is already running for this workspace")

// Orchestrator drives build requests end to end. Exactly one build may
// run per workspace at a time.
type Orchestrator struct {
	logger   logger.Logger
	engines  *registry.Registry
	actions  *actions.Registry
	store    interfaces.ConfigStore
	runner   interfaces.ProcessRunner
	notifier interfaces.BuildNotifier
	global   types.GlobalConfig

	mu     sync.Mutex
	active map[string]bool
}

// New creates an orchestrator. The notifier may be nil.
func New(log logger.Logger, engines *registry.Registry, actionReg *actions.Registry,
	store interfaces.ConfigStore, runner interfaces.ProcessRunner,
	notify interfaces.BuildNotifier, global types.GlobalConfig) *Orchestrator {
	return &Orchestrator{
		logger:   log,
		engines:  engines,
		actions:  actionReg,
		store:    store,
		runner:   runner,
		notifier: notify,
		global:   global,
		active:   make(map[string]bool),
	}
}

// Build executes one build request and returns its report. The report
// is non-nil whenever the request was admitted; the error covers
// admission failures only (unknown engine, busy workspace).
func (o *Orchestrator) Build(ctx context.Context, req types.BuildRequest) (*types.BuildReport, error) {
	eng, ok := o.engines.Engine(req.EngineID)
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", req.EngineID)
	}

	o.mu.Lock()
	if o.active[req.WorkspaceDir] {
		o.mu.Unlock()
		return nil, ErrBuildInProgress
	}
	o.active[req.WorkspaceDir] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, req.WorkspaceDir)
		o.mu.Unlock()
	}()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	report := &types.BuildReport{
		ID:        req.ID,
		EngineID:  req.EngineID,
		File:      req.File,
		Status:    types.BuildStatusRunning,
		StartedAt: time.Now(),
	}

	o.logger.Info("Build started",
		logger.WithField("build_id", req.ID),
		logger.WithField("engine", req.EngineID),
		logger.WithField("file", req.File))
	if o.notifier != nil {
		o.notifier.NotifyBuildStart(req.EngineID)
	}

	o.execute(ctx, eng, req, report)

	report.Duration = time.Since(report.StartedAt)
	o.finish(req, report)
	return report, nil
}

func (o *Orchestrator) execute(ctx context.Context, eng engine.Engine,
	req types.BuildRequest, report *types.BuildReport) {
	env := &engine.Context{
		WorkspaceDir: req.WorkspaceDir,
		Log:          o.logger.WithScope(req.EngineID),
		Config:       o.store,
		Runner:       o.runner,
	}

	if !o.runActions(ctx, req, report) {
		return
	}
	if ctx.Err() != nil {
		report.Status = types.BuildStatusAborted
		return
	}
	if !o.runPreflight(ctx, eng, env, req, report) {
		return
	}

	argv, err := o.resolveCommand(ctx, eng, env, req, report)
	if err != nil {
		return
	}

	o.runCommand(ctx, eng, env, req, argv, report)
}

// runActions executes the pre-build pipeline. The pipeline only runs
// when both the global document and the workspace document enable it;
// a failed or cancelled run aborts the build.
func (o *Orchestrator) runActions(ctx context.Context, req types.BuildRequest,
	report *types.BuildReport) bool {
	if !o.global.PipelineEnabled {
		o.logger.Debug("Pre-build pipeline disabled globally")
		return true
	}

	start := time.Now()
	step := types.StepReport{Step: types.BuildStepActions}

	cfg, err := config.LoadPipelineConfig(req.WorkspaceDir)
	if err != nil {
		step.Detail = err.Error()
		step.Elapsed = time.Since(start)
		report.Steps = append(report.Steps, step)
		report.Status = types.BuildStatusAborted
		return false
	}

	pipeline := actions.NewPipeline(o.actions, o.logger, req.WorkspaceDir, cfg, o.global)
	run, err := pipeline.Run(ctx)
	report.Pipeline = run
	if o.notifier != nil {
		o.notifier.NotifyPipelineResult(run)
	}

	step.Elapsed = time.Since(start)
	switch {
	case err != nil:
		step.Detail = err.Error()
	case run.Status == types.PipelineStatusCancelled:
		step.Detail = "pipeline cancelled"
	case !run.OK():
		step.Detail = "one or more pre-build actions failed"
	default:
		step.OK = true
	}
	report.Steps = append(report.Steps, step)

	if !step.OK {
		report.Status = types.BuildStatusAborted
		return false
	}
	return true
}

// containHook runs one call into engine plugin code and converts a
// panic into an error, so a misbehaving engine fails its build instead
// of crashing the host.
func containHook(hook string, fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("engine hook %s panicked: %v", hook, rec)
		}
	}()
	fn()
	return nil
}

// runPreflight checks the engine can run, installing its tool on
// demand when the engine supports that, then checking once more.
func (o *Orchestrator) runPreflight(ctx context.Context, eng engine.Engine,
	env *engine.Context, req types.BuildRequest, report *types.BuildReport) bool {
	start := time.Now()
	step := types.StepReport{Step: types.BuildStepPreflight}

	var ready bool
	if err := containHook("Preflight", func() {
		ready = eng.Preflight(ctx, env, req.File)
	}); err != nil {
		step.Detail = err.Error()
	} else if !ready {
		if installer, ok := eng.(engine.ToolInstaller); ok {
			var task *engine.InstallTask
			if err := containHook("EnsureTool", func() {
				task = installer.EnsureTool(ctx, env)
			}); err != nil {
				step.Detail = err.Error()
			} else if task != nil {
				o.logger.Info("Installing build tool",
					logger.WithField("tool", task.Tool))
				if err := task.Await(ctx); err != nil {
					step.Detail = fmt.Sprintf("tool install failed: %v", err)
				} else if err := containHook("Preflight", func() {
					ready = eng.Preflight(ctx, env, req.File)
				}); err != nil {
					step.Detail = err.Error()
					ready = false
				}
			}
		}
	}

	step.OK = ready
	if !ready && step.Detail == "" {
		step.Detail = "engine preflight failed"
	}
	step.Elapsed = time.Since(start)
	report.Steps = append(report.Steps, step)

	if !ready {
		report.Status = types.BuildStatusFailed
		return false
	}
	return true
}

func (o *Orchestrator) resolveCommand(ctx context.Context, eng engine.Engine,
	env *engine.Context, req types.BuildRequest, report *types.BuildReport) ([]string, error) {
	start := time.Now()
	step := types.StepReport{Step: types.BuildStepCommand}

	var argv []string
	var err error
	if hookErr := containHook("BuildCommand", func() {
		argv, err = eng.BuildCommand(ctx, env, req.File)
	}); hookErr != nil {
		argv, err = nil, hookErr
	}
	if err == nil && len(argv) == 0 {
		err = fmt.Errorf("engine produced an empty command")
	}

	step.Elapsed = time.Since(start)
	if err != nil {
		step.Detail = err.Error()
		report.Steps = append(report.Steps, step)
		report.Status = types.BuildStatusFailed
		return nil, err
	}
	step.OK = true
	step.Detail = argv[0]
	report.Steps = append(report.Steps, step)
	return argv, nil
}

func (o *Orchestrator) runCommand(ctx context.Context, eng engine.Engine,
	env *engine.Context, req types.BuildRequest, argv []string, report *types.BuildReport) {
	start := time.Now()
	step := types.StepReport{Step: types.BuildStepExecute}

	var overlay map[string]string
	if err := containHook("Environment", func() {
		overlay = eng.Environment(env, req.File)
	}); err != nil {
		step.Detail = err.Error()
		step.Elapsed = time.Since(start)
		report.Steps = append(report.Steps, step)
		report.Status = types.BuildStatusFailed
		return
	}

	result, err := o.runner.Run(ctx, argv, interfaces.RunOptions{
		WorkspaceDir: req.WorkspaceDir,
		Env:          overlay,
		Sink:         func(line string) { env.Append(line) },
	})
	step.Elapsed = time.Since(start)

	if err != nil {
		step.Detail = err.Error()
		report.Steps = append(report.Steps, step)
		report.Status = types.BuildStatusFailed
		return
	}

	report.Execution = result
	step.OK = result.Success()
	if !step.OK {
		step.Detail = fmt.Sprintf("exit code %d", result.ExitCode)
		if result.TimedOut {
			step.Detail = "timed out"
		}
	}
	report.Steps = append(report.Steps, step)

	hooks := time.Now()
	hookStep := types.StepReport{Step: types.BuildStepHooks, OK: true}
	if result.Success() {
		report.Status = types.BuildStatusSucceeded
		if err := containHook("OnSuccess", func() { eng.OnSuccess(env, req.File) }); err != nil {
			hookStep.OK = false
			hookStep.Detail = err.Error()
			report.Status = types.BuildStatusFailed
		}
	} else {
		report.Status = types.BuildStatusFailed
		if err := containHook("OnFailure", func() { eng.OnFailure(env, req.File, result) }); err != nil {
			hookStep.OK = false
			hookStep.Detail = err.Error()
		}
	}
	hookStep.Elapsed = time.Since(hooks)
	report.Steps = append(report.Steps, hookStep)
}

func (o *Orchestrator) finish(req types.BuildRequest, report *types.BuildReport) {
	switch report.Status {
	case types.BuildStatusSucceeded:
		o.logger.Success("Build succeeded",
			logger.WithField("build_id", report.ID),
			logger.WithField("duration", report.Duration.Round(time.Millisecond)))
		if o.notifier != nil {
			o.notifier.NotifyBuildSuccess(req.EngineID, report.Duration)
		}
	default:
		detail := "build failed"
		for _, s := range report.Steps {
			if !s.OK && s.Detail != "" {
				detail = s.Detail
			}
		}
		o.logger.Error("Build failed",
			logger.WithField("build_id", report.ID),
			logger.WithField("status", report.Status),
			logger.WithField("detail", detail))
		if o.notifier != nil {
			o.notifier.NotifyBuildFailure(req.EngineID, fmt.Errorf("%s", detail))
		}
	}
}
