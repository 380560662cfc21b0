package actions

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkforge/arkforge/pkg/config"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// ErrPipelineBusy is returned when the workspace already has a
// pipeline run in flight.
var ErrPipelineBusy = fmt.Errorf("a pipeline run is already active for this workspace")

// activeWorkspaces guards against concurrent runs over one workspace,
// also across Pipeline instances.
var (
	activeMu         sync.Mutex
	activeWorkspaces = make(map[string]bool)
)

func acquireWorkspace(dir string) bool {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeWorkspaces[dir] {
		return false
	}
	activeWorkspaces[dir] = true
	return true
}

func releaseWorkspace(dir string) {
	activeMu.Lock()
	defer activeMu.Unlock()
	delete(activeWorkspaces, dir)
}

// Pipeline executes the configured pre-build actions over a workspace.
// One Pipeline may serve many runs; each run gets its own enumeration
// cache and result log.
type Pipeline struct {
	registry     *Registry
	logger       logger.Logger
	workspaceDir string
	cfg          *types.PipelineConfig
	global       types.GlobalConfig
}

// NewPipeline creates a pipeline over workspaceDir.
func NewPipeline(registry *Registry, log logger.Logger, workspaceDir string,
	cfg *types.PipelineConfig, global types.GlobalConfig) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	return &Pipeline{
		registry:     registry,
		logger:       log,
		workspaceDir: workspaceDir,
		cfg:          cfg,
		global:       global,
	}
}

// scheduled is one resolved slot of the execution plan.
type scheduled struct {
	plugin   Plugin
	desc     types.ActionDescriptor
	settings types.ActionSettings
	enabled  bool
	critical bool
}

// Run executes the pipeline and returns its run log. The returned
// error is non-nil only for plan-level failures (unknown or duplicate
// ids in plugin_order); action failures are reported through the run's
// status and results.
func (p *Pipeline) Run(ctx context.Context) (*types.PipelineRun, error) {
	run := &types.PipelineRun{
		ID:        uuid.New().String(),
		Status:    types.PipelineStatusIdle,
		StartedAt: time.Now(),
	}

	if !acquireWorkspace(p.workspaceDir) {
		run.Status = types.PipelineStatusFailed
		return run, ErrPipelineBusy
	}
	defer releaseWorkspace(p.workspaceDir)

	if !p.cfg.Options.IsEnabled() {
		p.logger.Info("Pre-build pipeline disabled by workspace config")
		run.Status = types.PipelineStatusCompleted
		return run, nil
	}

	plan, err := p.plan()
	if err != nil {
		run.Status = types.PipelineStatusFailed
		return run, err
	}
	if len(plan) == 0 {
		run.Status = types.PipelineStatusCompleted
		run.Duration = time.Since(run.StartedAt)
		return run, nil
	}

	run.Status = types.PipelineStatusRunning
	timeout := p.effectiveTimeout()
	cache := newEnumerationCache(p.workspaceDir)

	p.logger.Info("Running pre-build pipeline",
		logger.WithField("run_id", run.ID),
		logger.WithField("actions", len(plan)),
		logger.WithField("parallelism", p.cfg.Options.Parallelism))

	var results []types.ActionResult
	if p.cfg.Options.Parallelism > 0 {
		results = p.runParallel(ctx, plan, timeout, cache)
	} else {
		results = p.runSequential(ctx, plan, timeout, cache)
	}

	run.Results = results
	run.Duration = time.Since(run.StartedAt)
	run.Status = p.finalStatus(ctx, results)

	p.logger.Info("Pre-build pipeline finished",
		logger.WithField("run_id", run.ID),
		logger.WithField("status", run.Status),
		logger.WithField("duration", run.Duration.Round(time.Millisecond)))
	return run, nil
}

// plan resolves the execution order. Explicit plugin_order entries run
// first, in document order; remaining enabled plugins follow sorted by
// priority, stable by registration order. Unknown or duplicate ids in
// plugin_order fail the run before anything executes.
func (p *Pipeline) plan() ([]scheduled, error) {
	seen := make(map[string]bool)
	var out []scheduled

	add := func(id string) error {
		if seen[id] {
			return fmt.Errorf("plugin_order lists %q twice", id)
		}
		plugin, ok := p.registry.Get(id)
		if !ok {
			return fmt.Errorf("plugin_order references unknown action %q", id)
		}
		seen[id] = true
		out = append(out, p.slot(plugin))
		return nil
	}

	for _, id := range p.cfg.PluginOrder {
		if err := add(id); err != nil {
			return nil, err
		}
	}

	var rest []scheduled
	for _, plugin := range p.registry.List() {
		if seen[plugin.Describe().ID] {
			continue
		}
		rest = append(rest, p.slot(plugin))
	}
	// Stable sort keeps registration order among equal priorities.
	for i := 1; i < len(rest); i++ {
		for j := i; j > 0 && priorityOf(rest[j]) < priorityOf(rest[j-1]); j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}
	return append(out, rest...), nil
}

func (p *Pipeline) slot(plugin Plugin) scheduled {
	desc := plugin.Describe()
	settings := p.cfg.Plugins[desc.ID]

	s := scheduled{
		plugin:   plugin,
		desc:     desc,
		settings: settings,
		enabled:  desc.Enabled && settings.IsEnabled(),
		critical: desc.Critical,
	}
	if settings.Critical != nil {
		s.critical = *settings.Critical
	}
	return s
}

func priorityOf(s scheduled) int {
	if s.settings.Priority != nil {
		return *s.settings.Priority
	}
	return s.desc.Priority
}

// effectiveTimeout resolves the per-action timeout. The environment
// override wins over the global document, which wins over the
// workspace document; zero means unlimited.
func (p *Pipeline) effectiveTimeout() time.Duration {
	secs := config.EnvPluginTimeout()
	if secs <= 0 {
		secs = p.global.PluginTimeout
	}
	if secs <= 0 {
		secs = p.cfg.Options.TimeoutSeconds
	}
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func (p *Pipeline) runSequential(ctx context.Context, plan []scheduled,
	timeout time.Duration, cache *enumerationCache) []types.ActionResult {
	results := make([]types.ActionResult, len(plan))
	aborted := false

	for i, s := range plan {
		if aborted || ctx.Err() != nil {
			results[i] = skippedResult(s)
			continue
		}
		if !s.enabled {
			results[i] = skippedResult(s)
			continue
		}

		results[i] = p.runOne(ctx, s, timeout, cache)
		if s.critical && !results[i].Result.Success() {
			p.logger.Error("Critical action failed, aborting pipeline",
				logger.WithField("action", s.desc.ID))
			aborted = true
		}
	}
	return results
}

func (p *Pipeline) runParallel(ctx context.Context, plan []scheduled,
	timeout time.Duration, cache *enumerationCache) []types.ActionResult {
	// Warm the shared enumeration before dispatch so concurrent
	// actions hit a read-mostly cache.
	if p.cfg.Options.CacheOn() {
		if err := cache.warm(p.cfg.FilePatterns, p.cfg.ExcludePatterns); err != nil {
			p.logger.Warn("File enumeration failed before dispatch",
				logger.WithField("error", err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]types.ActionResult, len(plan))
	var mu sync.Mutex

	group, _ := NewSafeGroup(runCtx, p.logger)
	group.SetLimit(p.cfg.Options.Parallelism)

	for i, s := range plan {
		i, s := i, s
		group.Go(func() error {
			var res types.ActionResult
			if !s.enabled || runCtx.Err() != nil {
				res = skippedResult(s)
			} else {
				res = p.runOne(runCtx, s, timeout, cache)
				if s.critical && !res.Result.Success() {
					p.logger.Error("Critical action failed, cancelling pipeline",
						logger.WithField("action", s.desc.ID))
					cancel()
				}
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	group.Wait()
	return results
}

// runOne invokes a single action with timeout and fault containment.
// A panicking action never takes the pipeline down when sandboxing is
// on.
func (p *Pipeline) runOne(ctx context.Context, s scheduled,
	timeout time.Duration, cache *enumerationCache) types.ActionResult {
	actionCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		actionCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	exec := types.ExecutionResult{StartedAt: start}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if !p.cfg.Options.SandboxEnabled() {
					panic(r)
				}
				p.logger.Error("Action panic recovered",
					logger.WithField("action", s.desc.ID),
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				done <- fmt.Errorf("action panic: %v", r)
			}
		}()
		done <- s.plugin.PreCompile(&Context{
			ctx:          actionCtx,
			WorkspaceDir: p.workspaceDir,
			Config:       p.cfg,
			Settings:     s.settings,
			Log:          p.logger.WithScope(s.desc.ID),
			cache:        cache,
		})
	}()

	select {
	case err := <-done:
		exec.Duration = time.Since(start)
		if err != nil {
			exec.ExitCode = 1
			exec.Err = err.Error()
			p.logger.Error("Action failed",
				logger.WithField("action", s.desc.ID),
				logger.WithField("error", err))
		} else {
			p.logger.Debug("Action completed",
				logger.WithField("action", s.desc.ID),
				logger.WithField("duration", exec.Duration.Round(time.Millisecond)))
		}

	case <-actionCtx.Done():
		exec.Duration = time.Since(start)
		exec.ExitCode = -1
		if timeout > 0 && ctx.Err() == nil {
			exec.TimedOut = true
			exec.Err = fmt.Sprintf("action timed out after %s", timeout)
			p.logger.Error("Action timed out",
				logger.WithField("action", s.desc.ID),
				logger.WithField("timeout", timeout))
		} else {
			exec.Err = "cancelled"
		}
	}

	return types.ActionResult{
		PluginID: s.desc.ID,
		Name:     s.desc.Name,
		Result:   exec,
	}
}

func skippedResult(s scheduled) types.ActionResult {
	return types.ActionResult{
		PluginID: s.desc.ID,
		Name:     s.desc.Name,
		Skipped:  true,
	}
}

func (p *Pipeline) finalStatus(ctx context.Context, results []types.ActionResult) types.PipelineStatus {
	if ctx.Err() != nil {
		return types.PipelineStatusCancelled
	}
	for i := range results {
		if results[i].Skipped {
			continue
		}
		if !results[i].Result.Success() {
			return types.PipelineStatusFailed
		}
	}
	return types.PipelineStatusCompleted
}
