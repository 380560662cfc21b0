package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arkforge/arkforge/pkg/actions"
	"github.com/arkforge/arkforge/pkg/engine"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/mocks"
	"github.com/arkforge/arkforge/pkg/registry"
	"github.com/arkforge/arkforge/pkg/types"
)

type fakeEngine struct {
	engine.Base

	mu          sync.Mutex
	argv        []string
	preflightOK bool
	panicIn     string
	succeeded   bool
	failed      bool
}

func newFakeEngine(id string) *fakeEngine {
	return &fakeEngine{
		Base:        engine.Base{Meta: types.PluginDescriptor{ID: id, Name: id, Version: "1.0.0"}},
		argv:        []string{"fake-tool", "build"},
		preflightOK: true,
	}
}

// trip simulates a bug inside third-party engine code.
func (f *fakeEngine) trip(hook string) {
	if f.panicIn == hook {
		panic("engine bug in " + hook)
	}
}

func (f *fakeEngine) Preflight(ctx context.Context, env *engine.Context, file string) bool {
	f.trip("Preflight")
	return f.preflightOK
}

func (f *fakeEngine) BuildCommand(ctx context.Context, env *engine.Context, file string) ([]string, error) {
	f.trip("BuildCommand")
	return f.argv, nil
}

func (f *fakeEngine) Environment(env *engine.Context, file string) map[string]string {
	f.trip("Environment")
	return nil
}

func (f *fakeEngine) OnSuccess(env *engine.Context, file string) {
	f.trip("OnSuccess")
	f.mu.Lock()
	f.succeeded = true
	f.mu.Unlock()
}

func (f *fakeEngine) OnFailure(env *engine.Context, file string, result *types.ExecutionResult) {
	f.trip("OnFailure")
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

type failingAction struct{}

func (a *failingAction) Describe() types.ActionDescriptor {
	return types.ActionDescriptor{ID: "gate", Name: "gate", Enabled: true, Critical: true}
}

func (a *failingAction) PreCompile(*actions.Context) error {
	return os.ErrPermission
}

func testLogger() logger.Logger {
	return logger.CreateLoggerWithOutput("error", io.Discard)
}

type fixture struct {
	orch     *Orchestrator
	eng      *fakeEngine
	runner   *mocks.MockProcessRunner
	notifier *mocks.MockNotifier
}

func newFixture(t *testing.T, global types.GlobalConfig,
	mutate func(*fakeEngine, *mocks.MockProcessRunner, *actions.Registry)) *fixture {
	t.Helper()

	log := testLogger()
	eng := newFakeEngine("fake")
	engines := registry.New(log, nil)
	if err := engines.Register(eng); err != nil {
		t.Fatal(err)
	}

	runner := mocks.NewMockProcessRunner()
	actionReg := actions.NewRegistry()
	if mutate != nil {
		mutate(eng, runner, actionReg)
	}

	notify := mocks.NewMockNotifier()
	orch := New(log, engines, actionReg, mocks.NewMockConfigStore(), runner, notify, global)
	return &fixture{orch: orch, eng: eng, runner: runner, notifier: notify}
}

func request(t *testing.T, engineID string) types.BuildRequest {
	t.Helper()
	return types.BuildRequest{
		EngineID:     engineID,
		File:         "main.py",
		WorkspaceDir: t.TempDir(),
	}
}

func TestBuildSucceeds(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), nil)

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusSucceeded {
		t.Errorf("status = %s", report.Status)
	}
	if !f.eng.succeeded || f.eng.failed {
		t.Error("OnSuccess hook not invoked")
	}
	if report.Execution == nil || !report.Execution.Success() {
		t.Errorf("execution = %+v", report.Execution)
	}
	if report.ID == "" {
		t.Error("report should carry a generated id")
	}

	call := f.runner.LastCall()
	if len(call.Argv) == 0 || call.Argv[0] != "fake-tool" {
		t.Errorf("runner argv = %v", call.Argv)
	}
	if len(f.notifier.Starts) != 1 || len(f.notifier.Successes) != 1 {
		t.Errorf("notifications: starts=%v successes=%v", f.notifier.Starts, f.notifier.Successes)
	}
}

func TestBuildUnknownEngine(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), nil)

	if _, err := f.orch.Build(context.Background(), request(t, "ghost")); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestBuildCommandFailure(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), func(_ *fakeEngine, r *mocks.MockProcessRunner, _ *actions.Registry) {
		r.Result = types.ExecutionResult{ExitCode: 2}
	})

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusFailed {
		t.Errorf("status = %s", report.Status)
	}
	if !f.eng.failed {
		t.Error("OnFailure hook not invoked")
	}
	if len(f.notifier.Failures) != 1 {
		t.Errorf("failure notifications = %v", f.notifier.Failures)
	}
}

func TestBuildPreflightFailure(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), func(e *fakeEngine, _ *mocks.MockProcessRunner, _ *actions.Registry) {
		e.preflightOK = false
	})

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusFailed {
		t.Errorf("status = %s", report.Status)
	}
	if len(f.runner.Calls()) != 0 {
		t.Error("command must not run after failed preflight")
	}
}

func TestCriticalActionAbortsBuild(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), func(_ *fakeEngine, _ *mocks.MockProcessRunner, ar *actions.Registry) {
		if err := ar.Register(&failingAction{}); err != nil {
			t.Fatal(err)
		}
	})

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusAborted {
		t.Errorf("status = %s", report.Status)
	}
	if len(f.runner.Calls()) != 0 {
		t.Error("command must not run after pipeline failure")
	}
	if report.Pipeline == nil || report.Pipeline.OK() {
		t.Error("report should carry the failed pipeline run")
	}
	if len(f.notifier.Pipelines) != 1 {
		t.Errorf("pipeline notifications = %d", len(f.notifier.Pipelines))
	}
}

func TestGlobalPipelineDisableSkipsActions(t *testing.T) {
	global := types.GlobalConfig{PipelineEnabled: false}
	f := newFixture(t, global, func(_ *fakeEngine, _ *mocks.MockProcessRunner, ar *actions.Registry) {
		if err := ar.Register(&failingAction{}); err != nil {
			t.Fatal(err)
		}
	})

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusSucceeded {
		t.Errorf("status = %s", report.Status)
	}
	if report.Pipeline != nil {
		t.Error("pipeline must not run when disabled globally")
	}
}

func TestOneBuildPerWorkspace(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, types.DefaultGlobalConfig(), func(_ *fakeEngine, r *mocks.MockProcessRunner, _ *actions.Registry) {
		r.Block = release
	})

	req := request(t, "fake")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.orch.Build(context.Background(), req); err != nil {
			t.Errorf("first build failed: %v", err)
		}
	}()

	// Wait until the first build holds the workspace.
	deadline := time.After(2 * time.Second)
	for len(f.runner.Calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first build never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := f.orch.Build(context.Background(), req); err != ErrBuildInProgress {
		t.Errorf("expected ErrBuildInProgress, got %v", err)
	}

	close(release)
	<-done

	// Workspace is free again after the build ends.
	if _, err := f.orch.Build(context.Background(), req); err != nil {
		t.Errorf("workspace should be reusable: %v", err)
	}
}

func TestPanickingEngineHookFailsBuild(t *testing.T) {
	for _, hook := range []string{"Preflight", "BuildCommand", "Environment"} {
		t.Run(hook, func(t *testing.T) {
			f := newFixture(t, types.DefaultGlobalConfig(), func(e *fakeEngine, _ *mocks.MockProcessRunner, _ *actions.Registry) {
				e.panicIn = hook
			})

			report, err := f.orch.Build(context.Background(), request(t, "fake"))
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if report.Status != types.BuildStatusFailed {
				t.Errorf("status = %s", report.Status)
			}
			if len(f.runner.Calls()) != 0 {
				t.Error("command must not run after a panicking hook")
			}
		})
	}
}

func TestPanickingSuccessHookFailsBuild(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), func(e *fakeEngine, _ *mocks.MockProcessRunner, _ *actions.Registry) {
		e.panicIn = "OnSuccess"
	})

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusFailed {
		t.Errorf("status = %s", report.Status)
	}

	var hooks *types.StepReport
	for i := range report.Steps {
		if report.Steps[i].Step == types.BuildStepHooks {
			hooks = &report.Steps[i]
		}
	}
	if hooks == nil || hooks.OK {
		t.Errorf("hooks step should report the contained panic, got %+v", hooks)
	}
}

func TestPanickingFailureHookIsContained(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), func(e *fakeEngine, r *mocks.MockProcessRunner, _ *actions.Registry) {
		e.panicIn = "OnFailure"
		r.Result = types.ExecutionResult{ExitCode: 2}
	})

	report, err := f.orch.Build(context.Background(), request(t, "fake"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusFailed {
		t.Errorf("status = %s", report.Status)
	}
}

func TestMalformedPipelineDocumentAborts(t *testing.T) {
	f := newFixture(t, types.DefaultGlobalConfig(), nil)

	req := request(t, "fake")
	if err := os.WriteFile(filepath.Join(req.WorkspaceDir, "bcasl.yaml"), []byte("options: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.orch.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Status != types.BuildStatusAborted {
		t.Errorf("status = %s", report.Status)
	}
}
