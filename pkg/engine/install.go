package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkforge/arkforge/pkg/interfaces"
)

// InstallTask is a cancellable, non-blocking tool installation. The
// task is returned immediately; callers await Done or poll Finished
// without blocking the build flow.
type InstallTask struct {
	Tool string

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// StartInstall launches the given install argv in the background and
// returns the running task.
func StartInstall(ctx context.Context, runner interfaces.ProcessRunner, env *Context, tool string, argv []string) *InstallTask {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &InstallTask{
		Tool:   tool,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)
		defer cancel()

		result, err := runner.Run(taskCtx, argv, interfaces.RunOptions{
			WorkspaceDir: "", // installs are not workspace-exclusive
			Sink: func(line string) {
				if env != nil {
					env.Append(line)
				}
			},
		})

		task.mu.Lock()
		defer task.mu.Unlock()
		switch {
		case err != nil:
			task.err = fmt.Errorf("install %s: %w", tool, err)
		case !result.Success():
			task.err = fmt.Errorf("install %s: exit code %d", tool, result.ExitCode)
		}
	}()

	return task
}

// Done is closed when the installation finishes or is cancelled.
func (t *InstallTask) Done() <-chan struct{} { return t.done }

// Finished reports whether the task has completed without blocking.
func (t *InstallTask) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the installation error, valid once Done is closed.
func (t *InstallTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancel aborts a running installation.
func (t *InstallTask) Cancel() { t.cancel() }

// Await blocks until the task finishes or the context is cancelled.
func (t *InstallTask) Await(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		t.Cancel()
		<-t.done
		return ctx.Err()
	}
}
