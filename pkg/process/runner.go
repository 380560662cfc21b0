// Package process provides sandboxed external-process execution and
// process lifecycle utilities.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// ErrEmptyCommand is returned when Run is asked to execute an empty argv.
var ErrEmptyCommand = errors.New("process: empty command")

// ErrWorkspaceBusy is returned when a build-triggering process is
// already active for the requested workspace.
var ErrWorkspaceBusy = errors.New("process: a build is already running for this workspace")

// Environment variables stripped from the inherited environment before
// the engine overlay is applied. These interfere with the spawned
// packaging tools.
var strippedEnvVars = []string{
	"PYTHONHOME",
	"PYTHONPATH",
	"PYTHONSTARTUP",
	"PYTHONEXECUTABLE",
	"LD_PRELOAD",
	"DYLD_INSERT_LIBRARIES",
	"PYINSTALLER_CONFIG_DIR",
}

// maxCapturedOutput bounds the stdout/stderr copies kept on the
// result; streaming to the sink is unbounded.
const maxCapturedOutput = 1 << 20

// Runner executes external programs on a dedicated goroutine with
// timeout enforcement and per-workspace exclusivity.
type Runner struct {
	logger logger.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewRunner creates a process runner.
func NewRunner(log logger.Logger) *Runner {
	return &Runner{
		logger: log,
		active: make(map[string]struct{}),
	}
}

var _ interfaces.ProcessRunner = (*Runner)(nil)

// Run executes argv and always returns a structured result for
// ordinary process failure; the error return is reserved for
// contract violations (empty argv, busy workspace) and spawn failure.
func (r *Runner) Run(ctx context.Context, argv []string, opts interfaces.RunOptions) (*types.ExecutionResult, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrEmptyCommand
	}

	if opts.WorkspaceDir != "" {
		if !r.acquire(opts.WorkspaceDir) {
			return nil, ErrWorkspaceBusy
		}
		defer r.release(opts.WorkspaceDir)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.WorkspaceDir
	cmd.Env = buildEnv(opts.Env)
	// Own process group so a timeout kill reaches spawned children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", argv[0], err)
	}

	var outBuf, errBuf bytes.Buffer
	var streamWG sync.WaitGroup
	streamWG.Add(2)
	go func() {
		defer streamWG.Done()
		streamLines(stdout, &outBuf, opts.Sink)
	}()
	go func() {
		defer streamWG.Done()
		streamLines(stderr, &errBuf, opts.Sink)
	}()

	// Wait on a dedicated goroutine so the caller stays responsive to
	// cancellation and the deadline.
	waitCh := make(chan error, 1)
	go func() {
		streamWG.Wait()
		waitCh <- cmd.Wait()
	}()

	result := &types.ExecutionResult{StartedAt: started}

	select {
	case <-runCtx.Done():
		r.killGroup(cmd)
		<-waitCh
		result.Duration = time.Since(started)
		result.ExitCode = -1
		if opts.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.Err = fmt.Sprintf("timed out after %s", opts.Timeout)
		} else {
			result.Err = "cancelled"
		}
	case waitErr := <-waitCh:
		result.Duration = time.Since(started)
		result.ExitCode = exitCode(waitErr)
		if waitErr != nil && result.ExitCode < 0 {
			result.Err = waitErr.Error()
		}
	}

	result.Stdout = outBuf.String()
	result.Stderr = errBuf.String()

	if r.logger != nil {
		r.logger.Debug("process finished",
			logger.WithField("program", argv[0]),
			logger.WithField("exit_code", result.ExitCode),
			logger.WithField("timed_out", result.TimedOut),
			logger.WithField("duration", result.Duration))
	}

	return result, nil
}

func (r *Runner) acquire(workspace string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[workspace]; busy {
		return false
	}
	r.active[workspace] = struct{}{}
	return true
}

func (r *Runner) release(workspace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, workspace)
}

// killGroup terminates the process group, SIGTERM first and SIGKILL
// after a short grace period.
func (r *Runner) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
		return
	}

	done := make(chan struct{})
	go func() {
		// The process group may already be reaped; polling signal 0
		// tells us when everything is gone.
		for syscall.Kill(pgid, syscall.Signal(0)) == nil {
			time.Sleep(50 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	}
}

// buildEnv returns the sanitized inherited environment overlaid with
// the engine-supplied pairs. Overlay values win.
func buildEnv(overlay map[string]string) []string {
	stripped := make(map[string]struct{}, len(strippedEnvVars))
	for _, k := range strippedEnvVars {
		stripped[k] = struct{}{}
	}

	env := make([]string, 0, len(os.Environ())+len(overlay))
	for _, kv := range os.Environ() {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, skip := stripped[key]; skip {
			continue
		}
		if _, overridden := overlay[key]; overridden {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overlay {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// streamLines copies process output line by line to the sink while
// keeping a bounded copy for the result.
func streamLines(src io.Reader, capture *bytes.Buffer, sink interfaces.LogSink) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if sink != nil {
			sink(line)
		}
		if capture.Len() < maxCapturedOutput {
			capture.WriteString(line)
			capture.WriteByte('\n')
		}
	}
}

// exitCode extracts the exit status from cmd.Wait's error.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
