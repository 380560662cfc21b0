package process_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/process"
)

func TestRunEmptyCommand(t *testing.T) {
	r := process.NewRunner(nil)

	if _, err := r.Run(context.Background(), nil, interfaces.RunOptions{}); err != process.ErrEmptyCommand {
		t.Errorf("expected ErrEmptyCommand, got %v", err)
	}
	if _, err := r.Run(context.Background(), []string{" "}, interfaces.RunOptions{}); err != process.ErrEmptyCommand {
		t.Errorf("expected ErrEmptyCommand for blank program, got %v", err)
	}
}

func TestRunCapturesOutput(t *testing.T) {
	r := process.NewRunner(nil)

	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, interfaces.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "out") {
		t.Errorf("stdout missing, got %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "err") {
		t.Errorf("stderr missing, got %q", res.Stderr)
	}
	if res.TimedOut {
		t.Error("unexpected timeout")
	}
	if res.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := process.NewRunner(nil)

	res, err := r.Run(context.Background(), []string{"sh", "-c", "exit 7"}, interfaces.RunOptions{})
	if err != nil {
		t.Fatalf("nonzero exit must not surface as error, got %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", res.ExitCode)
	}
	if res.Success() {
		t.Error("Success() should be false for exit 7")
	}
}

func TestRunTimeout(t *testing.T) {
	r := process.NewRunner(nil)

	start := time.Now()
	res, err := r.Run(context.Background(), []string{"sleep", "5"}, interfaces.RunOptions{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.TimedOut {
		t.Fatal("expected TimedOut=true")
	}
	elapsed := time.Since(start)
	if elapsed > 4*time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}
	if res.Duration < 900*time.Millisecond || res.Duration > 3500*time.Millisecond {
		t.Errorf("measured duration %s not near the 1s deadline", res.Duration)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	r := process.NewRunner(nil)

	// The shell reports its background child's pid, then blocks; the
	// timeout kill must reach that child through the process group.
	res, err := r.Run(context.Background(),
		[]string{"sh", "-c", "sleep 30 & echo child=$!; wait"},
		interfaces.RunOptions{Timeout: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut=true")
	}

	var child int
	for _, line := range strings.Split(res.Stdout, "\n") {
		if _, err := fmt.Sscanf(line, "child=%d", &child); err == nil && child > 0 {
			break
		}
	}
	if child == 0 {
		t.Fatalf("child pid not reported, stdout %q", res.Stdout)
	}

	deadline := time.Now().Add(3 * time.Second)
	for syscall.Kill(child, syscall.Signal(0)) == nil {
		if time.Now().After(deadline) {
			t.Fatalf("background child %d still running after timeout kill", child)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRunStreamsToSink(t *testing.T) {
	r := process.NewRunner(nil)

	var mu sync.Mutex
	var lines []string
	sink := func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}

	_, err := r.Run(context.Background(), []string{"sh", "-c", "echo one; echo two"}, interfaces.RunOptions{Sink: sink})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 {
		t.Errorf("expected 2 streamed lines, got %v", lines)
	}
}

func TestRunEnvironmentOverlay(t *testing.T) {
	t.Setenv("PYTHONPATH", "/should/be/stripped")
	r := process.NewRunner(nil)

	res, err := r.Run(context.Background(),
		[]string{"sh", "-c", "echo path=$PYTHONPATH; echo custom=$ARK_TEST_VAR"},
		interfaces.RunOptions{Env: map[string]string{"ARK_TEST_VAR": "42"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(res.Stdout, "path=\n") && !strings.Contains(res.Stdout, "path=") {
		t.Errorf("unexpected stdout %q", res.Stdout)
	}
	if strings.Contains(res.Stdout, "/should/be/stripped") {
		t.Errorf("PYTHONPATH leaked into child env: %q", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "custom=42") {
		t.Errorf("overlay var missing: %q", res.Stdout)
	}
}

func TestRunWorkspaceExclusive(t *testing.T) {
	r := process.NewRunner(nil)
	ws := t.TempDir()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		_, _ = r.Run(context.Background(), []string{"sleep", "2"}, interfaces.RunOptions{WorkspaceDir: ws})
	}()

	<-started
	time.Sleep(200 * time.Millisecond) // let the first run acquire the workspace

	_, err := r.Run(context.Background(), []string{"true"}, interfaces.RunOptions{WorkspaceDir: ws})
	if err != process.ErrWorkspaceBusy {
		t.Errorf("expected ErrWorkspaceBusy, got %v", err)
	}
	<-done
}

func TestRunCancellation(t *testing.T) {
	r := process.NewRunner(nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	res, err := r.Run(ctx, []string{"sleep", "10"}, interfaces.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.TimedOut {
		t.Error("cancellation must not be reported as a timeout")
	}
	if res.Success() {
		t.Error("cancelled run must not be successful")
	}
}
