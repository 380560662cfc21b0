package notifier_test

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/notifier"
	"github.com/arkforge/arkforge/pkg/types"
)

func newDisabled() *notifier.BuildNotifier {
	log := logger.CreateLoggerWithOutput("error", io.Discard)
	return notifier.New(notifier.Config{Enabled: false}, log)
}

func TestNotifier_DisabledIsNoOp(t *testing.T) {
	n := newDisabled()

	n.NotifyBuildStart("pyinstaller")
	n.NotifyBuildSuccess("pyinstaller", time.Second)
	n.NotifyBuildFailure("pyinstaller", fmt.Errorf("exit status 1"))
	n.NotifyPipelineResult(&types.PipelineRun{Status: types.PipelineStatusFailed})
}

func TestNotifier_NilPipelineRun(t *testing.T) {
	n := newDisabled()
	n.NotifyPipelineResult(nil)
}

func TestNotifier_SuccessfulPipelineStaysSilent(t *testing.T) {
	log := logger.CreateLoggerWithOutput("error", io.Discard)
	n := notifier.New(notifier.Config{Enabled: true}, log)

	// A clean run must not reach the desktop at all.
	n.NotifyPipelineResult(&types.PipelineRun{
		Status: types.PipelineStatusCompleted,
		Results: []types.ActionResult{
			{PluginID: "required_files", Result: types.ExecutionResult{ExitCode: 0}},
		},
	})
}

func TestNotifier_ErrorFormats(t *testing.T) {
	n := newDisabled()

	for _, err := range []error{
		fmt.Errorf("simple error"),
		fmt.Errorf("multi-line\nerror\nmessage"),
		nil,
	} {
		n.NotifyBuildFailure("nuitka", err)
	}
}

func TestNotifier_ConcurrentNotifications(t *testing.T) {
	n := newDisabled()

	done := make(chan bool, 5)
	for i := 0; i < 5; i++ {
		go func(idx int) {
			n.NotifyBuildSuccess(fmt.Sprintf("engine-%d", idx), time.Second)
			done <- true
		}(i)
	}
	for i := 0; i < 5; i++ {
		<-done
	}
}
