// Package notifier provides desktop build notifications
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// BuildNotifier sends desktop notifications for build lifecycle
// events. A disabled notifier is a cheap no-op.
type BuildNotifier struct {
	enabled   bool
	withSound bool
	logger    logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled   bool
	WithSound bool
}

// New creates a new build notifier
func New(config Config, log logger.Logger) *BuildNotifier {
	return &BuildNotifier{
		enabled:   config.Enabled,
		withSound: config.WithSound,
		logger:    log,
	}
}

var _ interfaces.BuildNotifier = (*BuildNotifier)(nil)

// NotifyBuildStart notifies that a build has started
func (n *BuildNotifier) NotifyBuildStart(engine string) {
	if !n.enabled {
		return
	}
	n.send("🔨 ArkForge", fmt.Sprintf("Building with %s...", engine), false)
}

// NotifyBuildSuccess notifies that a build succeeded
func (n *BuildNotifier) NotifyBuildSuccess(engine string, duration time.Duration) {
	if !n.enabled {
		return
	}
	n.send("✅ Build Succeeded",
		fmt.Sprintf("%s finished in %s", engine, formatDuration(duration)), n.withSound)
}

// NotifyBuildFailure notifies that a build failed
func (n *BuildNotifier) NotifyBuildFailure(engine string, err error) {
	if !n.enabled {
		return
	}
	n.send("❌ Build Failed", fmt.Sprintf("%s: %v", engine, err), n.withSound)
}

// NotifyPipelineResult summarizes a finished pre-build pipeline run.
// Successful runs stay silent; only failures interrupt the user.
func (n *BuildNotifier) NotifyPipelineResult(run *types.PipelineRun) {
	if !n.enabled || run == nil || run.OK() {
		return
	}

	failed := 0
	for i := range run.Results {
		if !run.Results[i].Skipped && !run.Results[i].Result.Success() {
			failed++
		}
	}
	n.send("⚠️ Pre-Build Actions",
		fmt.Sprintf("%d of %d actions failed", failed, len(run.Results)), false)
}

func (n *BuildNotifier) send(title, message string, sound bool) {
	if err := beeep.Notify(title, message, ""); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
	}
	if sound {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
