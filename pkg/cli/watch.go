package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkforge/arkforge/pkg/actions"
	"github.com/arkforge/arkforge/pkg/config"
	"github.com/arkforge/arkforge/pkg/types"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the pre-build pipeline when its config changes",
		Long: `Watch the workspace pipeline document (bcasl.yaml and friends) and
re-run the pre-build action pipeline each time it is edited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(rt.log)
			defer cancel()

			ws, err := filepath.Abs(workspaceDir)
			if err != nil {
				return err
			}

			runOnce := func(cfg *types.PipelineConfig) {
				pipeline := actions.NewPipeline(rt.actions, rt.log, ws, cfg, rt.global)
				run, runErr := pipeline.Run(ctx)
				if runErr != nil {
					printError(runErr.Error())
					return
				}
				if run.OK() {
					printSuccess(fmt.Sprintf("Pipeline completed in %s",
						run.Duration.Round(time.Millisecond)))
				} else {
					printError(fmt.Sprintf("Pipeline %s", run.Status))
				}
			}

			cfg, err := config.LoadPipelineConfig(ws)
			if err != nil {
				return err
			}
			runOnce(cfg)

			watcher := config.NewReloadWatcher(ws, rt.log)
			watcher.AddCallback(func(cfg *types.PipelineConfig, cbErr error) {
				if cbErr != nil {
					printError(cbErr.Error())
					return
				}
				printInfo("Pipeline config changed, re-running")
				runOnce(cfg)
			})
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()

			printInfo("Watching " + ws + " (ctrl-c to stop)")
			<-ctx.Done()
			return nil
		},
	}
}
