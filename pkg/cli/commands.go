package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkforge/arkforge/pkg/actions"
	"github.com/arkforge/arkforge/pkg/actions/builtin"
	"github.com/arkforge/arkforge/pkg/config"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/notifier"
	"github.com/arkforge/arkforge/pkg/orchestrator"
	"github.com/arkforge/arkforge/pkg/process"
	"github.com/arkforge/arkforge/pkg/registry"
	"github.com/arkforge/arkforge/pkg/types"
)

// runtime bundles the wired components every command needs.
type runtime struct {
	log     logger.Logger
	store   *config.Store
	engines *registry.Registry
	actions *actions.Registry
	orch    *orchestrator.Orchestrator
	global  types.GlobalConfig
}

func newRuntime() (*runtime, error) {
	log := logger.CreateLogger("", verbosity)

	store, err := config.NewStore(configDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}

	globalCfg, err := config.LoadGlobalConfig(store.ConfigDir())
	if err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}

	engines := registry.New(log, nil)
	if err := engines.RegisterBuiltins(); err != nil {
		return nil, err
	}
	// External plugins are discovered from the config directory when
	// present; missing dir just means none are installed.
	pluginRoot := filepath.Join(store.ConfigDir(), "plugins")
	if info, statErr := os.Stat(pluginRoot); statErr == nil && info.IsDir() {
		engines.RegisterBuiltinFactories()
		report := engines.Discover(pluginRoot)
		for _, e := range report.Errors {
			log.Warn("Plugin failed to load",
				logger.WithField("plugin", e.Path),
				logger.WithField("error", e.Reason))
		}
	}

	actionReg := actions.NewRegistry()
	if err := builtin.RegisterAll(actionReg); err != nil {
		return nil, err
	}

	runner := process.NewRunner(log)
	notify := notifier.New(notifier.Config{Enabled: true}, log)
	orch := orchestrator.New(log, engines, actionReg, store, runner, notify, *globalCfg)

	return &runtime{
		log:     log,
		store:   store,
		engines: engines,
		actions: actionReg,
		orch:    orch,
		global:  *globalCfg,
	}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM,
// routed through the process manager so cleanup handlers run in order.
func signalContext(log logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	mgr := process.NewManager(log)
	mgr.RegisterShutdownHandler(cancel)
	mgr.Start(ctx)
	return ctx, func() {
		cancel()
		mgr.Stop()
	}
}

func newBuildCmd() *cobra.Command {
	var engineID string

	cmd := &cobra.Command{
		Use:   "build [file]",
		Short: "Build an entry file with a packaging engine",
		Long:  `Run the pre-build action pipeline, then package the entry file with the selected engine.`,
		Args:  cobra.ExactArgs(1),
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

			report, err := rt.orch.Build(ctx, types.BuildRequest{
				EngineID:     engineID,
				File:         args[0],
				WorkspaceDir: ws,
				Timestamp:    time.Now(),
			})
			if err != nil {
				return err
			}

			printReport(report)
			if report.Status != types.BuildStatusSucceeded {
				return fmt.Errorf("build %s", report.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&engineID, "engine", "e", "pyinstaller", "packaging engine (pyinstaller, nuitka, cx_freeze)")
	return cmd
}

func printReport(report *types.BuildReport) {
	for _, step := range report.Steps {
		mark := "✅"
		if !step.OK {
			mark = "❌"
		}
		line := fmt.Sprintf("%s %-10s %s", mark, step.Step, step.Elapsed.Round(time.Millisecond))
		if step.Detail != "" {
			line += "  " + step.Detail
		}
		fmt.Println(line)
	}

	switch report.Status {
	case types.BuildStatusSucceeded:
		printSuccess(fmt.Sprintf("Build succeeded in %s", report.Duration.Round(time.Millisecond)))
	case types.BuildStatusAborted:
		printWarning("Build aborted before execution")
	default:
		printError(fmt.Sprintf("Build %s after %s", report.Status, report.Duration.Round(time.Millisecond)))
	}
}

func newEnginesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "Manage packaging engines",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available engines",
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tVERSION\tDESCRIPTION")
				for _, desc := range rt.engines.List() {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						desc.ID, desc.Name, desc.Version, desc.Description)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "discover [dir]",
			Short: "Scan a directory for engine plugins",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime()
				if err != nil {
					return err
				}

				rt.engines.RegisterBuiltinFactories()
				report := rt.engines.Discover(args[0])

				for _, id := range report.Registered {
					printSuccess("registered " + id)
				}
				for _, issue := range report.Incompatible {
					printWarning(fmt.Sprintf("%s excluded: %s", issue.PluginID, issue.Reason))
				}
				for _, e := range report.Errors {
					printError(fmt.Sprintf("%s: %s", e.Path, e.Reason))
				}
				if report.Skipped {
					printInfo("discovery disabled")
				}
				return nil
			},
		},
	)
	return cmd
}

func newActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Manage pre-build actions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered pre-build actions",
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tCRITICAL")
				for _, p := range rt.actions.List() {
					d := p.Describe()
					fmt.Fprintf(w, "%s\t%s\t%d\t%v\n", d.ID, d.Name, d.Priority, d.Critical)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the pre-build pipeline without building",
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
				cfg, err := config.LoadPipelineConfig(ws)
				if err != nil {
					return err
				}

				pipeline := actions.NewPipeline(rt.actions, rt.log, ws, cfg, rt.global)
				run, err := pipeline.Run(ctx)
				if err != nil {
					return err
				}

				for _, r := range run.Results {
					switch {
					case r.Skipped:
						printInfo(fmt.Sprintf("%s skipped", r.PluginID))
					case r.Result.Success():
						printSuccess(fmt.Sprintf("%s ok (%s)", r.PluginID,
							r.Result.Duration.Round(time.Millisecond)))
					default:
						printError(fmt.Sprintf("%s failed: %s", r.PluginID, r.Result.Err))
					}
				}
				if !run.OK() {
					return fmt.Errorf("pipeline %s", run.Status)
				}
				printSuccess(fmt.Sprintf("Pipeline completed in %s", run.Duration.Round(time.Millisecond)))
				return nil
			},
		},
	)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and reset engine configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show [engine]",
			Short: "Print an engine's effective configuration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime()
				if err != nil {
					return err
				}

				eng, ok := rt.engines.Engine(args[0])
				if !ok {
					return fmt.Errorf("unknown engine %q", args[0])
				}

				schema := map[string]interface{}{}
				if s, ok := eng.(interface{ ConfigSchema() map[string]interface{} }); ok {
					schema = s.ConfigSchema()
				}
				doc := rt.store.Load(args[0], schema)

				out, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset [engine]",
			Short: "Delete an engine's persisted configuration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime()
				if err != nil {
					return err
				}
				if !rt.store.Delete(args[0]) {
					return fmt.Errorf("failed to delete configuration for %q", args[0])
				}
				printSuccess("configuration reset for " + args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration directory",
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime()
				if err != nil {
					return err
				}
				fmt.Println(rt.store.ConfigDir())
				return nil
			},
		},
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ArkForge",
		Long:  `Print the version number of ArkForge`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("🔨 ArkForge v%s\n", version)
		},
	}
}
