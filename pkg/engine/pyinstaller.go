package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// PyInstallerEngine drives the PyInstaller packaging tool.
type PyInstallerEngine struct {
	Base
}

// NewPyInstallerEngine creates the PyInstaller engine.
func NewPyInstallerEngine() *PyInstallerEngine {
	return &PyInstallerEngine{
		Base: Base{Meta: types.PluginDescriptor{
			ID:                  "pyinstaller",
			Name:                "PyInstaller",
			Kind:                types.PluginKindEngine,
			Version:             "1.0.0",
			Description:         "Standalone executables via PyInstaller",
			RequiredCoreVersion: "1.0.0",
			RequiredSDKVersion:  "1.0.0",
			Capabilities:        []string{"onefile", "windowed", "tool-install"},
		}},
	}
}

// ConfigSchema returns the default configuration document merged under
// any persisted settings.
func (e *PyInstallerEngine) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"onefile":        true,
		"windowed":       false,
		"noconfirm":      true,
		"clean":          true,
		"noupx":          true,
		"name":           "",
		"distpath":       "dist",
		"workpath":       "build",
		"hidden_import":  []string{},
		"exclude_module": []string{},
		"auto_install":   true,
	}
}

func (e *PyInstallerEngine) config(env *Context) map[string]interface{} {
	return env.Config.Load(e.Meta.ID, e.ConfigSchema())
}

// Preflight checks that the pyinstaller program is available.
func (e *PyInstallerEngine) Preflight(ctx context.Context, env *Context, file string) bool {
	if _, err := exec.LookPath("pyinstaller"); err != nil {
		env.Append("pyinstaller not found on PATH")
		return false
	}
	return true
}

// EnsureTool installs PyInstaller via pip as a background task.
func (e *PyInstallerEngine) EnsureTool(ctx context.Context, env *Context) *InstallTask {
	cfg := e.config(env)
	if !boolOpt(cfg, "auto_install", true) {
		return nil
	}
	env.Append("📦 Installing pyinstaller…")
	return StartInstall(ctx, env.Runner, env, "pyinstaller",
		[]string{"python3", "-m", "pip", "install", "pyinstaller"})
}

// BuildCommand resolves the pyinstaller argv for the given entry file.
func (e *PyInstallerEngine) BuildCommand(ctx context.Context, env *Context, file string) ([]string, error) {
	if file == "" {
		return nil, fmt.Errorf("pyinstaller: no entry file")
	}
	cfg := e.config(env)

	argv := []string{"pyinstaller"}
	if boolOpt(cfg, "onefile", true) {
		argv = append(argv, "--onefile")
	}
	if boolOpt(cfg, "windowed", false) {
		argv = append(argv, "--windowed")
	}
	if boolOpt(cfg, "noconfirm", true) {
		argv = append(argv, "--noconfirm")
	}
	if boolOpt(cfg, "clean", true) {
		argv = append(argv, "--clean")
	}
	if boolOpt(cfg, "noupx", true) {
		argv = append(argv, "--noupx")
	}
	if name := stringOpt(cfg, "name", ""); name != "" {
		argv = append(argv, "--name="+name)
	}
	argv = append(argv, "--distpath="+stringOpt(cfg, "distpath", "dist"))
	argv = append(argv, "--workpath="+stringOpt(cfg, "workpath", "build"))
	for _, mod := range stringListOpt(cfg, "hidden_import") {
		argv = append(argv, "--hidden-import="+mod)
	}
	for _, mod := range stringListOpt(cfg, "exclude_module") {
		argv = append(argv, "--exclude-module="+mod)
	}
	argv = append(argv, file)
	return argv, nil
}

// OutputDirectory reports the configured dist path.
func (e *PyInstallerEngine) OutputDirectory(env *Context) string {
	cfg := e.config(env)
	return filepath.Join(env.WorkspaceDir, stringOpt(cfg, "distpath", "dist"))
}

// OnSuccess records where the artifact landed.
func (e *PyInstallerEngine) OnSuccess(env *Context, file string) {
	if env.Log != nil {
		env.Log.Success("PyInstaller build finished",
			logger.WithField("file", file),
			logger.WithField("output", e.OutputDirectory(env)))
	}
}
