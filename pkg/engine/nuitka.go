package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
)

// NuitkaEngine drives the Nuitka compiler.
type NuitkaEngine struct {
	Base
}

// NewNuitkaEngine creates the Nuitka engine.
func NewNuitkaEngine() *NuitkaEngine {
	return &NuitkaEngine{
		Base: Base{Meta: types.PluginDescriptor{
			ID:                  "nuitka",
			Name:                "Nuitka",
			Kind:                types.PluginKindEngine,
			Version:             "1.0.0",
			Description:         "Ahead-of-time compilation via Nuitka",
			RequiredCoreVersion: "1.0.0",
			RequiredSDKVersion:  "1.0.0",
			Capabilities:        []string{"standalone", "onefile", "lto", "tool-install"},
		}},
	}
}

// ConfigSchema returns the default configuration document.
func (e *NuitkaEngine) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"standalone":      true,
		"onefile":         false,
		"follow_imports":  true,
		"remove_output":   true,
		"output_dir":      "dist-nuitka",
		"output_filename": "",
		"enable_plugins":  []string{},
		"include_package": []string{},
		"lto":             "",
		"jobs":            0,
		"auto_install":    true,
	}
}

func (e *NuitkaEngine) config(env *Context) map[string]interface{} {
	return env.Config.Load(e.Meta.ID, e.ConfigSchema())
}

// Preflight checks that a python interpreter is available; Nuitka runs
// as a python module.
func (e *NuitkaEngine) Preflight(ctx context.Context, env *Context, file string) bool {
	if _, err := exec.LookPath("python3"); err != nil {
		env.Append("python3 not found on PATH")
		return false
	}
	return true
}

// EnsureTool installs Nuitka via pip as a background task.
func (e *NuitkaEngine) EnsureTool(ctx context.Context, env *Context) *InstallTask {
	cfg := e.config(env)
	if !boolOpt(cfg, "auto_install", true) {
		return nil
	}
	env.Append("📦 Installing nuitka…")
	return StartInstall(ctx, env.Runner, env, "nuitka",
		[]string{"python3", "-m", "pip", "install", "nuitka"})
}

// BuildCommand resolves the nuitka argv for the given entry file.
func (e *NuitkaEngine) BuildCommand(ctx context.Context, env *Context, file string) ([]string, error) {
	if file == "" {
		return nil, fmt.Errorf("nuitka: no entry file")
	}
	cfg := e.config(env)

	argv := []string{"python3", "-m", "nuitka"}
	if boolOpt(cfg, "standalone", true) {
		argv = append(argv, "--standalone")
	}
	if boolOpt(cfg, "onefile", false) {
		argv = append(argv, "--onefile")
	}
	if boolOpt(cfg, "follow_imports", true) {
		argv = append(argv, "--follow-imports")
	}
	if boolOpt(cfg, "remove_output", true) {
		argv = append(argv, "--remove-output")
	}
	argv = append(argv, "--assume-yes-for-downloads")
	for _, plug := range stringListOpt(cfg, "enable_plugins") {
		argv = append(argv, "--enable-plugin="+plug)
	}
	for _, pkg := range stringListOpt(cfg, "include_package") {
		argv = append(argv, "--include-package="+pkg)
	}
	if out := stringOpt(cfg, "output_dir", ""); out != "" {
		argv = append(argv, "--output-dir="+out)
	}
	if name := stringOpt(cfg, "output_filename", ""); name != "" {
		argv = append(argv, "--output-filename="+name)
	}
	if lto := stringOpt(cfg, "lto", ""); lto != "" {
		argv = append(argv, "--lto="+lto)
	}
	if jobs := intOpt(cfg, "jobs", 0); jobs > 0 {
		argv = append(argv, fmt.Sprintf("--jobs=%d", jobs))
	}
	argv = append(argv, file)
	return argv, nil
}

// OutputDirectory reports the configured output dir.
func (e *NuitkaEngine) OutputDirectory(env *Context) string {
	cfg := e.config(env)
	out := stringOpt(cfg, "output_dir", "dist-nuitka")
	return filepath.Join(env.WorkspaceDir, out)
}

// OnSuccess records where the artifact landed.
func (e *NuitkaEngine) OnSuccess(env *Context, file string) {
	if env.Log != nil {
		env.Log.Success("Nuitka build finished",
			logger.WithField("file", file),
			logger.WithField("output", e.OutputDirectory(env)))
	}
}
