package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/arkforge/arkforge/pkg/types"
)

// CxFreezeEngine drives cx_Freeze.
type CxFreezeEngine struct {
	Base
}

// NewCxFreezeEngine creates the cx_Freeze engine.
func NewCxFreezeEngine() *CxFreezeEngine {
	return &CxFreezeEngine{
		Base: Base{Meta: types.PluginDescriptor{
			ID:                  "cx_freeze",
			Name:                "cx_Freeze",
			Kind:                types.PluginKindEngine,
			Version:             "1.0.0",
			Description:         "Frozen executables via cx_Freeze",
			RequiredCoreVersion: "1.0.0",
			RequiredSDKVersion:  "1.0.0",
			Capabilities:        []string{"tool-install"},
		}},
	}
}

// ConfigSchema returns the default configuration document.
func (e *CxFreezeEngine) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"target_dir":   "dist-cx",
		"silent":       true,
		"packages":     []string{},
		"excludes":     []string{},
		"auto_install": true,
	}
}

func (e *CxFreezeEngine) config(env *Context) map[string]interface{} {
	return env.Config.Load(e.Meta.ID, e.ConfigSchema())
}

// Preflight checks for the cxfreeze entry point.
func (e *CxFreezeEngine) Preflight(ctx context.Context, env *Context, file string) bool {
	if _, err := exec.LookPath("cxfreeze"); err != nil {
		env.Append("cxfreeze not found on PATH")
		return false
	}
	return true
}

// EnsureTool installs cx_Freeze via pip as a background task.
func (e *CxFreezeEngine) EnsureTool(ctx context.Context, env *Context) *InstallTask {
	cfg := e.config(env)
	if !boolOpt(cfg, "auto_install", true) {
		return nil
	}
	env.Append("📦 Installing cx_Freeze…")
	return StartInstall(ctx, env.Runner, env, "cx_Freeze",
		[]string{"python3", "-m", "pip", "install", "cx_Freeze"})
}

// BuildCommand resolves the cxfreeze argv for the given entry file.
func (e *CxFreezeEngine) BuildCommand(ctx context.Context, env *Context, file string) ([]string, error) {
	if file == "" {
		return nil, fmt.Errorf("cx_freeze: no entry file")
	}
	cfg := e.config(env)

	argv := []string{"cxfreeze", file}
	argv = append(argv, "--target-dir="+stringOpt(cfg, "target_dir", "dist-cx"))
	if boolOpt(cfg, "silent", true) {
		argv = append(argv, "--silent")
	}
	for _, pkg := range stringListOpt(cfg, "packages") {
		argv = append(argv, "--packages="+pkg)
	}
	for _, mod := range stringListOpt(cfg, "excludes") {
		argv = append(argv, "--excludes="+mod)
	}
	return argv, nil
}

// OutputDirectory reports the configured target dir.
func (e *CxFreezeEngine) OutputDirectory(env *Context) string {
	cfg := e.config(env)
	return filepath.Join(env.WorkspaceDir, stringOpt(cfg, "target_dir", "dist-cx"))
}
