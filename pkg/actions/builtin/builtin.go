// Package builtin provides the action plugins that ship with ArkForge.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkforge/arkforge/pkg/actions"
	"github.com/arkforge/arkforge/pkg/types"
)

// RegisterAll adds the built-in actions to the registry.
func RegisterAll(r *actions.Registry) error {
	for _, p := range []actions.Plugin{
		&RequiredFilesCheck{},
		&ArtifactScan{},
	} {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// RequiredFilesCheck verifies that every file the workspace document
// declares as required actually exists. It runs before anything else
// and is critical: a missing file aborts the pipeline.
type RequiredFilesCheck struct{}

func (c *RequiredFilesCheck) Describe() types.ActionDescriptor {
	return types.ActionDescriptor{
		ID:       "required_files",
		Name:     "Required Files Check",
		Priority: 0,
		Enabled:  true,
		Critical: true,
	}
}

func (c *RequiredFilesCheck) PreCompile(ctx *actions.Context) error {
	var missing []string
	for _, rel := range ctx.Config.RequiredFiles {
		path := filepath.Join(ctx.WorkspaceDir, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required files missing: %s", strings.Join(missing, ", "))
	}
	ctx.Log.Debug(fmt.Sprintf("All %d required files present", len(ctx.Config.RequiredFiles)))
	return nil
}

// ArtifactScan looks for stale build artifacts (bytecode caches,
// previous dist output) inside the configured file set and warns about
// them. Non-critical: findings never fail a build.
type ArtifactScan struct{}

func (a *ArtifactScan) Describe() types.ActionDescriptor {
	return types.ActionDescriptor{
		ID:       "artifact_scan",
		Name:     "Stale Artifact Scan",
		Priority: 10,
		Enabled:  true,
	}
}

var artifactMarkers = []string{
	".pyc",
	".pyo",
	".spec",
}

func (a *ArtifactScan) PreCompile(ctx *actions.Context) error {
	files, err := ctx.Files()
	if err != nil {
		return fmt.Errorf("failed to enumerate workspace: %w", err)
	}

	var stale []string
	for _, f := range files {
		for _, marker := range artifactMarkers {
			if strings.HasSuffix(f, marker) {
				stale = append(stale, f)
				break
			}
		}
		if strings.Contains(f, "__pycache__/") {
			stale = append(stale, f)
		}
	}

	if len(stale) > 0 {
		ctx.Log.Warn(fmt.Sprintf("Found %d stale build artifacts", len(stale)))
		for _, f := range stale {
			ctx.Log.Debug("stale artifact: " + f)
		}
	} else {
		ctx.Log.Debug(fmt.Sprintf("No stale artifacts among %d files", len(files)))
	}
	return nil
}
