package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/arkforge/arkforge/pkg/engine"
	"github.com/arkforge/arkforge/pkg/logger"
	"github.com/arkforge/arkforge/pkg/types"
	"github.com/arkforge/arkforge/pkg/version"
)

// Manifest file names probed inside each plugin directory, in order.
var manifestNames = []string{"plugin.yaml", "plugin.yml", "plugin.json"}

// DiscoveryError records one plugin that failed to load. Discovery of
// the remaining plugins continues.
type DiscoveryError struct {
	PluginID string `json:"pluginId"`
	Path     string `json:"path"`
	Reason   string `json:"reason"`
}

// CompatibilityIssue records one plugin excluded by version gating.
type CompatibilityIssue struct {
	PluginID string `json:"pluginId"`
	Reason   string `json:"reason"`
}

// DiscoveryReport aggregates the outcome of one Discover pass.
type DiscoveryReport struct {
	Registered   []string             `json:"registered"`
	Errors       []DiscoveryError     `json:"errors,omitempty"`
	Incompatible []CompatibilityIssue `json:"incompatible,omitempty"`
	Skipped      bool                 `json:"skipped,omitempty"`
}

// Discover scans root for plugin directories, loads each manifest,
// constructs the engine through its registered factory, version-gates
// it, and registers it. A failure in one plugin never aborts discovery
// of the rest. Load is two-phase: the instance is fully constructed
// before Register is called, so registry state never depends on a
// partial load.
func (r *Registry) Discover(root string) *DiscoveryReport {
	report := &DiscoveryReport{}

	if r.DisableDiscovery {
		report.Skipped = true
		if r.logger != nil {
			r.logger.Info("plugin discovery disabled")
		}
		return report
	}

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		report.Errors = append(report.Errors, DiscoveryError{
			Path:   root,
			Reason: fmt.Sprintf("read plugin root: %v", err),
		})
		return report
	}

	// Stable scan order regardless of directory ordering
	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(root, name)
		r.discoverOne(dir, report)
	}

	if r.logger != nil {
		r.logger.Info("plugin discovery finished",
			logger.WithField("registered", len(report.Registered)),
			logger.WithField("errors", len(report.Errors)),
			logger.WithField("incompatible", len(report.Incompatible)))
	}
	return report
}

func (r *Registry) discoverOne(dir string, report *DiscoveryReport) {
	desc, path, err := readManifest(dir)
	if err != nil {
		report.Errors = append(report.Errors, DiscoveryError{
			Path:   dir,
			Reason: err.Error(),
		})
		return
	}

	if ok, reason := r.validator.Validate(desc, version.CoreVersion, version.SDKVersion); !ok {
		report.Incompatible = append(report.Incompatible, CompatibilityIssue{
			PluginID: desc.ID,
			Reason:   reason,
		})
		if r.logger != nil {
			r.logger.Warn("excluding incompatible plugin", logger.WithField("id", desc.ID))
		}
		return
	}

	r.mu.RLock()
	factory, ok := r.factories[desc.ID]
	r.mu.RUnlock()
	if !ok {
		report.Errors = append(report.Errors, DiscoveryError{
			PluginID: desc.ID,
			Path:     path,
			Reason:   fmt.Sprintf("no factory registered for plugin %q", desc.ID),
		})
		return
	}

	instance, err := safeConstruct(factory, desc)
	if err != nil {
		report.Errors = append(report.Errors, DiscoveryError{
			PluginID: desc.ID,
			Path:     path,
			Reason:   err.Error(),
		})
		return
	}

	if err := r.Register(instance); err != nil {
		report.Errors = append(report.Errors, DiscoveryError{
			PluginID: desc.ID,
			Path:     path,
			Reason:   err.Error(),
		})
		return
	}

	report.Registered = append(report.Registered, desc.ID)
}

// safeConstruct contains factory panics so third-party plugin code
// cannot crash the host during discovery.
func safeConstruct(factory Factory, desc types.PluginDescriptor) (eng engine.Engine, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			eng = nil
			err = fmt.Errorf("plugin %q panicked during construction: %v", desc.ID, rec)
		}
	}()
	return factory(desc)
}

func readManifest(dir string) (types.PluginDescriptor, string, error) {
	var desc types.PluginDescriptor

	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		// yaml.v3 handles JSON input as well
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return desc, path, fmt.Errorf("parse manifest %s: %w", name, err)
		}
		if desc.ID == "" {
			return desc, path, fmt.Errorf("manifest %s: missing plugin id", name)
		}
		return desc, path, nil
	}

	return desc, dir, fmt.Errorf("no plugin manifest in %s", dir)
}
