package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/arkforge/arkforge/pkg/types"
	"github.com/arkforge/arkforge/pkg/workspace"
)

// pipelineDocNames lists the workspace pipeline document names in
// precedence order. The first one found wins.
var pipelineDocNames = []string{
	"bcasl.yaml",
	"bcasl.yml",
	"bcasl.json",
	".bcasl.json",
}

// DefaultPipelineConfig returns the pipeline configuration used when a
// workspace carries no document. VCS metadata, virtualenvs and build
// output stay out of enumeration unless a document overrides the
// exclude set.
func DefaultPipelineConfig() *types.PipelineConfig {
	return &types.PipelineConfig{
		FilePatterns:    []string{"**/*"},
		ExcludePatterns: workspace.DefaultExcludePatterns(),
		Options:         types.PipelineOptions{},
		Plugins:         map[string]types.ActionSettings{},
	}
}

// FindPipelineDocument returns the path of the workspace pipeline
// document, or "" when the workspace has none.
func FindPipelineDocument(workspaceDir string) string {
	for _, name := range pipelineDocNames {
		p := filepath.Join(workspaceDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoadPipelineConfig reads the workspace pipeline document and merges
// it over the defaults. A workspace without a document yields the
// defaults; a malformed document is an error.
func LoadPipelineConfig(workspaceDir string) (*types.PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	path := FindPipelineDocument(workspaceDir)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}

	loaded := &types.PipelineConfig{}
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, loaded); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, loaded); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
		}
	}

	mergePipelineConfig(cfg, loaded)
	return cfg, nil
}

func mergePipelineConfig(dst, src *types.PipelineConfig) {
	if len(src.FilePatterns) > 0 {
		dst.FilePatterns = src.FilePatterns
	}
	if len(src.ExcludePatterns) > 0 {
		dst.ExcludePatterns = src.ExcludePatterns
	}
	if len(src.RequiredFiles) > 0 {
		dst.RequiredFiles = src.RequiredFiles
	}
	dst.Options = src.Options
	if len(src.Plugins) > 0 {
		dst.Plugins = src.Plugins
	}
	if len(src.PluginOrder) > 0 {
		dst.PluginOrder = src.PluginOrder
	}
}
