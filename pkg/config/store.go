// Package config handles per-entity configuration persistence and the
// pipeline and global configuration documents.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/logger"
)

// Store persists one JSON document per entity id under
// <configDir>/engines/. All access to persisted documents goes
// through the store; access per entity id is serialized.
type Store struct {
	configDir  string
	enginesDir string
	logger     logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a config store rooted at configDir. An empty
// configDir resolves to ~/.arkforge.
func NewStore(configDir string, log logger.Logger) (*Store, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".arkforge")
	}

	s := &Store{
		configDir:  configDir,
		enginesDir: filepath.Join(configDir, "engines"),
		logger:     log,
		locks:      make(map[string]*sync.Mutex),
	}
	if err := os.MkdirAll(s.enginesDir, 0o755); err != nil {
		return nil, err
	}
	return s, nil
}

var _ interfaces.ConfigStore = (*Store)(nil)

// ConfigDir returns the root configuration directory.
func (s *Store) ConfigDir() string { return s.configDir }

func (s *Store) path(id string) string {
	return filepath.Join(s.enginesDir, id+".json")
}

// lockFor returns the per-entity mutex, creating it on first use.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Load returns the persisted document for id with missing keys filled
// from schema; persisted values always win. A missing, corrupt or
// unreadable document falls back to the schema silently.
func (s *Store) Load(id string, schema map[string]interface{}) map[string]interface{} {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	fallback := func() map[string]interface{} {
		if schema == nil {
			return map[string]interface{}{}
		}
		return cloneDocument(schema)
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return fallback()
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		if s.logger != nil {
			s.logger.Warn("corrupt config document, using schema defaults",
				logger.WithField("id", id))
		}
		return fallback()
	}

	if schema == nil {
		return doc
	}
	merged := cloneDocument(schema)
	for k, v := range doc {
		merged[k] = v
	}
	return merged
}

// Save atomically writes the document for id and reports success. A
// nil document is rejected and leaves any prior document intact.
func (s *Store) Save(id string, document map[string]interface{}) bool {
	if document == nil {
		return false
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return false
	}

	target := s.path(id)
	tmp, err := os.CreateTemp(s.enginesDir, "."+id+"-*.tmp")
	if err != nil {
		return false
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return false
	}
	return true
}

// Delete removes the document for id.
func (s *Store) Delete(id string) bool {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return false
	}
	return true
}

// Exists reports whether a document is persisted for id.
func (s *Store) Exists(id string) bool {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	_, err := os.Stat(s.path(id))
	return err == nil
}

// ListEntities returns the ids of all persisted documents, sorted.
func (s *Store) ListEntities() []string {
	entries, err := os.ReadDir(s.enginesDir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids
}

// cloneDocument deep-copies a document through JSON so schema maps are
// never shared with callers.
func cloneDocument(doc map[string]interface{}) map[string]interface{} {
	data, err := json.Marshal(doc)
	if err != nil {
		out := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		out = make(map[string]interface{}, len(doc))
		for k, v := range doc {
			out[k] = v
		}
	}
	return out
}
