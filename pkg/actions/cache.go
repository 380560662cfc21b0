package actions

import (
	"sort"
	"strings"
	"sync"

	"github.com/arkforge/arkforge/pkg/workspace"
)

// enumerationCache memoizes file enumeration per pattern set for the
// lifetime of a single pipeline run. It is never shared across runs,
// so entries cannot go stale within a run's snapshot semantics.
type enumerationCache struct {
	root string

	mu      sync.RWMutex
	entries map[string][]string
}

func newEnumerationCache(root string) *enumerationCache {
	return &enumerationCache{
		root:    root,
		entries: make(map[string][]string),
	}
}

// cacheKey is insensitive to pattern order.
func cacheKey(include, exclude []string) string {
	inc := append([]string(nil), include...)
	exc := append([]string(nil), exclude...)
	sort.Strings(inc)
	sort.Strings(exc)
	return strings.Join(inc, "\x00") + "\x01" + strings.Join(exc, "\x00")
}

// files returns the enumeration for the pattern set, computing and
// memoizing it on first use.
func (c *enumerationCache) files(include, exclude []string) ([]string, error) {
	key := cacheKey(include, exclude)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	found, err := workspace.EnumerateFiles(c.root, include, exclude)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = found
	c.mu.Unlock()
	return found, nil
}

// warm precomputes the enumeration for the pattern set, typically
// before parallel dispatch.
func (c *enumerationCache) warm(include, exclude []string) error {
	_, err := c.files(include, exclude)
	return err
}
