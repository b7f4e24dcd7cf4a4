package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// FixtureKey identifies a setup fixture across runs: a template of a given
// name with the given roles in routing order.
type FixtureKey struct {
	Name  string
	Roles []string
}

// String returns the key under which the fixture is cached.
func (k FixtureKey) String() string {
	return k.Name + "|" + strings.Join(k.Roles, ",")
}

// Matches reports whether a template with this name and roles is the fixture.
func (k FixtureKey) Matches(name string, roles []string) bool {
	return name == k.Name && slices.Equal(roles, k.Roles)
}

// Entry is one cached fixture.
type Entry struct {
	TemplateID string    `json:"templateId"`
	Name       string    `json:"name"`
	Roles      []string  `json:"roles,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type cacheFile struct {
	Version   int              `json:"version"`
	Templates map[string]Entry `json:"templates"`
}

const cacheVersion = 1

// Cache is the on-disk record of setup fixtures created by earlier runs. It
// is passed to whoever needs it; there is no process-wide instance.
type Cache struct {
	mu   sync.RWMutex
	path string
}

// NewCache returns a cache stored at path. The file is created on first Put.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the backing file.
func (c *Cache) Path() string { return c.path }

// Get returns the cached entry for key.
func (c *Cache) Get(key FixtureKey) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := c.loadLocked()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := f.Templates[key.String()]
	return e, ok, nil
}

// Put records the entry for key.
func (c *Cache) Put(key FixtureKey, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.loadLocked()
	if err != nil {
		return err
	}
	f.Templates[key.String()] = e
	return c.saveLocked(f)
}

// Delete forgets key. Deleting a missing key is not an error.
func (c *Cache) Delete(key FixtureKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := f.Templates[key.String()]; !ok {
		return nil
	}
	delete(f.Templates, key.String())
	return c.saveLocked(f)
}

// Entries returns every cached entry by key.
func (c *Cache) Entries() (map[string]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := c.loadLocked()
	if err != nil {
		return nil, err
	}
	return f.Templates, nil
}

func (c *Cache) loadLocked() (*cacheFile, error) {
	empty := &cacheFile{Version: cacheVersion, Templates: map[string]Entry{}}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}
		return nil, fmt.Errorf("failed to read setup cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse setup cache %s: %w", c.path, err)
	}
	if f.Version != cacheVersion {
		// Entries of another format are dropped rather than misread.
		return empty, nil
	}
	if f.Templates == nil {
		f.Templates = map[string]Entry{}
	}
	return &f, nil
}

func (c *Cache) saveLocked(f *cacheFile) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create setup cache directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal setup cache: %w", err)
	}

	// Readers never observe a partially written file.
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".setup-cache-*")
	if err != nil {
		return fmt.Errorf("failed to write setup cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write setup cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write setup cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write setup cache: %w", err)
	}
	return nil
}
