package model

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrModelNotFound is returned when a requested model cannot be found.
var ErrModelNotFound = errors.New("model not found")

// Manager discovers and serves model bundles.
type Manager struct {
	modelDir string
	bundles  map[string]*Bundle
	mu       sync.RWMutex
}

// NewManager creates a Manager rooted at modelDir.
func NewManager(modelDir string) *Manager {
	return &Manager{
		modelDir: modelDir,
		bundles:  make(map[string]*Bundle),
	}
}

// Discover scans the model directory for model.json files and loads them.
// Each subdirectory is expected to be one bundle. Unreadable or invalid
// manifests are skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bundles = make(map[string]*Bundle)

	info, err := os.Stat(m.modelDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.modelDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		bundlePath := filepath.Join(m.modelDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(bundlePath, "model.json"))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			continue
		}

		m.bundles[manifest.Name] = &Bundle{
			Manifest:   manifest,
			Path:       bundlePath,
			Executable: filepath.Join(bundlePath, manifest.Executable),
		}
	}

	return nil
}

// Get returns a bundle by name.
func (m *Manager) Get(name string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bundles[name]
	if !ok {
		return nil, ErrModelNotFound
	}
	return b, nil
}

// ByKind returns the bundle serving kind. When several match, the one with
// the lexically smallest name wins so the choice is stable.
func (m *Manager) ByKind(kind Kind) (*Bundle, error) {
	var match *Bundle
	for _, b := range m.List() {
		if b.Manifest.Kind == kind {
			match = b
			break
		}
	}
	if match == nil {
		return nil, ErrModelNotFound
	}
	return match, nil
}

// List returns all discovered bundles sorted by name.
func (m *Manager) List() []*Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bundles := make([]*Bundle, 0, len(m.bundles))
	for _, b := range m.bundles {
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].Manifest.Name < bundles[j].Manifest.Name
	})

	return bundles
}

// ModelDir returns the model directory path.
func (m *Manager) ModelDir() string {
	return m.modelDir
}
