// Package scenario provides YAML loading for scenario definitions.
package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/replyflow/replyflow/internal/models"
)

// LoadFile parses a single scenario definition from a YAML file.
func LoadFile(path string) (*models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	var sc models.Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	return &sc, nil
}

// LoadDir loads every *.yaml and *.yml scenario file in dir and registers it.
// Files are processed in lexical order so registration order (the priority
// tiebreak) is reproducible across restarts. The first failure aborts loading.
func LoadDir(dir string, reg *Registry) (int, error) {
	slog.Debug("LoadDir loading scenarios", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read scenario directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		sc, err := LoadFile(path)
		if err != nil {
			return 0, err
		}
		if err := reg.Register(sc); err != nil {
			return 0, fmt.Errorf("failed to register scenario from %s: %w", path, err)
		}
		slog.Debug("LoadDir registered scenario", "file", path, "scenarioID", sc.ID)
	}

	slog.Info("LoadDir loaded scenarios", "dir", dir, "count", len(files))
	return len(files), nil
}
