// Package loader reads score definitions from YAML files on disk and
// compiles them into a registry.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openclinical/klinscore/internal/domain"
	"github.com/openclinical/klinscore/internal/score"
)

// LoadFile reads and compiles a single definition. The score ID is the
// filename stem.
func LoadFile(path string) (*score.CompiledScore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def domain.ScoreDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	cs, err := score.Compile(&def)
	if err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", def.ID, err)
	}
	return cs, nil
}

// LoadDir scans a directory for *.yaml definitions and compiles each
// one. Files whose name contains "template" are skipped, as are files
// that fail to parse or validate; failures are logged and do not stop
// the load. Returns the compiled scores and the number of files
// skipped due to errors.
func LoadDir(dir string, logger *slog.Logger) ([]*score.CompiledScore, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read scores directory %s: %w", dir, err)
	}

	var scores []*score.CompiledScore
	skipped := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if strings.Contains(strings.ToLower(name), "template") {
			continue
		}

		cs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("skipping score definition", "file", name, "error", err)
			skipped++
			continue
		}

		logger.Info("loaded score definition",
			"id", cs.Definition.ID,
			"name", cs.Definition.Name,
			"specialty", cs.Definition.Specialty)
		scores = append(scores, cs)
	}

	return scores, skipped, nil
}

// LoadRegistry loads a directory into a fresh registry.
func LoadRegistry(dir string, logger *slog.Logger) (*score.Registry, error) {
	scores, skipped, err := LoadDir(dir, logger)
	if err != nil {
		return nil, err
	}

	registry := score.NewRegistry()
	registry.Replace(scores)
	logger.Info("score catalog loaded", "count", registry.Count(), "skipped", skipped)
	return registry, nil
}
