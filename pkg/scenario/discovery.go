package scenario

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/pkg/errors"
)

// Discover loads every scenario under root, sorted by name. Directories that
// fail to load are skipped with a warning so one broken scenario does not hide
// the rest.
func Discover(ctx context.Context, root string) ([]*Scenario, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read scenarios directory %s", root)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "scenario.json")); err != nil {
			continue
		}
		s, err := Load(dir)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("dir", dir).Warn("skipping unloadable scenario")
			continue
		}
		scenarios = append(scenarios, s)
	}

	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].Name < scenarios[j].Name
	})
	return scenarios, nil
}

// Find loads the named scenario from root.
func Find(root, name string) (*Scenario, error) {
	return Load(filepath.Join(root, name))
}
