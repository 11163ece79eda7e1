package results

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/pkg/errors"
)

// DefaultDir is the results directory relative to the working directory.
const DefaultDir = "results"

// Store persists result documents as JSON files under a directory, with
// transcript logs in a logs/ subdirectory alongside them.
type Store struct {
	dir string
}

// NewStore creates the results directory if needed and returns a store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create results directory")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the results directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the canonical result file path for a scenario/mode pair.
func (s *Store) Path(scenario, mode string) string {
	return filepath.Join(s.dir, scenario+"-"+mode+".json")
}

// LogPath returns the transcript log path for a scenario/mode pair,
// creating the logs directory if needed.
func (s *Store) LogPath(scenario, mode string) (string, error) {
	logsDir := filepath.Join(s.dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create logs directory")
	}
	return filepath.Join(logsDir, scenario+"-"+mode+".log"), nil
}

// Save writes the document to its canonical path and returns that path.
func (s *Store) Save(doc *Document) (string, error) {
	path := s.Path(doc.Scenario, doc.Mode)
	if err := WriteDocument(doc, path); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads the document for a scenario/mode pair.
func (s *Store) Load(scenario, mode string) (*Document, error) {
	return LoadDocument(s.Path(scenario, mode))
}

// List loads every result document in the store, newest first.
// Unreadable files are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read results directory")
	}

	var docs []*Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		doc, err := LoadDocument(path)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("skipping unreadable result file")
			continue
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Timestamp != docs[j].Timestamp {
			return docs[i].Timestamp > docs[j].Timestamp
		}
		return docs[i].Scenario < docs[j].Scenario
	})
	return docs, nil
}

// WriteDocument writes a result document atomically: marshal, write to a
// temp file, then rename so no partial JSON is ever visible at path.
func WriteDocument(doc *Document, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal result document")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create result directory")
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write temporary result file")
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to rename temporary result file")
	}
	return nil
}

// LoadDocument reads a result document from path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("result not found: %s", path)
		}
		return nil, errors.Wrap(err, "failed to read result file")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse result file %s", path)
	}
	return &doc, nil
}
