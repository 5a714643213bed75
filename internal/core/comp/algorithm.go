package comp

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownAlgorithm is returned when a computation references an
// algorithm that is not loaded.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// PropertySpec is a property an algorithm declares, with its default.
type PropertySpec struct {
	Name    string `yaml:"name" json:"name"`
	Default string `yaml:"default" json:"default"`
}

// Algorithm is the executable definition a computation references.
type Algorithm struct {
	ID          int64
	Name        string
	ExecClass   string
	Description string
	Properties  []PropertySpec
	Fingerprint string // SHA-256 of the source file, empty for store-loaded algorithms
}

// PropertyNames returns the declared property names in declaration order.
func (a *Algorithm) PropertyNames() []string {
	names := make([]string, len(a.Properties))
	for i, p := range a.Properties {
		names[i] = p.Name
	}
	return names
}

// Default returns the declared default for a property (case-insensitive).
func (a *Algorithm) Default(name string) (string, bool) {
	for _, p := range a.Properties {
		if strings.EqualFold(p.Name, name) {
			return p.Default, true
		}
	}
	return "", false
}

// rawAlgorithm is the on-disk YAML shape.
type rawAlgorithm struct {
	ID          int64          `yaml:"id"`
	Name        string         `yaml:"name"`
	ExecClass   string         `yaml:"exec_class"`
	Description string         `yaml:"description"`
	Properties  []PropertySpec `yaml:"properties"`
}

// FileSystemAlgorithmRepository loads algorithm definitions from *.yaml
// files in a directory, one algorithm per file. Definitions are loaded once.
type FileSystemAlgorithmRepository struct {
	dir  string
	byID map[int64]*Algorithm
}

// NewFileSystemAlgorithmRepository eagerly loads every definition in dir.
// A missing directory yields an empty repository.
func NewFileSystemAlgorithmRepository(dir string) (*FileSystemAlgorithmRepository, error) {
	repo := &FileSystemAlgorithmRepository{
		dir:  dir,
		byID: make(map[int64]*Algorithm),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemAlgorithmRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("algorithm dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("algorithm path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading algorithm dir: %w", err)
	}

	names := make(map[string]int64)
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading algorithm file %s: %w", path, err)
		}

		var raw rawAlgorithm
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing algorithm file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue
		}
		if raw.ID <= 0 {
			return fmt.Errorf("algorithm %q: id must be > 0", raw.Name)
		}
		if _, dup := r.byID[raw.ID]; dup {
			return fmt.Errorf("algorithm %q: duplicate id %d", raw.Name, raw.ID)
		}
		if _, dup := names[strings.ToLower(raw.Name)]; dup {
			return fmt.Errorf("algorithm %q: duplicate name (check multiple YAML files)", raw.Name)
		}
		seen := make(map[string]struct{}, len(raw.Properties))
		for _, p := range raw.Properties {
			key := strings.ToLower(p.Name)
			if key == "" {
				return fmt.Errorf("algorithm %q: property with empty name", raw.Name)
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("algorithm %q: duplicate property %q", raw.Name, p.Name)
			}
			seen[key] = struct{}{}
		}

		names[strings.ToLower(raw.Name)] = raw.ID
		r.byID[raw.ID] = &Algorithm{
			ID:          raw.ID,
			Name:        raw.Name,
			ExecClass:   raw.ExecClass,
			Description: raw.Description,
			Properties:  raw.Properties,
			Fingerprint: fmt.Sprintf("%x", sha256.Sum256(data)),
		}
	}
	return nil
}

// GetAlgorithm returns the algorithm with the given ID.
func (r *FileSystemAlgorithmRepository) GetAlgorithm(_ context.Context, id int64) (*Algorithm, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownAlgorithm, id)
	}
	return a, nil
}

// ListAlgorithms returns every loaded algorithm ordered by ID.
func (r *FileSystemAlgorithmRepository) ListAlgorithms(_ context.Context) ([]*Algorithm, error) {
	out := make([]*Algorithm, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
