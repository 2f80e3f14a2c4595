package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrNotFound is returned when no definition with the requested name exists.
var ErrNotFound = errors.New("pipeline: definition not found")

// Loader loads pipeline definitions by name.
type Loader interface {
	Load(name string) (*Definition, error)
	// Names lists every definition the loader can find.
	Names() ([]string, error)
}

// FileLoader loads definitions from YAML files on disk.
type FileLoader struct {
	dirs []string
}

// NewFileLoader creates a loader that searches the given directories, and
// their subdirectories, for {name}.yaml and {name}.yml files.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load searches for a definition file by name across configured directories.
func (l *FileLoader) Load(name string) (*Definition, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}
		if path := findFile(dir, name); path != "" {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("%w: %q in %v", ErrNotFound, name, l.dirs)
}

// Names lists the base names of every definition file, sorted.
func (l *FileLoader) Names() ([]string, error) {
	seen := make(map[string]bool)
	for _, dir := range l.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if name, ok := definitionName(d); ok {
				seen[name] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: listing %s: %w", dir, err)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func findFile(dir, name string) string {
	var found string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return filepath.SkipDir
		}
		if n, ok := definitionName(d); ok && n == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func definitionName(d fs.DirEntry) (string, bool) {
	if d.IsDir() {
		return "", false
	}
	ext := filepath.Ext(d.Name())
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	return strings.TrimSuffix(d.Name(), ext), true
}

// LoadFile reads and parses one definition file. A definition without a
// name takes the file's base name.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parsing %s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return d, nil
}

// Parse decodes a YAML definition. Unknown keys are rejected.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// MapLoader serves definitions held in memory.
type MapLoader map[string]*Definition

// Load returns the definition registered under name.
func (m MapLoader) Load(name string) (*Definition, error) {
	d, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d, nil
}

// Names returns the sorted definition names.
func (m MapLoader) Names() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
