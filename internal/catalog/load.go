package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a catalog fragment. A catalog directory may
// split definitions across any number of files; sections merge by id.
type File struct {
	Equipment []EquipmentDef `yaml:"equipment,omitempty"`
	Items     []ItemDef      `yaml:"items,omitempty"`
	Methods   []Method       `yaml:"methods,omitempty"`
}

// Parse decodes a single catalog fragment. Validation happens later, once all
// fragments are merged.
func Parse(data []byte) (File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return File{}, fmt.Errorf("catalog: fragment is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("catalog: decode fragment: %w", err)
	}
	return f, nil
}

// LoadFile reads and parses one fragment from disk.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return f, nil
}

// LoadDir scans a directory for *.yaml fragments, merges them in path order
// and returns the validated catalog.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("catalog: no yaml fragments in %s", dir)
	}
	sort.Strings(paths)

	var merged File
	for _, path := range paths {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		merged.Equipment = append(merged.Equipment, f.Equipment...)
		merged.Items = append(merged.Items, f.Items...)
		merged.Methods = append(merged.Methods, f.Methods...)
	}
	return New(merged.Equipment, merged.Items, merged.Methods)
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
