package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SettingsDir reads named imaging settings documents from a directory of
// *.yaml files. The file stem is the settings name exposed over the API.
type SettingsDir struct {
	dir string
}

func NewSettingsDir(dir string) *SettingsDir { return &SettingsDir{dir: dir} }

// List returns the available settings names. A missing directory yields an
// empty list rather than an error; the gateway simply has no settings then.
func (s *SettingsDir) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(name, ext))
		}
	}
	return names
}

func (s *SettingsDir) Exists(name string) bool {
	for _, n := range s.List() {
		if n == name {
			return true
		}
	}
	return false
}

// Load parses one settings document into a generic map consumed by the
// request codec.
func (s *SettingsDir) Load(name string) (map[string]any, error) {
	path := filepath.Join(s.dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if alt, aerr := os.ReadFile(filepath.Join(s.dir, name+".yml")); aerr == nil {
			data = alt
		} else {
			return nil, fmt.Errorf("read settings %q: %w", name, err)
		}
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %q: %w", name, err)
	}
	return doc, nil
}
