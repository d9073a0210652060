// Package hostgroup persists named groups of host aliases so batch
// diagnostics can target "all production hosts" in one command.
package hostgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/treykane/ssh-doctor/internal/appconfig"
)

// Definition is a named set of host aliases.
type Definition struct {
	Name    string   `yaml:"name" json:"name"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

type fileModel struct {
	Groups map[string]Definition `yaml:"groups"`
}

// LoadAll returns all groups sorted by name.
func LoadAll() ([]Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(fm.Groups))
	for _, g := range fm.Groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get fetches one group by name.
func Get(name string) (Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return Definition{}, err
	}
	g, ok := fm.Groups[name]
	if !ok {
		return Definition{}, fmt.Errorf("group not found: %s", name)
	}
	return g, nil
}

// Create adds or replaces a group definition.
func Create(name string, aliases []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("group name cannot be empty")
	}
	var clean []string
	for i, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			return fmt.Errorf("group entry %d is empty", i)
		}
		clean = append(clean, a)
	}
	if len(clean) == 0 {
		return fmt.Errorf("group must include at least one host alias")
	}

	fm, err := loadFile()
	if err != nil {
		return err
	}
	fm.Groups[name] = Definition{Name: name, Aliases: clean}
	return saveFile(fm)
}

// Delete removes a group by name.
func Delete(name string) error {
	fm, err := loadFile()
	if err != nil {
		return err
	}
	if _, ok := fm.Groups[name]; !ok {
		return fmt.Errorf("group not found: %s", name)
	}
	delete(fm.Groups, name)
	return saveFile(fm)
}

func loadFile() (fileModel, error) {
	path, err := appconfig.GroupsFilePath()
	if err != nil {
		return fileModel{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileModel{Groups: map[string]Definition{}}, nil
		}
		return fileModel{}, err
	}
	var fm fileModel
	if err := yaml.Unmarshal(b, &fm); err != nil {
		return fileModel{}, fmt.Errorf("parse groups: %w", err)
	}
	if fm.Groups == nil {
		fm.Groups = map[string]Definition{}
	}
	return fm, nil
}

func saveFile(fm fileModel) error {
	path, err := appconfig.GroupsFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(fm)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
