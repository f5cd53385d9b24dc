package data

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/realmrelay/server/internal/component"
	"gopkg.in/yaml.v3"
)

//go:embed yaml/classes.yaml
var defaultClassYAML []byte

type statsEntry struct {
	Health       float64 `yaml:"health"`
	MaxHealth    float64 `yaml:"max_health"`
	Mana         float64 `yaml:"mana"`
	MaxMana      float64 `yaml:"max_mana"`
	Strength     float64 `yaml:"strength"`
	Intelligence float64 `yaml:"intelligence"`
	Dexterity    float64 `yaml:"dexterity"`
	Level        float64 `yaml:"level"`
	Experience   float64 `yaml:"experience"`
}

// ClassEntry defines one playable class.
type ClassEntry struct {
	Name         string     `yaml:"name"`
	Aliases      []string   `yaml:"aliases"`
	DefaultStats statsEntry `yaml:"default_stats"`
}

// Stats converts the YAML default stat block to the wire type.
func (e *ClassEntry) Stats() component.Stats {
	s := e.DefaultStats
	return component.Stats{
		Health:       s.Health,
		MaxHealth:    s.MaxHealth,
		Mana:         s.Mana,
		MaxMana:      s.MaxMana,
		Strength:     s.Strength,
		Intelligence: s.Intelligence,
		Dexterity:    s.Dexterity,
		Level:        s.Level,
		Experience:   s.Experience,
	}
}

// ClassTable is the closed set of playable classes, looked up by name or alias.
type ClassTable struct {
	classes map[string]*ClassEntry // lower-case name or alias → entry
	names   []component.Class
}

// LoadClassTable loads a class list from path, or the built-in list when
// path is empty.
func LoadClassTable(path string) (*ClassTable, error) {
	raw := defaultClassYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read class table: %w", err)
		}
		raw = b
	}
	return ParseClassTable(raw)
}

// ParseClassTable builds a table from YAML bytes.
func ParseClassTable(raw []byte) (*ClassTable, error) {
	var entries []ClassEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse class table: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("class table is empty")
	}
	t := &ClassTable{classes: make(map[string]*ClassEntry, len(entries)*2)}
	for i := range entries {
		e := &entries[i]
		if e.Name == "" {
			return nil, fmt.Errorf("class entry %d has no name", i)
		}
		for _, key := range append([]string{e.Name}, e.Aliases...) {
			k := strings.ToLower(key)
			if _, dup := t.classes[k]; dup {
				return nil, fmt.Errorf("duplicate class key %q", key)
			}
			t.classes[k] = e
		}
		t.names = append(t.names, component.Class(e.Name))
	}
	return t, nil
}

// Resolve maps a wire class name or alias to its entry, or nil if the class
// is not part of the table.
func (t *ClassTable) Resolve(name component.Class) *ClassEntry {
	return t.classes[strings.ToLower(strings.TrimSpace(string(name)))]
}

// Names returns the canonical class names in table order.
func (t *ClassTable) Names() []component.Class {
	return t.names
}
