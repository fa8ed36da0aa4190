// Package plugin loads declarative command plugins from YAML manifests. A
// plugin maps trigger phrases to a canned command, letting users shortcut the
// model for tasks they run often.
package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"termpilot/internal/logging"
)

// Manifest is one plugin as declared on disk.
type Manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Priority    int      `yaml:"priority"`
	Triggers    []string `yaml:"triggers"`
	Command     string   `yaml:"command"`
}

func (m Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("plugin has no name")
	}
	if len(m.Triggers) == 0 {
		return fmt.Errorf("plugin %q has no triggers", m.Name)
	}
	if strings.TrimSpace(m.Command) == "" {
		return fmt.Errorf("plugin %q has no command", m.Name)
	}
	return nil
}

// Registry holds loaded manifests, highest priority first.
type Registry struct {
	plugins []Manifest
	logger  *logging.Logger
}

// Load reads every *.yaml and *.yml manifest in dir. A missing directory
// yields an empty registry; an invalid manifest is skipped with a warning so
// one bad file does not disable the rest.
func Load(dir string) (*Registry, error) {
	r := &Registry{logger: logging.NewComponentLogger("Plugins")}
	if dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("skipping plugin %s: %v", entry.Name(), err)
			continue
		}

		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			r.logger.Warn("skipping plugin %s: %v", entry.Name(), err)
			continue
		}
		if err := m.validate(); err != nil {
			r.logger.Warn("skipping plugin %s: %v", entry.Name(), err)
			continue
		}
		r.plugins = append(r.plugins, m)
	}

	sort.SliceStable(r.plugins, func(i, j int) bool {
		return r.plugins[i].Priority > r.plugins[j].Priority
	})
	r.logger.Info("loaded %d plugins from %s", len(r.plugins), dir)
	return r, nil
}

// Match returns the highest-priority plugin whose trigger appears in the
// task description, or nil when none matches. Matching is case-insensitive
// substring containment.
func (r *Registry) Match(description string) *Manifest {
	lowered := strings.ToLower(description)
	for i := range r.plugins {
		for _, trigger := range r.plugins[i].Triggers {
			if trigger == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(trigger)) {
				return &r.plugins[i]
			}
		}
	}
	return nil
}

// All returns the loaded manifests in priority order.
func (r *Registry) All() []Manifest {
	return r.plugins
}
