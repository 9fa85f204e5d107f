package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Environment is the environment-resource descriptor (-jettyEnvPath): named
// resources such as data sources that the non-front modules look up by name.
type Environment struct {
	Resources []Resource `yaml:"resources"`
}

// Resource is one named environment entry.
type Resource struct {
	Name       string            `yaml:"name" json:"name"`
	Type       string            `yaml:"type" json:"type"`
	Properties map[string]string `yaml:"properties" json:"-"`
}

// LoadEnvironment reads and validates an environment descriptor.
func LoadEnvironment(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment descriptor: %w", err)
	}
	return ParseEnvironment(data)
}

// ParseEnvironment decodes an environment descriptor.
func ParseEnvironment(data []byte) (*Environment, error) {
	env := &Environment{}
	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("failed to parse environment descriptor: %w", err)
	}

	seen := make(map[string]struct{}, len(env.Resources))
	for i, r := range env.Resources {
		if r.Name == "" {
			return nil, fmt.Errorf("environment resource #%d has no name", i)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("duplicate environment resource %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return env, nil
}

// Lookup returns the resource with the given name.
func (e *Environment) Lookup(name string) (*Resource, bool) {
	if e == nil {
		return nil, false
	}
	for i := range e.Resources {
		if e.Resources[i].Name == name {
			return &e.Resources[i], true
		}
	}
	return nil, false
}

// Names returns the sorted resource names.
func (e *Environment) Names() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.Resources))
	for _, r := range e.Resources {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}
