// Package registry holds the catalog of job definitions: which job types
// exist, what they do, and the default parameters a run starts from. The
// catalog ships with built-in definitions and can be extended or
// overridden from a YAML file.
package registry

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// JobDef describes one job type.
type JobDef struct {
	Type        string         `yaml:"type" json:"type"`
	Description string         `yaml:"description" json:"description"`
	Defaults    map[string]any `yaml:"defaults" json:"defaults,omitempty"`
}

// Registry is the loaded job catalog.
type Registry struct {
	jobs map[string]JobDef
}

type registryFile struct {
	Jobs []JobDef `yaml:"jobs"`
}

// Builtin returns the registry with only the built-in job definitions.
func Builtin() *Registry {
	r := &Registry{jobs: make(map[string]JobDef)}
	for _, def := range []JobDef{
		{
			Type:        "marketplace_scrape",
			Description: "Collect complete listings from marketplace city feeds",
			Defaults: map[string]any{
				"cities":            []any{"berlin"},
				"listings_per_city": 50,
			},
		},
		{
			Type:        "product_analyze",
			Description: "Classify item photos and enrich with market pricing",
			Defaults:    map[string]any{},
		},
	} {
		r.jobs[def.Type] = def
	}
	return r
}

// Load reads job definitions from a YAML file and merges them over the
// built-ins. A missing file just yields the built-ins; an unreadable or
// malformed file is an error.
func Load(path string) (*Registry, error) {
	r := Builtin()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		zap.L().Debug("no job registry file, using built-ins", zap.String("path", path))
		return r, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}

	for _, def := range file.Jobs {
		if def.Type == "" {
			return nil, eris.Errorf("registry: job definition without a type in %s", path)
		}
		if existing, ok := r.jobs[def.Type]; ok {
			// File entries override built-ins field by field.
			if def.Description == "" {
				def.Description = existing.Description
			}
			if def.Defaults == nil {
				def.Defaults = existing.Defaults
			}
		}
		r.jobs[def.Type] = def
	}
	return r, nil
}

// Get returns the definition for a job type.
func (r *Registry) Get(jobType string) (JobDef, bool) {
	def, ok := r.jobs[jobType]
	return def, ok
}

// Names lists the registered job types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeInput layers a run's input over the job's defaults: every key the
// input sets wins, every key it omits falls back to the default.
func (r *Registry) MergeInput(jobType string, input json.RawMessage) (json.RawMessage, error) {
	def, ok := r.jobs[jobType]
	if !ok {
		return nil, eris.Errorf("registry: unknown job type %q", jobType)
	}

	merged := make(map[string]any, len(def.Defaults))
	for k, v := range def.Defaults {
		merged[k] = v
	}
	if len(input) > 0 {
		var given map[string]any
		if err := json.Unmarshal(input, &given); err != nil {
			return nil, eris.Wrap(err, "registry: parse run input")
		}
		for k, v := range given {
			merged[k] = v
		}
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, eris.Wrap(err, "registry: marshal merged input")
	}
	return out, nil
}
