package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/cibox/internal/pipeline"
)

// StepDef is an extra in-container command declared in an extensions file.
type StepDef struct {
	Label string   `yaml:"label" json:"label"`
	Argv  []string `yaml:"argv" json:"argv"`
}

// Extensions maps pipeline names to steps appended after the standard ones.
type Extensions struct {
	Pipelines map[string][]StepDef `yaml:"pipelines" json:"pipelines"`
}

// Names returns the extended pipeline names, sorted.
func (e Extensions) Names() []string {
	names := make([]string, 0, len(e.Pipelines))
	for name := range e.Pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Steps returns the extension steps for name.
func (e Extensions) Steps(name string) []pipeline.Step {
	defs := e.Pipelines[name]
	steps := make([]pipeline.Step, 0, len(defs))
	for _, d := range defs {
		steps = append(steps, pipeline.Command(d.Label, d.Argv...))
	}
	return steps
}

// Validate rejects steps without a command.
func (e Extensions) Validate() error {
	for _, name := range e.Names() {
		for i, d := range e.Pipelines[name] {
			if len(d.Argv) == 0 || strings.TrimSpace(d.Argv[0]) == "" {
				return fmt.Errorf("pipeline %q step %d: argv is empty", name, i+1)
			}
		}
	}
	return nil
}

// ParseExtensions decodes an extensions document. format is "yaml" or
// "jsonc"; plain JSON is valid JSONC.
func ParseExtensions(data []byte, format string) (Extensions, error) {
	var ext Extensions
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &ext); err != nil {
			return ext, fmt.Errorf("parsing extensions: %w", err)
		}
	case "jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &ext); err != nil {
			return ext, fmt.Errorf("parsing extensions: %w", err)
		}
	default:
		return ext, fmt.Errorf("unsupported extensions format %q", format)
	}

	for name, defs := range ext.Pipelines {
		for i := range defs {
			if defs[i].Label == "" {
				defs[i].Label = strings.Join(defs[i].Argv, " ")
			}
		}
		ext.Pipelines[name] = defs
	}
	return ext, ext.Validate()
}

// LoadExtensions reads an extensions file, choosing the format from its
// extension: .yaml or .yml, otherwise JSONC.
func LoadExtensions(fs afero.Fs, path string) (Extensions, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Extensions{}, fmt.Errorf("reading %s: %w", path, err)
	}
	format := "jsonc"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	ext, err := ParseExtensions(data, format)
	if err != nil {
		return Extensions{}, fmt.Errorf("%s: %w", path, err)
	}
	return ext, nil
}
