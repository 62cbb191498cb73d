package catalog

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/cibox/internal/errors"
)

func TestLoadExtensions(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{
			name: "yaml",
			path: "/etc/cibox/extra.yaml",
			body: `pipelines:
  provision:
    - label: install redis
      argv: [apt-get, install, -qy, redis-server]
    - argv: [service, redis-server, start]
`,
		},
		{
			name: "jsonc",
			path: "/etc/cibox/extra.jsonc",
			body: `{
  // extra services for the integration suite
  "pipelines": {
    "provision": [
      {"label": "install redis", "argv": ["apt-get", "install", "-qy", "redis-server"]},
      {"argv": ["service", "redis-server", "start"]},
    ],
  },
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, tt.path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}

			ext, err := LoadExtensions(fs, tt.path)
			if err != nil {
				t.Fatalf("LoadExtensions: %v", err)
			}
			steps := ext.Steps(Provision)
			if len(steps) != 2 {
				t.Fatalf("steps = %d, want 2", len(steps))
			}
			if steps[0].Label != "install redis" {
				t.Errorf("label = %q", steps[0].Label)
			}
			if steps[1].Label != "service redis-server start" {
				t.Errorf("default label = %q", steps[1].Label)
			}
		})
	}
}

func TestParseExtensions_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		format string
		want   string
	}{
		{"empty argv", `{"pipelines": {"provision": [{"label": "noop"}]}}`, "jsonc", "argv is empty"},
		{"bad yaml", "pipelines: [", "yaml", "parsing extensions"},
		{"unknown format", "", "toml", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExtensions([]byte(tt.body), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestExtensions_AppendedToPipeline(t *testing.T) {
	ext, err := ParseExtensions([]byte(`{"pipelines": {"run_tests": [{"argv": ["true"]}]}}`), "jsonc")
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, Settings{})
	f.cat = New(Settings{}, WithFs(f.fs), WithRunner(f.runner), WithExtensions(ext))

	results, err := f.cat.Run(context.Background(), f.c, f.exec, RunTests)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(results[0].Steps); got != 4 {
		t.Fatalf("steps = %d, want 4", got)
	}
	if !slices.Equal(f.c.Runs()[0], []string{"true"}) {
		t.Errorf("runs = %v", f.c.Runs())
	}
}

func TestExtensions_UnknownPipeline(t *testing.T) {
	ext := Extensions{Pipelines: map[string][]StepDef{"deploy": {{Label: "x", Argv: []string{"x"}}}}}
	cat := New(Settings{}, WithFs(afero.NewMemMapFs()), WithExtensions(ext))
	if err := cat.Validate(Provision); !errors.Is(err, errors.ErrUnknownPipeline) {
		t.Errorf("err = %v, want ErrUnknownPipeline", err)
	}
}
